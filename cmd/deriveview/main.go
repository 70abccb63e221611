// Command deriveview derives one viewer's circle view from a JSON file of
// indexer rows and prints it. It never touches storage or the network.
//
// Input shape:
//
//	{"circle": {...summary row...}, "events": [{...event row...}, ...]}
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"circlepot/internal/address"
	"circlepot/internal/eligibility"
	"circlepot/internal/indexer"
	"circlepot/internal/observability"
)

// input is the fixture file layout.
type input struct {
	Circle indexer.RawCircle  `json:"circle"`
	Events []indexer.RawEvent `json:"events"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "deriveview: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("deriveview", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.StringP("file", "f", "", "Fixture file with circle and events (- for stdin)")
	viewer := fs.String("viewer", "", "Viewer address (empty for an anonymous view)")
	at := fs.String("now", "", "Evaluation time (RFC3339, default current time)")
	compact := fs.Bool("compact", false, "Print compact JSON")
	logLevel := fs.String("log-level", "warn", "Log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("--file is required")
	}

	logger, err := observability.NewLogger(stderr, *logLevel, "console")
	if err != nil {
		return err
	}

	now := time.Now()
	if *at != "" {
		if now, err = time.Parse(time.RFC3339, *at); err != nil {
			return fmt.Errorf("parse --now: %w", err)
		}
	}

	if *viewer != "" {
		if *viewer, err = address.Normalize(*viewer); err != nil {
			return fmt.Errorf("--viewer: %w", err)
		}
	}

	in, err := readInput(*file)
	if err != nil {
		return err
	}

	circle, err := indexer.DecodeCircle(in.Circle)
	if err != nil {
		return fmt.Errorf("decode circle: %w", err)
	}
	events, warnings := indexer.DecodeAll(in.Events)
	for _, w := range warnings {
		logger.Warn().Str("event_id", w.EventID).Str("kind", string(w.Kind)).Msg(w.Reason)
	}

	engine := eligibility.NewEngine(eligibility.Options{
		Now:    func() time.Time { return now },
		Logger: logger,
	})
	view, err := engine.DeriveView(circle, events, *viewer)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	if !*compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(view)
}

func readInput(path string) (*input, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var in input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &in, nil
}

