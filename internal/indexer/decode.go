package indexer

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"circlepot/internal/address"
	"circlepot/internal/domain"
	"circlepot/internal/idhash"
)

// Decode converts an indexer row into a typed, validated event.
// Every failure is a *domain.IntegrityWarning: rows are dropped, never fatal.
func Decode(raw RawEvent) (domain.Event, error) {
	kind := domain.EventKind(raw.Kind)
	warn := func(format string, args ...any) error {
		return &domain.IntegrityWarning{EventID: raw.ID, Kind: kind, Reason: fmt.Sprintf(format, args...)}
	}

	if field := missingField(kind, raw); field != "" {
		return nil, warn("missing %s", field)
	}

	tx, logIndex, err := idhash.SplitSourceID(raw.ID)
	if err != nil {
		return nil, warn("%v", err)
	}
	if raw.TransactionHash != "" {
		tx = strings.ToLower(raw.TransactionHash)
	}

	block, err := strconv.ParseUint(raw.BlockNumber, 10, 64)
	if err != nil {
		return nil, warn("block number %q: %v", raw.BlockNumber, err)
	}
	ts, err := parseUnix(raw.BlockTimestamp)
	if err != nil || ts.IsZero() {
		return nil, warn("block timestamp %q", raw.BlockTimestamp)
	}

	rec := domain.EventRecord{
		Kind:        kind,
		ID:          idhash.ComputeEventID(tx, logIndex),
		CircleID:    raw.CircleID,
		TxHash:      tx,
		BlockNumber: block,
		LogIndex:    logIndex,
		Timestamp:   ts,
	}

	if raw.User != "" {
		if rec.Subject, err = address.Normalize(raw.User); err != nil {
			return nil, warn("user %q: %v", raw.User, err)
		}
	}
	if raw.Counterparty != "" {
		if rec.Counterparty, err = address.Normalize(raw.Counterparty); err != nil {
			return nil, warn("counterparty %q: %v", raw.Counterparty, err)
		}
	}
	if raw.Amount != nil {
		v, ok := new(big.Int).SetString(*raw.Amount, 10)
		if !ok {
			return nil, warn("amount %q is not an integer", *raw.Amount)
		}
		rec.Amount = v
	}
	if raw.Round != nil {
		rec.Round = *raw.Round
	}
	if raw.Position != nil {
		rec.Position = *raw.Position
	}
	if raw.Choice != nil {
		switch *raw.Choice {
		case 1:
			rec.Choice = domain.VoteStart
		case 2:
			rec.Choice = domain.VoteWithdraw
		default:
			return nil, warn("vote choice %d", *raw.Choice)
		}
	}
	if raw.CircleStarted != nil {
		rec.CircleStarted = *raw.CircleStarted
	}
	if raw.StartVotes != nil {
		rec.StartVotes = *raw.StartVotes
	}
	if raw.WithdrawVotes != nil {
		rec.WithdrawVotes = *raw.WithdrawVotes
	}
	if raw.VotingStartAt != nil {
		if rec.VotingStart, err = parseUnix(*raw.VotingStartAt); err != nil {
			return nil, warn("voting start %q", *raw.VotingStartAt)
		}
	}
	if raw.VotingEndAt != nil {
		if rec.VotingEnd, err = parseUnix(*raw.VotingEndAt); err != nil {
			return nil, warn("voting end %q", *raw.VotingEndAt)
		}
	}

	return domain.FromRecord(rec)
}

// missingField names a kind-specific field whose absence would otherwise
// decode as a meaningful zero value.
func missingField(kind domain.EventKind, raw RawEvent) string {
	switch kind {
	case domain.KindVoteExecuted:
		switch {
		case raw.CircleStarted == nil:
			return "circleStarted"
		case raw.StartVotes == nil:
			return "startVotes"
		case raw.WithdrawVotes == nil:
			return "withdrawVotes"
		}
	case domain.KindVoteCast:
		if raw.Choice == nil {
			return "choice"
		}
	case domain.KindPositionAssigned:
		if raw.Position == nil {
			return "position"
		}
	}
	return ""
}

// DecodeAll decodes rows, collecting the ones that fail as warnings.
func DecodeAll(rows []RawEvent) ([]domain.Event, []*domain.IntegrityWarning) {
	events := make([]domain.Event, 0, len(rows))
	var warnings []*domain.IntegrityWarning
	for _, row := range rows {
		e, err := Decode(row)
		if err != nil {
			var w *domain.IntegrityWarning
			if errors.As(err, &w) {
				warnings = append(warnings, w)
			}
			continue
		}
		events = append(events, e)
	}
	return events, warnings
}

// DecodeCircle converts a summary row into a circle.
func DecodeCircle(raw RawCircle) (domain.Circle, error) {
	creator, err := address.Normalize(raw.Creator)
	if err != nil {
		return domain.Circle{}, fmt.Errorf("circle %s creator: %w", raw.ID, err)
	}
	amount, ok := new(big.Int).SetString(raw.ContributionAmount, 10)
	if !ok {
		return domain.Circle{}, fmt.Errorf("circle %s contribution amount %q", raw.ID, raw.ContributionAmount)
	}
	freq, err := domain.FrequencyFromCode(raw.Frequency)
	if err != nil {
		return domain.Circle{}, fmt.Errorf("circle %s: %w", raw.ID, err)
	}
	vis, err := domain.VisibilityFromCode(raw.Visibility)
	if err != nil {
		return domain.Circle{}, fmt.Errorf("circle %s: %w", raw.ID, err)
	}
	state, err := domain.StateFromCode(raw.State)
	if err != nil {
		return domain.Circle{}, fmt.Errorf("circle %s: %w", raw.ID, err)
	}
	created, err := parseUnix(raw.CreatedAt)
	if err != nil {
		return domain.Circle{}, fmt.Errorf("circle %s created at %q", raw.ID, raw.CreatedAt)
	}
	started, err := parseUnix(raw.StartedAt)
	if err != nil {
		return domain.Circle{}, fmt.Errorf("circle %s started at %q", raw.ID, raw.StartedAt)
	}

	round := raw.CurrentRound
	if round < 1 {
		round = 1
	}

	return domain.Circle{
		ID:                 raw.ID,
		Creator:            creator,
		Title:              raw.Title,
		ContributionAmount: amount,
		Frequency:          freq,
		MaxMembers:         raw.MaxMembers,
		CurrentMembers:     raw.CurrentMembers,
		Visibility:         vis,
		State:              state,
		CreatedAt:          created,
		StartedAt:          started,
		CurrentRound:       round,
		YieldEnabled:       raw.YieldEnabled,
	}, nil
}

// parseUnix reads a unix-seconds string. Empty and "0" mean unset.
func parseUnix(s string) (time.Time, error) {
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

