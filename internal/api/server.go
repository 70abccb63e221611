// Package api serves derived circle views over HTTP.
package api

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"circlepot/internal/address"
	"circlepot/internal/domain"
	"circlepot/internal/eligibility"
	"circlepot/internal/policy"
	"circlepot/internal/storage"
)

// Options configures a Server.
type Options struct {
	Circles   storage.CircleStore
	Events    storage.EventStore
	Snapshots storage.ViewSnapshotStore // optional; nil disables /snapshots
	Engine    *eligibility.Engine
	Logger    zerolog.Logger
}

// Server is the read API over stored circles.
type Server struct {
	circles   storage.CircleStore
	events    storage.EventStore
	snapshots storage.ViewSnapshotStore
	engine    *eligibility.Engine
	logger    zerolog.Logger
}

// NewServer creates an API server.
func NewServer(opts Options) *Server {
	engine := opts.Engine
	if engine == nil {
		engine = eligibility.NewEngine(eligibility.Options{Logger: opts.Logger})
	}
	return &Server{
		circles:   opts.Circles,
		events:    opts.Events,
		snapshots: opts.Snapshots,
		engine:    engine,
		logger:    opts.Logger.With().Str("component", "api").Logger(),
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/savings/withdrawal-quote", s.handleWithdrawalQuote)
	r.Route("/circles", func(r chi.Router) {
		r.Get("/", s.handleListCircles)
		r.Get("/{id}/view", s.handleView)
		if s.snapshots != nil {
			r.Get("/{id}/snapshots", s.handleSnapshots)
		}
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	success(w, r, map[string]string{"status": "ok"})
}

type circleSummary struct {
	ID             string             `json:"id"`
	Creator        string             `json:"creator"`
	Title          string             `json:"title"`
	State          domain.CircleState `json:"state"`
	Frequency      domain.Frequency   `json:"frequency"`
	CurrentMembers int                `json:"current_members"`
	MaxMembers     int                `json:"max_members"`
	CurrentRound   int                `json:"current_round"`
}

func (s *Server) handleListCircles(w http.ResponseWriter, r *http.Request) {
	circles, err := s.circles.List(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	out := make([]circleSummary, 0, len(circles))
	for _, c := range circles {
		out = append(out, circleSummary{
			ID:             c.ID,
			Creator:        c.Creator,
			Title:          c.Title,
			State:          c.State,
			Frequency:      c.Frequency,
			CurrentMembers: c.CurrentMembers,
			MaxMembers:     c.MaxMembers,
			CurrentRound:   c.CurrentRound,
		})
	}
	success(w, r, out)
}

// handleView derives the view of a circle for the ?viewer= address.
// An absent viewer yields the anonymous view.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	circleID := chi.URLParam(r, "id")

	viewer := r.URL.Query().Get("viewer")
	if viewer != "" {
		if _, err := address.Normalize(viewer); err != nil {
			failure(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
	}

	circle, err := s.circles.Get(r.Context(), circleID)
	if errors.Is(err, storage.ErrNotFound) {
		failure(w, r, http.StatusNotFound, ErrCodeNotFound, "circle "+circleID+" not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	events, err := s.events.ListByCircle(r.Context(), circleID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	view, err := s.engine.DeriveView(*circle, events, viewer)
	var iv *domain.InvariantViolation
	switch {
	case err == nil:
		success(w, r, view)
	case errors.Is(err, domain.ErrPrecondition):
		failure(w, r, http.StatusUnprocessableEntity, ErrCodePrecondition, err.Error())
	case errors.As(err, &iv):
		s.logger.Error().
			Err(err).
			Str("request_id", RequestIDFrom(r.Context())).
			Str("circle_id", circleID).
			Str("rule", iv.Rule).
			Msg("invariant violation while deriving view")
		failure(w, r, http.StatusInternalServerError, ErrCodeInvariantViolation, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

// withdrawalQuote is a policy.WithdrawalQuote with display amounts.
type withdrawalQuote struct {
	policy.WithdrawalQuote
	Display struct {
		Requested string `json:"requested"`
		Penalty   string `json:"penalty"`
		Net       string `json:"net"`
	} `json:"display"`
}

// handleWithdrawalQuote prices a savings withdrawal. requested, current and
// target are token amounts ("12.5"), not base units.
func (s *Server) handleWithdrawalQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amounts := make(map[string]*big.Int, 3)
	for _, name := range []string{"requested", "current", "target"} {
		raw := q.Get(name)
		if raw == "" {
			failure(w, r, http.StatusBadRequest, ErrCodeBadRequest, "missing "+name)
			return
		}
		v, err := policy.ParseAmount(raw)
		if err != nil {
			failure(w, r, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("%s: %v", name, err))
			return
		}
		if v.Sign() < 0 {
			failure(w, r, http.StatusBadRequest, ErrCodeBadRequest, name+" must not be negative")
			return
		}
		amounts[name] = v
	}
	if amounts["requested"].Sign() == 0 {
		failure(w, r, http.StatusBadRequest, ErrCodeBadRequest, "requested must be positive")
		return
	}

	quote, err := policy.QuoteWithdrawal(amounts["requested"], amounts["current"], amounts["target"])
	if err != nil {
		failure(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	out := withdrawalQuote{WithdrawalQuote: quote}
	out.Display.Requested = policy.FormatAmount(quote.Requested, 2)
	out.Display.Penalty = policy.FormatAmount(quote.Penalty, 2)
	out.Display.Net = policy.FormatAmount(quote.Net, 2)
	success(w, r, out)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.snapshots.ListByCircle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if snaps == nil {
		snaps = []*domain.ViewSnapshot{}
	}
	success(w, r, snaps)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("request_id", RequestIDFrom(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	failure(w, r, http.StatusInternalServerError, ErrCodeInternalError, "an unexpected error occurred")
}
