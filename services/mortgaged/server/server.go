// Package server exposes the mortgage engine over HTTP. Every engine call is
// serialized behind one mutex; a successful transition is committed to the
// state backend and its events are appended to the journal.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendchain/core/events"
	"lendchain/core/genesis"
	"lendchain/core/types"
	"lendchain/observability"
	"lendchain/services/mortgaged/journal"
	mortgagedmw "lendchain/services/mortgaged/middleware"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Runtime   *genesis.Runtime
	Journal   *journal.Journal
	Auth      mortgagedmw.AuthConfig
	RateLimit mortgagedmw.RateLimit
	Logger    *slog.Logger
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	mu      sync.Mutex
	rt      *genesis.Runtime
	journal *journal.Journal
	pending *eventBuffer
	hub     *streamHub
	metrics *observability.MortgageMetrics
	logger  *slog.Logger
	router  http.Handler
}

// eventBuffer collects the events of the transition in flight. It is only
// touched while Server.mu is held.
type eventBuffer struct {
	events []*types.Event
}

func (b *eventBuffer) Emit(evt events.Event) {
	typed, ok := evt.(events.Typed)
	if !ok {
		return
	}
	if payload := typed.Event(); payload != nil {
		b.events = append(b.events, payload.Clone())
	}
}

func (b *eventBuffer) drain() []*types.Event {
	out := b.events
	b.events = nil
	return out
}

// New wires the engine emitter and push observer and builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Runtime == nil || cfg.Runtime.Engine == nil || cfg.Runtime.State == nil {
		return nil, errors.New("server: runtime required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		rt:      cfg.Runtime,
		journal: cfg.Journal,
		pending: &eventBuffer{},
		hub:     newStreamHub(),
		metrics: observability.Mortgage(),
		logger:  logger,
	}
	s.rt.Engine.SetEmitter(events.Multi{s.pending, observability.Events()})
	s.rt.Engine.SetPushObserver(s.metrics)
	s.router = s.buildRouter(cfg)
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	auth := mortgagedmw.NewAuthenticator(cfg.Auth, s.logger)
	limiter := mortgagedmw.NewRateLimiter(cfg.RateLimit)
	obs := mortgagedmw.NewObservability("mortgage", s.logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(obs.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Get("/module", s.getModule)
		api.Get("/mortgages/{id}", s.getMortgage)
		api.Get("/accounts/{account}/balance", s.getBalance)
		api.Get("/events", s.listEvents)
		api.Get("/events/stream", s.streamEvents)

		api.Group(func(protected chi.Router) {
			protected.Use(auth.Middleware)
			protected.Use(limiter.Middleware)
			protected.Use(mortgagedmw.Idempotency(s.journal.DB(), s.logger))

			protected.Post("/mortgages", s.borrow)
			protected.Post("/mortgages/{id}/cancel", s.cancel)
			protected.Post("/mortgages/{id}/lend", s.lend)
			protected.Post("/mortgages/{id}/repay", s.repay)
			protected.Post("/mortgages/{id}/foreclose", s.foreclose)
			protected.Post("/mortgages/{id}/claim/transfer", s.transferClaim)

			protected.Post("/admin/fee-rate", s.updateFeeRate)
			protected.Post("/admin/pause", s.pause)
			protected.Post("/admin/unpause", s.unpause)
			protected.Post("/admin/base-uri", s.updateBaseURI)
		})
	})
	return otelhttp.NewHandler(r, "mortgaged")
}

// execute runs one engine transition. On failure the buffered writes are
// dropped; on success they are committed and the emitted events journaled.
// A journal failure after commit is logged but does not fail the request
// since the state backend is authoritative.
func (s *Server) execute(ctx context.Context, operation string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.drain()
	if err := fn(); err != nil {
		s.rt.State.Discard()
		s.pending.drain()
		_, code := classify(err)
		s.metrics.RecordTransition(operation, code, err)
		return err
	}
	if err := s.rt.State.Commit(); err != nil {
		s.rt.State.Discard()
		s.pending.drain()
		s.metrics.RecordTransition(operation, "commit", err)
		return fmt.Errorf("commit %s: %w", operation, err)
	}
	s.metrics.RecordTransition(operation, "", nil)

	emitted := s.pending.drain()
	if s.journal != nil && len(emitted) > 0 {
		stored, err := s.journal.Append(ctx, chimw.GetReqID(ctx), emitted)
		if err != nil {
			s.logger.Error("journal append failed",
				slog.String("action", operation),
				slog.Int("event", len(emitted)),
				slog.String("error", err.Error()))
			return nil
		}
		s.hub.publish(stored)
	}
	return nil
}

// read runs fn under the engine lock without committing.
func (s *Server) read(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
