package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	nativevault "stakevault/native/vault"
	"stakevault/observability"
	"stakevault/observability/metrics"
	"stakevault/services/vaultd/journal"
	vaultstate "stakevault/state/vault"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Store     *vaultstate.Store
	Journal   *journal.Journal
	Logger    *slog.Logger
	Auth      AuthConfig
	RateLimit RateLimit
	// Now overrides the wall clock; tests pin it.
	Now func() time.Time
}

// Server exposes the vault over HTTP.
type Server struct {
	store   *vaultstate.Store
	journal *journal.Journal
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
	tracer  trace.Tracer
	now     func() time.Time

	// commitMu spans the store commit, the journal append and the stream
	// broadcast so journal sequences follow commit order.
	commitMu sync.Mutex
	hub      *eventHub

	router http.Handler
}

// New constructs the server and its router.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("vaultd: store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		store:   cfg.Store,
		journal: cfg.Journal,
		logger:  logger,
		auth:    NewAuthenticator(cfg.Auth, logger),
		limiter: NewRateLimiter(cfg.RateLimit),
		tracer:  otel.Tracer("stakevault/services/vaultd"),
		now:     cfg.Now,
		hub:     newEventHub(),
	}
	if srv.now == nil {
		srv.now = time.Now
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(s.limiter.Middleware)
			public.Get("/vault", s.handleSummary)
			public.Get("/vault/root", s.handleStateRoot)
			public.Get("/preview/stake", s.handlePreviewStake)
			public.Get("/preview/unstake", s.handlePreviewUnstake)
			public.Get("/accounts/{address}", s.handlePosition)
			public.Get("/events", s.handleEvents)
			public.Get("/events/stream", s.handleEventStream)
		})
		api.Group(func(protected chi.Router) {
			protected.Use(s.auth.Middleware)
			protected.Use(s.limiter.Middleware)
			protected.Post("/stake", s.handleStake)
			protected.Post("/unstake", s.handleUnstake)
			protected.Post("/withdraw", s.handleWithdraw)
			protected.Post("/settle", s.handleSettle)
			protected.Post("/rewards", s.handleReward)

			protected.Route("/admin", func(admin chi.Router) {
				admin.Put("/cooldown", s.handleSetCooldown)
				admin.Put("/vesting-period", s.handleSetVestingPeriod)
				admin.Post("/cooldowns/{address}/refresh", s.handleRefreshCooldowns)
				admin.Post("/rewarders/{address}", s.handleAddRewarder)
				admin.Delete("/rewarders/{address}", s.handleRemoveRewarder)
				admin.Post("/blacklist/{address}", s.handleBlacklist)
				admin.Delete("/blacklist/{address}", s.handleUnblacklist)
				admin.Post("/transfer", s.handleTransferAdmin)
				admin.Post("/pause", s.handlePause)
			})
		})
	})

	return otelhttp.NewHandler(r, "vaultd")
}

// operation is the body of a mutating request. It runs inside a store
// transaction and reports the extra events it wants journaled.
type operation func(engine *nativevault.Engine, registry *nativevault.AccessRegistry, caller nativevault.Caller, now uint64) ([]nativevault.Event, error)

// execute runs op for addr in one transaction, then journals the emitted
// events. Nothing is journaled when the transaction fails.
func (s *Server) execute(ctx context.Context, name string, addr common.Address, op operation) error {
	ctx, span := s.tracer.Start(ctx, "vault."+name, trace.WithAttributes(
		attribute.String("vault.account", addr.Hex()),
	))
	defer span.End()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	now := uint64(s.now().Unix())
	var events []nativevault.Event
	err := s.store.Update(func(tx *vaultstate.Tx) error {
		events = events[:0]
		engine, registry := tx.Bind(func(ev nativevault.Event) { events = append(events, ev) })
		caller, err := registry.Resolve(addr)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String("vault.role", caller.Role.String()))
		extra, err := op(engine, registry, caller, now)
		if err != nil {
			return err
		}
		events = append(events, extra...)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.Vault().ObserveRejection(name, errorClass(err))
		s.logger.Info("vault operation rejected", "operation", name, "account", addr.Hex(), "error", err.Error())
		return err
	}
	s.record(ctx, name, events)
	return nil
}

// record journals and broadcasts committed events. The caller holds
// commitMu.
func (s *Server) record(ctx context.Context, name string, events []nativevault.Event) {
	var moved uint64
	for _, ev := range events {
		observability.Events().RecordEvent(ev.Type)
		moved += movedAssets(ev)
	}
	metrics.Vault().ObserveOperation(name, moved)
	s.refreshPoolMetrics()
	if s.journal == nil || len(events) == 0 {
		return
	}
	records, err := s.journal.Append(ctx, events, s.now())
	if err != nil {
		s.logger.Error("journal append failed", "operation", name, "error", err.Error())
		return
	}
	s.hub.publish(records)
}

func (s *Server) refreshPoolMetrics() {
	now := uint64(s.now().Unix())
	err := s.store.View(func(tx *vaultstate.Tx) error {
		engine, _ := tx.Bind(nil)
		summary, err := engine.Summary(now)
		if err != nil {
			return err
		}
		metrics.Vault().SetPool(summary.TotalAssets, summary.EffectiveAssets, summary.Unvested, summary.ShareSupply)
		return nil
	})
	if err != nil {
		s.logger.Warn("pool metrics refresh failed", "error", err.Error())
	}
}
