// Package app assembles stores, transports and services into one running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"mailomat/internal/audit"
	"mailomat/internal/auth"
	authmodels "mailomat/internal/auth/models"
	authstore "mailomat/internal/auth/store"
	"mailomat/internal/email"
	nlhandler "mailomat/internal/newsletter/handler"
	nlmetrics "mailomat/internal/newsletter/metrics"
	nlservice "mailomat/internal/newsletter/service"
	nlstore "mailomat/internal/newsletter/store"
	"mailomat/internal/platform/config"
	"mailomat/internal/platform/httpserver"
	"mailomat/internal/platform/metrics"
	"mailomat/internal/platform/middleware"
	"mailomat/internal/platform/postgres"
	platformredis "mailomat/internal/platform/redis"
	subhandler "mailomat/internal/subscription/handler"
	submetrics "mailomat/internal/subscription/metrics"
	"mailomat/internal/subscription/models"
	subservice "mailomat/internal/subscription/service"
	substore "mailomat/internal/subscription/store"
	"mailomat/internal/subscription/token"
	"mailomat/pkg/platform/httputil"
)

// SubscriberStore is everything the application needs from subscription storage.
type SubscriberStore interface {
	subservice.Store
	token.Finder
	FindByEmail(ctx context.Context, email string) (*models.SubscriptionRecord, error)
	ListConfirmed(ctx context.Context) iter.Seq2[models.Recipient, error]
}

type operatorStore interface {
	auth.OperatorStore
	Upsert(ctx context.Context, op *authmodels.Operator) error
}

type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// App is built once and then served. Fields are reachable only through accessors.
type App struct {
	cfg         config.Config
	logger      *slog.Logger
	listener    net.Listener
	server      *http.Server
	router      chi.Router
	subscribers SubscriberStore
	auditWorker *audit.Worker
	health      []healthCheck
	closers     []func() error
	closeOnce   sync.Once
}

// Build wires the application from cfg and binds its listener, so Addr is known
// before Serve runs. Port 0 picks a free port.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	built := false
	defer func() {
		if !built {
			a.close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	operators, err := a.buildStores(ctx)
	if err != nil {
		return nil, err
	}
	if err := authstore.SeedOperator(ctx, operators, cfg.Operator.Username, cfg.Operator.Password, time.Now()); err != nil {
		return nil, fmt.Errorf("seed operator: %w", err)
	}

	idempotency, err := a.buildIdempotencyStore(ctx)
	if err != nil {
		return nil, err
	}

	sender, err := email.NewFromConfig(ctx, cfg.Email, reg)
	if err != nil {
		return nil, fmt.Errorf("build email sender: %w", err)
	}

	auditStore, err := a.buildAuditStore()
	if err != nil {
		return nil, err
	}
	publisher, worker := audit.NewPublisher(auditStore, 1024, audit.WithLogger(logger))
	a.auditWorker = worker

	gate, err := auth.NewGate(operators, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	subscriptions, err := subservice.New(a.subscribers, token.NewResolver(a.subscribers), sender, cfg.Server.BaseURL,
		subservice.WithLogger(logger),
		subservice.WithAuditPublisher(publisher),
		subservice.WithMetrics(submetrics.New(reg)),
		subservice.WithResendCooldown(cfg.Subscription.ResendCooldown),
	)
	if err != nil {
		return nil, err
	}

	dispatcher := nlservice.New(gate, a.subscribers, sender,
		nlservice.WithLogger(logger),
		nlservice.WithAuditPublisher(publisher),
		nlservice.WithMetrics(nlmetrics.New(reg)),
		nlservice.WithConcurrency(cfg.Dispatch.Concurrency),
		nlservice.WithIdempotencyStore(idempotency),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Latency(metrics.New(reg)))
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
		r.Get("/health-check", a.handleHealth)
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		subhandler.New(subscriptions, logger).Register(r)
	})
	// A broadcast lasts as long as its recipient list, so it runs under its own deadline.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Deadline(cfg.Dispatch.Timeout))
		nlhandler.New(dispatcher, logger).Register(r)
	})
	a.router = r

	a.listener, err = net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}
	a.server = httpserver.New(a.listener.Addr().String(), r, cfg.Server.RequestTimeout)
	built = true
	return a, nil
}

// buildStores picks Postgres when a database URL is configured, memory otherwise.
func (a *App) buildStores(ctx context.Context) (operatorStore, error) {
	if a.cfg.Database.URL == "" {
		a.logger.WarnContext(ctx, "no database configured, using in-memory stores")
		a.subscribers = substore.NewInMemory()
		return authstore.NewInMemory(), nil
	}
	db, err := postgres.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	a.health = append(a.health, healthCheck{name: "postgres", check: db.PingContext})
	a.subscribers = substore.NewPostgres(db)
	return authstore.NewPostgres(db), nil
}

func (a *App) buildIdempotencyStore(ctx context.Context) (nlservice.IdempotencyStore, error) {
	rc, err := platformredis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return nlstore.NewInMemory(a.cfg.Dispatch.IdempotencyTTL), nil
	}
	a.closers = append(a.closers, rc.Close)
	a.health = append(a.health, healthCheck{name: "redis", check: rc.Health})
	return nlstore.NewRedis(rc.Client, a.cfg.Dispatch.IdempotencyTTL), nil
}

func (a *App) buildAuditStore() (audit.Store, error) {
	if len(a.cfg.Audit.KafkaBrokers) == 0 {
		return audit.NewLogStore(a.logger), nil
	}
	ks, err := audit.NewKafkaStore(a.cfg.Audit.KafkaBrokers, a.cfg.Audit.KafkaTopic)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { ks.Close(); return nil })
	return ks, nil
}

func (a *App) Handler() http.Handler { return a.router }

// Addr is the bound listener address, with the real port when 0 was requested.
func (a *App) Addr() string { return a.listener.Addr().String() }

func (a *App) Subscriptions() SubscriberStore { return a.subscribers }

// Serve runs the HTTP server and the audit worker until ctx is cancelled, then
// shuts down gracefully and releases every resource.
func (a *App) Serve(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()

	g.Go(func() error {
		_ = a.auditWorker.Run(workerCtx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("mailomat listening", "addr", a.Addr())
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		err := a.server.Shutdown(shutdownCtx)
		stopWorker()
		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases resources of an App that was built but never served.
func (a *App) Close() {
	a.close()
}

func (a *App) close() {
	a.closeOnce.Do(func() {
		if a.listener != nil {
			_ = a.listener.Close()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				a.logger.Warn("failed to close resource", "error", err)
			}
		}
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK
	for _, hc := range a.health {
		if err := hc.check(ctx); err != nil {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string)
			}
			resp.Checks[hc.name] = "unavailable"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			a.logger.WarnContext(ctx, "health check failed", "check", hc.name, "error", err)
		}
	}
	httputil.WriteJSON(w, status, resp)
}
