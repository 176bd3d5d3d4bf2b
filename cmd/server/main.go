package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"healthcommons/internal/platform/config"
	"healthcommons/internal/platform/httpserver"
	platformkafka "healthcommons/internal/platform/kafka"
	"healthcommons/internal/platform/logger"
	"healthcommons/internal/platform/postgres"
	platformredis "healthcommons/internal/platform/redis"
	"healthcommons/internal/privacy/handler"
	privacymetrics "healthcommons/internal/privacy/metrics"
	"healthcommons/internal/privacy/models"
	"healthcommons/internal/privacy/ports"
	"healthcommons/internal/privacy/randomness"
	ledgerservice "healthcommons/internal/privacy/service/ledger"
	"healthcommons/internal/privacy/service/query"
	ledgerstore "healthcommons/internal/privacy/store/ledger"
	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/audit/publisher"
	auditkafka "healthcommons/pkg/platform/audit/store/kafka"
	auditmemory "healthcommons/pkg/platform/audit/store/memory"
	"healthcommons/pkg/platform/circuit"
	"healthcommons/pkg/platform/httputil"
	"healthcommons/pkg/platform/middleware/requestid"
	"healthcommons/pkg/platform/middleware/requesttime"
)

const (
	shutdownGrace   = 10 * time.Second
	auditBufferSize = 4096
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Privacy semantics live in internal/privacy.
func main() {
	if err := run(); err != nil {
		slog.Error("privacy engine stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).With("service", cfg.Server.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := privacymetrics.New(prometheus.DefaultRegisterer)

	store, health, closeStore, err := buildLedgerStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	auditPublisher, closeAudit, err := buildAuditPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	alloc, err := defaultAllocation(cfg.Privacy)
	if err != nil {
		return err
	}
	ledger, err := ledgerservice.New(store,
		ledgerservice.WithLogger(log),
		ledgerservice.WithAuditPublisher(auditPublisher),
		ledgerservice.WithMetrics(metrics),
		ledgerservice.WithDefaultAllocation(alloc),
	)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}

	executor, err := query.New(ledger, randomness.NewCrypto(),
		query.WithLogger(log),
		query.WithAuditPublisher(auditPublisher),
		query.WithMetrics(metrics),
		query.WithMaxRetries(cfg.Privacy.MaxQueryRetries),
		query.WithConfidenceLevel(cfg.Privacy.ConfidenceLevel),
		query.WithLockTimeout(cfg.Privacy.LockTimeout),
	)
	if err != nil {
		return fmt.Errorf("init query executor: %w", err)
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	handler.New(executor, ledger, log).Register(r)

	srv := httpserver.New(cfg.Server.Addr, r)
	log.Info("starting privacy engine",
		"addr", cfg.Server.Addr,
		"ledger_backend", cfg.Ledger.Backend,
		"composition", alloc.Composition.Kind,
	)
	return httpserver.Run(ctx, srv, shutdownGrace, log)
}

func buildLedgerStore(ctx context.Context, cfg config.Config) (ports.LedgerStore, func(context.Context) error, func(), error) {
	switch cfg.Ledger.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		store := ledgerstore.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("migrate ledger: %w", err)
		}
		return store, db.PingContext, closer(db), nil

	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		return ledgerstore.NewRedisStore(client.Client), client.Health, func() { _ = client.Close() }, nil

	default:
		return ledgerstore.NewInMemoryStore(), func(context.Context) error { return nil }, func() {}, nil
	}
}

func closer(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

// buildAuditPublisher ships audit events to Kafka when brokers are
// configured, and keeps them in memory otherwise.
func buildAuditPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) (*publisher.Publisher, func(), error) {
	client, err := platformkafka.NewClient(cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Warn("no KAFKA_BROKERS configured, audit events are kept in memory")
		p := publisher.NewPublisher(auditmemory.NewInMemoryStore(), publisher.WithLogger(log))
		return p, func() { _ = p.Close() }, nil
	}

	if err := platformkafka.EnsureTopic(ctx, client, cfg.Kafka); err != nil {
		client.Close()
		return nil, nil, err
	}
	var store audit.Store = auditkafka.New(client, cfg.Kafka.AuditTopic,
		auditkafka.WithBreaker(circuit.New("audit-kafka")),
		auditkafka.WithLogger(log),
	)
	p := publisher.NewPublisher(store,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	return p, func() {
		_ = p.Close()
		client.Close()
	}, nil
}

func defaultAllocation(cfg config.PrivacyConfig) (models.Allocation, error) {
	kind, err := models.ParseCompositionKind(cfg.Composition)
	if err != nil {
		return models.Allocation{}, err
	}
	composition := models.BasicComposition()
	if kind == models.CompositionAdvanced {
		composition = models.AdvancedComposition(cfg.DeltaPrime)
	}
	return models.Allocation{
		TotalEpsilon: cfg.DefaultEpsilon,
		TotalDelta:   cfg.DefaultDelta,
		Validity:     cfg.BudgetValidity,
		AutoRenew:    cfg.AutoRenew,
		Composition:  composition,
	}, nil
}
