// Package app assembles the engine from configuration. The server and the
// CLI share it so both run the same components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"numcheck/internal/batch"
	"numcheck/internal/events"
	"numcheck/internal/export"
	"numcheck/internal/ledger"
	"numcheck/internal/phone"
	"numcheck/internal/platform/config"
	"numcheck/internal/platform/metrics"
	"numcheck/internal/platform/redis"
	"numcheck/internal/platform/sqldb"
	"numcheck/internal/session"
	httptransport "numcheck/internal/transport/http"
	"numcheck/internal/verification"
)

// App holds the wired components.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Normalizer *phone.Normalizer
	Verifier   *verification.Client
	Store      *ledger.Store
	Runner     *batch.Runner
	Exporter   *export.Exporter
	Sessions   *session.Manager
	Handler    *httptransport.Handler

	publisher events.Publisher
	health    map[string]httptransport.HealthCheck
	closers   []func() error
}

// Build wires every component and loads the ledger. A corrupt ledger fails
// the build. On error, whatever was opened is closed again.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *App, err error) {
	a := &App{
		Config:    cfg,
		Logger:    log,
		Registry:  prometheus.NewRegistry(),
		publisher: events.NopPublisher{},
		health:    make(map[string]httptransport.HealthCheck),
	}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	if a.Normalizer, err = phone.NewNormalizer(cfg.Phone.CountryCode, cfg.Phone.TrunkPrefix); err != nil {
		return nil, fmt.Errorf("normalizer: %w", err)
	}

	backend, err := verification.NewBackend(cfg.Verification)
	if err != nil {
		return nil, fmt.Errorf("verification backend: %w", err)
	}
	a.Verifier, err = verification.New(backend,
		verification.WithMinInterval(cfg.Verification.MinInterval),
		verification.WithLogger(log),
		verification.WithMetrics(a.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("verification client: %w", err)
	}

	persister, err := a.openPersister(ctx)
	if err != nil {
		return nil, err
	}
	a.Store, err = ledger.New(persister,
		ledger.WithFlushPolicy(ledger.NewEveryN(cfg.Ledger.FlushEvery)),
		ledger.WithLogger(log),
		ledger.WithMetrics(a.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	if err := a.Store.Load(ctx); err != nil {
		return nil, err
	}

	if cfg.Kafka.Enabled() {
		pub, err := events.NewKafkaPublisher(cfg.Kafka, events.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		a.publisher = pub
		if err := pub.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return nil, err
		}
	}

	a.Runner, err = batch.New(a.Normalizer, a.Verifier, a.Store,
		batch.WithProgressEvery(cfg.Batch.ProgressEvery),
		batch.WithRetryBounds(cfg.Batch.MinRetryHours, cfg.Batch.MaxRetryHours),
		batch.WithPublisher(a.publisher),
		batch.WithLogger(log),
		batch.WithMetrics(a.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("batch runner: %w", err)
	}

	a.Exporter = export.New(
		export.WithTempDir(cfg.Export.TempDir),
		export.WithFilenamePrefix(cfg.Export.FilenamePrefix),
		export.WithLogger(log),
		export.WithMetrics(a.Metrics),
	)

	a.Sessions, err = session.NewManager(a.Runner, a.Exporter,
		session.WithDefaultRetryHours(cfg.Batch.DefaultRetryHours),
		session.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}

	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return nil, err
	}
	opts := []httptransport.Option{
		httptransport.WithLogger(log),
		httptransport.WithMetrics(a.Metrics, a.Registry),
		httptransport.WithDefaultExportFormat(format),
	}
	for name, check := range a.health {
		opts = append(opts, httptransport.WithHealthCheck(name, check))
	}
	a.Handler = httptransport.New(a.Sessions, a.Store, opts...)

	log.InfoContext(ctx, "engine assembled",
		"ledger_driver", cfg.Ledger.Driver,
		"ledger_records", a.Store.Len(),
		"backend", a.Verifier.BackendID(),
		"events", cfg.Kafka.Enabled(),
	)
	return a, nil
}

func (a *App) openPersister(ctx context.Context) (ledger.Persister, error) {
	cfg := a.Config
	switch cfg.Ledger.Driver {
	case config.LedgerDriverFile:
		return ledger.NewFileStore(cfg.Ledger.Path), nil
	case config.LedgerDriverSQLite:
		db, err := sqldb.Open(ctx, sqldb.DriverSQLite, cfg.Ledger.DSN, sqldb.WithMkdirAll())
		if err != nil {
			return nil, err
		}
		return a.sqlPersister(ctx, db, ledger.DialectSQLite)
	case config.LedgerDriverPostgres:
		db, err := sqldb.Open(ctx, sqldb.DriverPostgres, cfg.Ledger.DSN)
		if err != nil {
			return nil, err
		}
		return a.sqlPersister(ctx, db, ledger.DialectPostgres)
	case config.LedgerDriverRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, errors.New("redis url is required for the redis ledger driver")
		}
		a.closers = append(a.closers, client.Close)
		a.health["redis"] = client.Health
		return ledger.NewRedisStore(client, cfg.Ledger.RedisKey)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}

func (a *App) sqlPersister(ctx context.Context, db *sql.DB, dialect ledger.Dialect) (ledger.Persister, error) {
	a.closers = append(a.closers, db.Close)
	a.health["database"] = db.PingContext
	store, err := ledger.NewSQLStore(db, dialect)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Close flushes the ledger and releases connections. The first Close does
// the work; the ledger ignores later calls.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.closeResources())
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	a.publisher.Close()
	a.publisher = events.NopPublisher{}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
