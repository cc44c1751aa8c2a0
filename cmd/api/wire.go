package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/bryanwahyu/supplement-advisor/internal/application"
	appanalysis "github.com/bryanwahyu/supplement-advisor/internal/application/analysis"
	"github.com/bryanwahyu/supplement-advisor/internal/config"
	domaincatalog "github.com/bryanwahyu/supplement-advisor/internal/domain/catalog"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/ai/openai"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/ai/rules"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/cache"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/catalog"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/db/memory"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/db/migrations"
	mysqlp "github.com/bryanwahyu/supplement-advisor/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/supplement-advisor/internal/infra/db/postgres"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/storage"
	"github.com/bryanwahyu/supplement-advisor/internal/middleware"
)

// app is the wired service plus whatever must be closed on exit.
type app struct {
	svc      *appanalysis.Service
	metrics  *middleware.Metrics
	checkers map[string]middleware.HealthChecker
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// seeder is implemented by the SQL catalog repositories.
type seeder interface {
	Seed(ctx context.Context, entries []domaincatalog.Entry) error
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) (*app, error) {
	a := &app{checkers: make(map[string]middleware.HealthChecker)}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = middleware.NewMetrics(reg)

	svc := &appanalysis.Service{
		Rules:    rules.New(),
		Observer: a.metrics,
		Clock:    application.SystemClock{},
		Logger:   logger,
	}

	// repository + catalog
	driver := cfg.DatabaseDriver()
	switch driver {
	case config.DriverMemory:
		svc.Repo = memory.NewAnalysisRepository(memory.DefaultLimit)
		svc.Catalog = catalog.NewStatic(nil)
	default:
		db, err := openDB(ctx, driver, cfg.DatabaseDSN())
		if err != nil {
			return nil, fmt.Errorf("%s connect error: %w", driver, err)
		}
		a.closers = append(a.closers, db.Close)
		a.checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}

		if migrate {
			m, err := migrations.New(db, driver, logger)
			if err != nil {
				return nil, err
			}
			if err := m.Up(); err != nil {
				return nil, err
			}
		}

		switch driver {
		case config.DriverMySQL:
			svc.Repo = mysqlp.NewAnalysisRepository(db)
			if cfg.Catalog.Source == config.CatalogDatabase {
				svc.Catalog = mysqlp.NewCatalogRepository(db)
			}
		case config.DriverPostgres:
			svc.Repo = pgp.NewAnalysisRepository(db)
			if cfg.Catalog.Source == config.CatalogDatabase {
				svc.Catalog = pgp.NewCatalogRepository(db)
			}
		}
		if svc.Catalog == nil {
			svc.Catalog = catalog.NewStatic(nil)
		}
	}

	// cache
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		cli, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cli.Close)
		rc := cache.NewRedis(cli, cache.DefaultPrefix, cfg.Cache.TTL)
		a.checkers["redis"] = rc
		svc.Cache = rc
	default:
		svc.Cache = cache.NewLRU(cfg.Cache.Size, cfg.Cache.TTL)
	}

	// report archive
	if cfg.Minio.Enabled {
		store, err := storage.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return nil, fmt.Errorf("minio init error: %w", err)
		}
		a.checkers["minio"] = store
		svc.Archive = store
	}

	client := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: float32(cfg.LLM.Temperature),
		Timeout:     cfg.LLM.Timeout,
	})
	if !client.Configured() {
		logger.Warn("DEEPSEEK_API_KEY not set, recommendations will come from the rule engine")
	}
	svc.AI = client

	a.svc = svc
	ok = true
	return a, nil
}

func openDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case config.DriverMySQL:
		return mysqlp.Connect(ctx, dsn)
	case config.DriverPostgres:
		return pgp.Connect(ctx, dsn)
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

func runMigrations(ctx context.Context, up bool) error {
	driver := cfg.DatabaseDriver()
	if driver == config.DriverMemory {
		return errors.New("no database configured: set DATABASE_URL")
	}
	db, err := openDB(ctx, driver, cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := migrations.New(db, driver, log)
	if err != nil {
		return err
	}
	if !up {
		return m.Down()
	}
	if err := m.Up(); err != nil {
		return err
	}
	if !seedCatalog {
		return nil
	}

	var s seeder = mysqlp.NewCatalogRepository(db)
	if driver == config.DriverPostgres {
		s = pgp.NewCatalogRepository(db)
	}
	entries := catalog.Default()
	if err := s.Seed(ctx, entries); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	log.Info("catalog seeded", zap.Int("entries", len(entries)))
	return nil
}
