package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tradeledger/backend/internal/cache"
	"tradeledger/backend/internal/config"
	"tradeledger/backend/internal/ledger"
	"tradeledger/backend/internal/lock"
	"tradeledger/backend/internal/service"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/store/memory"
	pgstore "tradeledger/backend/internal/store/postgres"
	sqlitestore "tradeledger/backend/internal/store/sqlite"
)

// App holds the wired components shared by the server and the CLI.
type App struct {
	Repo    store.Repository
	Engine  *ledger.Engine
	Service *service.Service
	Backend string

	closers []func() error
	logger  logrus.FieldLogger
}

// Open picks the repository, lock and summary cache from cfg. Postgres wins
// over SQLite; with neither set the ledger lives in memory. Redis is
// optional for a single process: when it is unreachable the process falls
// back to local locking and no summary cache. A Postgres ledger is shared
// between instances, so a configured but unreachable Redis is an error there.
func Open(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*App, error) {
	app := &App{logger: logger.WithField("module", "bootstrap")}

	var locker lock.Locker = lock.NewLocal()
	var summaries cache.SummaryCache = cache.NoopSummaryCache{}
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		switch {
		case err != nil && cfg.DatabaseURL != "":
			_ = client.Close()
			return nil, fmt.Errorf("redis unavailable and DATABASE_URL is set: %w", err)
		case err != nil:
			app.logger.Warnf("redis unavailable (%v), using local lock and no summary cache", err)
			_ = client.Close()
		default:
			locker = lock.NewRedis(client, time.Duration(cfg.LockTTLSeconds)*time.Second, logger)
			summaries = cache.NewRedisSummaryCache(client)
			app.closers = append(app.closers, client.Close)
			app.logger.Info("lock and summary cache: redis")
		}
	} else {
		if cfg.DatabaseURL != "" {
			app.logger.Warn("REDIS_ADDR not set, instances sharing this database rely on stock checks at commit")
		}
		app.logger.Info("lock: local, summary cache: none")
	}

	repo, err := app.openRepository(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Repo = repo

	app.Engine = ledger.NewEngine(repo, locker, ledger.NewCapitalLinker(cfg.DisplayCurrency), logger)
	app.Service = service.New(repo, app.Engine, summaries, logger, service.Options{
		LowStockThreshold: cfg.LowStockThreshold,
		SummaryTTL:        time.Duration(cfg.SummaryCacheTTLSeconds) * time.Second,
	})
	return app, nil
}

func (a *App) openRepository(ctx context.Context, cfg config.Config) (store.Repository, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		if cfg.AutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		a.closers = append(a.closers, pg.Close)
		a.Backend = "postgres"
		a.logger.Info("repository: postgres")
		return pg, nil
	case cfg.SQLitePath != "":
		lite, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite %s: %w", cfg.SQLitePath, err)
		}
		a.closers = append(a.closers, lite.Close)
		a.Backend = "sqlite"
		a.logger.Info("repository: sqlite " + cfg.SQLitePath)
		return lite, nil
	default:
		a.Backend = "memory"
		a.logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil
	}
}

// Close releases every resource in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			config.LogError(a.logger, "bootstrap", "Close", "close resource", nil, err)
		}
	}
	a.closers = nil
}
