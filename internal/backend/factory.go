package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"operadoras/internal/cache"
	"operadoras/internal/core"
	"operadoras/internal/middleware/metrics"
	"operadoras/internal/query"
	"operadoras/internal/service"
	"operadoras/internal/storage"
	"operadoras/internal/storage/memory"
	"operadoras/internal/storage/seed"
)

// AggregateCachePrefix namespaces aggregate entries in Redis.
const AggregateCachePrefix = "operadoras:"

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewFactory creates a new backend factory. m may be nil.
func NewFactory(logger *slog.Logger, m *metrics.Metrics) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger, metrics: m}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	matcher := query.Matcher{FoldDiacritics: config.FoldDiacritics}

	ds, seeded, err := f.loadSeed(config.SeedDir)
	if err != nil {
		return nil, err
	}

	var store service.Store
	switch config.Type {
	case MemoryBackend:
		store = memory.New(ds, matcher)
		f.logger.Info("Initialized memory backend",
			"seed_dir", config.SeedDir,
			"companies", len(ds.Companies),
			"expenses", len(ds.Expenses))
	case SQLiteBackend, PostgresBackend:
		store, err = f.createSQLBackend(ctx, config, matcher, ds, seeded)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	aggCache, stopCache := f.createCache(ctx, config)
	return &BackendResult{
		Store: store,
		Cache: aggCache,
		Cleanup: func() error {
			stopCache()
			return store.Close()
		},
	}, nil
}

// loadSeed reads the CSV fixtures. A missing directory or companies file is
// not an error: the backend starts with whatever it already holds.
func (f *DefaultFactory) loadSeed(dir string) (seed.Dataset, bool, error) {
	if dir == "" {
		return seed.Dataset{}, false, nil
	}
	if _, err := os.Stat(filepath.Join(dir, seed.CompaniesFile)); errors.Is(err, os.ErrNotExist) {
		f.logger.Warn("No seed data found, starting without fixtures", "seed_dir", dir)
		return seed.Dataset{}, false, nil
	}
	ds, err := seed.LoadDir(dir)
	if err != nil {
		return seed.Dataset{}, false, fmt.Errorf("load seed data: %w", err)
	}
	return ds, true, nil
}

func (f *DefaultFactory) createSQLBackend(ctx context.Context, config Config, matcher query.Matcher, ds seed.Dataset, seeded bool) (*storage.SQLStore, error) {
	cfg := storage.Config{
		Dialect: storage.SQLite,
		DSN:     config.SQLiteDBPath,
		Matcher: matcher,
		Logger:  f.logger.With("component", "storage"),
	}
	if config.Type == PostgresBackend {
		cfg.Dialect, cfg.DSN = storage.Postgres, config.PostgresDSN
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", config.Type, err)
	}
	if seeded {
		if err := store.Seed(ctx, ds); err != nil {
			store.Close()
			return nil, fmt.Errorf("seed %s store: %w", config.Type, err)
		}
	}

	f.logger.Info("Initialized SQL backend",
		"dialect", cfg.Dialect,
		"seeded", seeded,
		"companies", len(ds.Companies),
		"expenses", len(ds.Expenses))
	return store, nil
}

// createCache builds the aggregate cache. An unreachable Redis falls back to
// the in-process cache so the API keeps serving.
func (f *DefaultFactory) createCache(ctx context.Context, config Config) (cache.Cache[[]core.AggregatedRecord], func()) {
	var (
		c    cache.Cache[[]core.AggregatedRecord]
		stop = func() {}
	)

	switch config.Cache {
	case NoCache:
		f.logger.Info("Aggregate cache disabled")
		return cache.Nop[[]core.AggregatedRecord]{}, stop
	case RedisCache:
		client := cache.NewRedisClient(cache.RedisConfig{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			f.logger.Info("Initialized Redis aggregate cache", "addr", config.RedisAddr, "ttl", config.CacheTTL.String())
			c = cache.NewRedisCache[[]core.AggregatedRecord](client, AggregateCachePrefix, config.CacheTTL, f.logger)
			stop = func() { _ = client.Close() }
			break
		}
		_ = client.Close()
		f.logger.Warn("Redis unreachable, falling back to in-memory cache", "addr", config.RedisAddr, "error", err)
		fallthrough
	default:
		maxItems := config.CacheMaxItems
		if maxItems <= 0 {
			maxItems = defaultCacheMaxItems
		}
		lru := cache.NewLRUCache[[]core.AggregatedRecord](maxItems, config.CacheTTL)
		manager := cache.NewManager(f.logger)
		manager.Register(lru)
		manager.StartCleanup(config.CacheTTL)
		c, stop = lru, manager.Stop
		f.logger.Info("Initialized in-memory aggregate cache", "ttl", config.CacheTTL.String())
	}

	if f.metrics != nil {
		c = metrics.WrapCache(c, f.metrics)
	}
	return c, stop
}
