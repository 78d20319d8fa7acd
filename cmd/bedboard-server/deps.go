package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/bedboard/internal/config"
	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/internal/platform/cache"
	"github.com/ehr/bedboard/internal/platform/changefeed"
	"github.com/ehr/bedboard/internal/platform/db"
)

// infra holds the external connections shared by every command. Fields
// are nil when the dependency is not configured.
type infra struct {
	cfg    *config.Config
	logger zerolog.Logger
	loc    *time.Location

	pool     *pgxpool.Pool
	redis    *redis.Client
	bus      *changefeed.Bus
	embedded *changefeed.EmbeddedServer

	closers []func()
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	if cfg.UsesDevSigningKey() {
		logger.Warn().Msg("using the development signing key; set AUTH_SIGNING_KEY outside development")
	}
	return cfg, logger, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

// connect opens the database and, when withFeed is set, Redis and NATS.
// Without NATS_URL an embedded NATS server is started.
func connect(ctx context.Context, withFeed bool) (*infra, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	in := &infra{cfg: cfg, logger: logger, loc: loc}

	in.pool, err = openDatabase(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	in.closers = append(in.closers, in.pool.Close)
	logger.Info().Msg("connected to database")

	if !withFeed {
		return in, nil
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		in.redis = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = in.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = in.redis.Close()
			in.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		in.closers = append(in.closers, func() { _ = in.redis.Close() })
		logger.Info().Msg("connected to redis")
	}

	if cfg.NATSURL != "" {
		in.bus, err = changefeed.Connect(cfg.NATSURL, logger)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.closers = append(in.closers, in.bus.Close)
	} else {
		in.embedded, err = changefeed.NewEmbeddedServer(cfg.NATSStoreDir, logger)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.bus = in.embedded.Bus()
		in.closers = append(in.closers, in.embedded.Shutdown)
	}
	if err := in.bus.EnsureStream(ctx); err != nil {
		logger.Warn().Err(err).Msg("change stream unavailable, publishing without persistence")
	}

	return in, nil
}

// Close releases connections in reverse order of opening.
func (in *infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
	in.closers = nil
}

func (in *infra) publisher() changefeed.Publisher {
	if in.bus == nil {
		return changefeed.Discard
	}
	return in.bus
}

func (in *infra) snapshots() cache.Snapshots {
	if in.redis == nil {
		return cache.NewMemorySnapshots()
	}
	return cache.NewRedisSnapshots(in.redis)
}

func (in *infra) revocations() auth.RevocationStore {
	if in.redis == nil {
		store := auth.NewMemoryRevocationStore()
		in.closers = append(in.closers, store.Close)
		return store
	}
	return auth.NewRedisRevocationStore(in.redis)
}

func (in *infra) healthChecks() map[string]db.Check {
	checks := map[string]db.Check{
		"database": func(ctx context.Context) error { return in.pool.Ping(ctx) },
	}
	if in.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return in.redis.Ping(ctx).Err() }
	}
	if in.bus != nil {
		checks["nats"] = in.bus.Check
	}
	return checks
}
