package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Sternrassler/event-ingest/internal/config"
	"github.com/Sternrassler/event-ingest/internal/migrations"
	"github.com/Sternrassler/event-ingest/pkg/checkpoint"
	"github.com/Sternrassler/event-ingest/pkg/logging"
	"github.com/Sternrassler/event-ingest/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the process-wide dependencies. Everything opened here is released
// by Close.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	db          *sql.DB
	redis       *redis.Client
	events      *store.PostgresStore
	checkpoints checkpoint.Store
}

func openApp(ctx context.Context, cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(cfg.LoggingConfig())

	db, err := store.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		events: store.NewPostgresStore(db, logger),
	}

	if err := a.openCheckpoints(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openCheckpoints(ctx context.Context) error {
	switch a.cfg.Checkpoint.Backend {
	case config.BackendRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
		}
		a.checkpoints = checkpoint.NewRedisStore(a.redis, a.cfg.Checkpoint.Stream)
	default:
		a.checkpoints = checkpoint.NewPostgresStore(a.db)
	}

	a.logger.Info().
		Str("backend", a.cfg.Checkpoint.Backend).
		Str("stream", a.cfg.Checkpoint.Stream).
		Msg("Checkpoint store ready")
	return nil
}

// prepare applies migrations and makes sure the checkpoint record exists.
func (a *app) prepare(ctx context.Context, autoMigrate bool) error {
	if err := migrations.Run(a.db, autoMigrate, a.logger); err != nil {
		return err
	}
	if pg, ok := a.checkpoints.(*checkpoint.PostgresStore); ok {
		if err := pg.Ensure(ctx); err != nil {
			return err
		}
	}
	return nil
}

// health reports whether the backing stores are reachable.
func (a *app) health(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close database")
	}
}
