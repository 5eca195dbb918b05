package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/go-auth-service/internal/config"
	"github.com/pribylovaa/go-auth-service/internal/storage"
	"github.com/pribylovaa/go-auth-service/internal/storage/memory"
	"github.com/pribylovaa/go-auth-service/internal/storage/mongo"
	"github.com/pribylovaa/go-auth-service/internal/storage/postgres"
)

// stores — выбранные хранилища и их жизненный цикл.
type stores struct {
	users  storage.UserStorage
	roles  storage.RoleStorage
	tokens storage.RefreshTokenStorage

	pings   []func(context.Context) error
	closers []func()
}

func (s *stores) ping(ctx context.Context) error {
	var errs []error
	for _, p := range s.pings {
		errs = append(errs, p(ctx))
	}

	return errors.Join(errs...)
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores подключает основное хранилище и, если задано отдельно,
// хранилище refresh-токенов.
func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	st := &stores{}

	var pg *postgres.Storage
	openPostgres := func() (*postgres.Storage, error) {
		if pg != nil {
			return pg, nil
		}

		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := postgres.Migrate(mctx, cfg.DB.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("postgres_migrated")

		dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
		defer dbCancel()
		p, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Info("postgres_connected")

		pg = p
		st.pings = append(st.pings, p.Ping)
		st.closers = append(st.closers, p.Close)

		return p, nil
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		m := memory.New()
		st.users, st.roles, st.tokens = m, m, m
		log.Warn("storage_memory", slog.String("note", "data is lost on restart"))
	default:
		p, err := openPostgres()
		if err != nil {
			st.close()
			return nil, err
		}
		st.users, st.roles, st.tokens = p, p, p
	}

	switch cfg.Storage.TokenStoreDriver() {
	case config.DriverMongo:
		mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		ts, err := mongo.New(mctx, cfg.Mongo.URL, cfg.Mongo.Database)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		log.Info("mongo_connected", slog.String("database", cfg.Mongo.Database))

		st.tokens = ts
		st.pings = append(st.pings, ts.Ping)
		st.closers = append(st.closers, func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ts.Close(cctx)
		})
	case config.DriverPostgres:
		p, err := openPostgres()
		if err != nil {
			st.close()
			return nil, err
		}
		st.tokens = p
	case config.DriverMemory:
		if cfg.Storage.Driver != config.DriverMemory {
			st.tokens = memory.New()
		}
	}

	return st, nil
}
