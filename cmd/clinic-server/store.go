package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/chat-incom/agendamento/internal/config"
	"github.com/chat-incom/agendamento/internal/domain/clinic"
	"github.com/chat-incom/agendamento/internal/platform/db"
)

// store is the repository the server runs on plus what the status endpoints
// and CLI commands need to know about it.
type store struct {
	// Repo serves requests. For remote backends it falls back to the offline
	// snapshot for reads.
	Repo clinic.Repository
	// Primary is the configured backend without the fallback.
	Primary  clinic.Repository
	Pool     *pgxpool.Pool
	Degraded func() bool
}

func (s *store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// openStore connects the configured backend. A backend that cannot be reached
// at startup does not stop the server: it is replaced by a repository that
// reports ErrPersistenceUnavailable, so reads come from the snapshot and writes
// fail until the process is restarted against a healthy store.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*store, error) {
	snapshot, err := clinic.LoadSnapshot(cfg.OfflineSnapshot)
	if err != nil {
		return nil, err
	}

	s := &store{}
	switch cfg.StoreBackend {
	case config.BackendMemory:
		repo := snapshot.Repository()
		s.Repo, s.Primary = repo, repo
		logger.Info().Msg("using in-memory store seeded from the snapshot")
		return s, nil

	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
			MaxConns:       cfg.DBMaxConns,
			MinConns:       cfg.DBMinConns,
			ConnectTimeout: 5 * time.Second,
		})
		if err != nil {
			logger.Error().Err(err).Msg("database unreachable, starting in offline mode")
			s.Primary = clinic.NewUnavailableRepository(config.BackendPostgres)
		} else {
			s.Pool = pool
			s.Primary = clinic.NewPostgresRepository(pool)
			logger.Info().Msg("connected to database")
		}

	case config.BackendSupabase:
		repo, err := clinic.NewSupabaseRepository(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			logger.Error().Err(err).Msg("supabase client failed, starting in offline mode")
			s.Primary = clinic.NewUnavailableRepository(config.BackendSupabase)
		} else {
			s.Primary = repo
			logger.Info().Str("url", cfg.SupabaseURL).Msg("using supabase store")
		}

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	fb := clinic.NewFallbackRepository(s.Primary, snapshot.Repository(), logger)
	s.Repo = fb
	s.Degraded = fb.Degraded
	return s, nil
}
