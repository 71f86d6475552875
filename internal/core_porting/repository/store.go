package repository

import (
	"context"
	"log/slog"

	"github.com/numberport/golang_services/internal/core_porting/repository/memory"
	"github.com/numberport/golang_services/internal/core_porting/repository/postgres"
	"github.com/numberport/golang_services/internal/platform/database"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Store bundles the repositories of one storage backend. The backend is chosen
// once at startup and injected into every component.
type Store struct {
	Backend       string
	Requests      PortingRequestRepository
	Notifications NotificationRepository
	Rules         RulesRepository
	Relay         RelayRepository
	Failures      FailureLogRepository

	close func()
}

// Close releases the backend's resources.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

func NewMemoryStore() *Store {
	db := memory.NewDB()
	return &Store{
		Backend:       BackendMemory,
		Requests:      memory.NewPortingRequestRepository(db),
		Notifications: memory.NewNotificationRepository(db),
		Rules:         memory.NewRulesRepository(db),
		Relay:         memory.NewRelayRepository(db),
		Failures:      memory.NewFailureLogRepository(db),
	}
}

// Open connects to PostgreSQL and falls back to the in-memory store when the
// connection health check fails.
func Open(ctx context.Context, dsn string, opts database.PoolOptions, logger *slog.Logger) *Store {
	pool, err := database.NewDBPool(ctx, dsn, opts)
	if err != nil {
		logger.WarnContext(ctx, "PostgreSQL unavailable, using in-memory store", "error", err)
		return NewMemoryStore()
	}
	logger.InfoContext(ctx, "Database connection pool initialized", "max_conns", pool.Config().MaxConns)
	return &Store{
		Backend:       BackendPostgres,
		Requests:      postgres.NewPgPortingRequestRepository(pool, logger),
		Notifications: postgres.NewPgNotificationRepository(pool, logger),
		Rules:         postgres.NewPgRulesRepository(pool, logger),
		Relay:         postgres.NewPgRelayRepository(pool, logger),
		Failures:      postgres.NewPgFailureLogRepository(pool, logger),
		close:         pool.Close,
	}
}
