package store

import (
	"context"
	"log/slog"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	DSN     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// New opens the configured backend and verifies it is reachable.
func New(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		s   Store
		err error
	)

	switch opts.Backend {
	case "", "memory":
		s = NewMemoryStore()
	case "redis":
		s, err = NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	case "postgres", "postgresql":
		s, err = NewPostgresStore(ctx, opts.DSN)
	case "mysql":
		s, err = NewMySQLStore(ctx, opts.DSN)
	case "mongodb", "mongo":
		s, err = NewMongoStore(ctx, opts.DSN)
	default:
		return nil, ErrUnsupportedBackend
	}
	if err != nil {
		return nil, err
	}

	logger.Info("store ready", "backend", backendName(opts.Backend))
	return s, nil
}

func backendName(backend string) string {
	if backend == "" {
		return "memory"
	}
	return backend
}
