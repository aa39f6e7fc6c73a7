package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/ideascout/internal/observability"
	"github.com/harun/ideascout/internal/tracing"
)

// Config selects and configures a backend
type Config struct {
	Backend string // memory, sqlite, redis
	DSN     string

	// Sessions kept by the memory and sqlite backends; zero keeps all. Redis expires by TTL.
	MaxSessions int
	Redis       RedisConfig
	Logger      zerolog.Logger
}

// Open creates the configured store, instrumented with spans and write metrics
func Open(ctx context.Context, cfg Config) (Store, error) {
	observability.EnsureRegistered()

	backend := cfg.Backend
	if backend == "" {
		backend = "memory"
	}

	var (
		store Store
		err   error
	)
	switch backend {
	case "memory":
		store = NewMemoryStore().WithMaxSessions(cfg.MaxSessions)
	case "sqlite":
		var sqlite *SQLiteStore
		if sqlite, err = NewSQLiteStore(cfg.DSN); err == nil {
			store = sqlite.WithMaxSessions(cfg.MaxSessions)
		}
	case "redis":
		store, err = NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported checkpoint backend: %s", backend)
	}
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info().
		Str("backend", backend).
		Int("max_sessions", cfg.MaxSessions).
		Msg("Checkpoint store opened")

	return &instrumentedStore{Store: store, backend: backend}, nil
}

type instrumentedStore struct {
	Store
	backend string
}

func (s *instrumentedStore) Create(ctx context.Context, sessionID string) error {
	ctx, span := tracing.StartSpan(ctx, "ideascout.checkpoint", "checkpoint.create",
		attribute.String("session_id", sessionID),
		attribute.String("backend", s.backend),
	)
	defer span.End()

	err := s.Store.Create(ctx, sessionID)
	tracing.RecordError(span, err)
	return err
}

func (s *instrumentedStore) Save(ctx context.Context, cp Checkpoint) error {
	ctx, span := tracing.StartSpan(ctx, "ideascout.checkpoint", "checkpoint.save",
		attribute.String("session_id", cp.SessionID),
		attribute.String("backend", s.backend),
		attribute.Int("step", cp.Step),
		attribute.String("node", cp.Node),
	)
	defer span.End()

	start := time.Now()
	err := s.Store.Save(ctx, cp)
	observability.RecordCheckpointWrite(s.backend, time.Since(start), err == nil)
	tracing.RecordError(span, err)
	return err
}
