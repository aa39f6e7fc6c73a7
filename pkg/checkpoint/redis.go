package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "ideascout:checkpoint"

// RedisConfig configures the Redis store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL expires a session's keys after its last write; zero keeps them.
	TTL time.Duration
}

// RedisStore keeps each session as a marker key plus a list of JSON checkpoints.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	if pong != "PONG" {
		client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}

	return NewRedisStoreWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *RedisStore) metaKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:meta", s.prefix, sessionID)
}

func (s *RedisStore) historyKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:history", s.prefix, sessionID)
}

// Create registers a fresh session
func (s *RedisStore) Create(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, s.metaKey(sessionID), strconv.FormatInt(s.now().UnixNano(), 10), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}
	return nil
}

// Save appends a checkpoint
func (s *RedisStore) Save(ctx context.Context, cp Checkpoint) error {
	cp, err := prepare(cp, s.now)
	if err != nil {
		return err
	}

	if err := s.ensureExists(ctx, cp.SessionID); err != nil {
		return err
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.historyKey(cp.SessionID), data)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.historyKey(cp.SessionID), s.ttl)
			pipe.Expire(ctx, s.metaKey(cp.SessionID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append checkpoint: %w", err)
	}
	return nil
}

// Latest returns the most recent checkpoint
func (s *RedisStore) Latest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	if err := s.ensureExists(ctx, sessionID); err != nil {
		return nil, err
	}

	val, err := s.client.LIndex(ctx, s.historyKey(sessionID), -1).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal([]byte(val), &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &cp, nil
}

// History returns all checkpoints in save order
func (s *RedisStore) History(ctx context.Context, sessionID string) ([]Checkpoint, error) {
	if err := s.ensureExists(ctx, sessionID); err != nil {
		return nil, err
	}

	vals, err := s.client.LRange(ctx, s.historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}

	history := make([]Checkpoint, 0, len(vals))
	for _, val := range vals {
		var cp Checkpoint
		if err := json.Unmarshal([]byte(val), &cp); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		history = append(history, cp)
	}
	return history, nil
}

// Delete removes a session and its checkpoints
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	n, err := s.client.Del(ctx, s.metaKey(sessionID), s.historyKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) ensureExists(ctx context.Context, sessionID string) error {
	n, err := s.client.Exists(ctx, s.metaKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}
