package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harun/ideascout/pkg/conversation"
)

var (
	// ErrSessionExists is returned by Create for a session id already in the store.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is returned for operations on a session that was never created.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSessionID is returned for empty or unsafe session ids.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Checkpoint is the conversation snapshot taken after one node execution.
type Checkpoint struct {
	SessionID string                 `json:"session_id"`
	Step      int                    `json:"step"`
	Node      string                 `json:"node"`
	Phase     string                 `json:"phase"`
	Messages  []conversation.Message `json:"messages"`
	CreatedAt time.Time              `json:"created_at"`
}

// Store is a session-keyed checkpoint store.
type Store interface {
	// Create registers a fresh session with an empty history.
	Create(ctx context.Context, sessionID string) error
	// Save appends a checkpoint to an existing session.
	Save(ctx context.Context, cp Checkpoint) error
	// Latest returns the most recent checkpoint, or nil when the session has none yet.
	Latest(ctx context.Context, sessionID string) (*Checkpoint, error)
	// History returns all checkpoints of a session in save order.
	History(ctx context.Context, sessionID string) ([]Checkpoint, error)
	// Delete removes a session and its checkpoints.
	Delete(ctx context.Context, sessionID string) error
	// Close releases backend resources.
	Close() error
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidateSessionID validates the session id for use as a storage key
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidSessionID)
	}
	if strings.Contains(sessionID, "..") {
		return fmt.Errorf("%w: cannot contain '..'", ErrInvalidSessionID)
	}
	if strings.ContainsAny(sessionID, "/\\:*?\x00 ") {
		return fmt.Errorf("%w: contains reserved characters", ErrInvalidSessionID)
	}
	return nil
}

// Clone returns a deep copy of the checkpoint
func (c Checkpoint) Clone() Checkpoint {
	out := c
	out.Messages = make([]conversation.Message, len(c.Messages))
	for i, msg := range c.Messages {
		out.Messages[i] = msg.Clone()
	}
	return out
}

func prepare(cp Checkpoint, now func() time.Time) (Checkpoint, error) {
	if err := ValidateSessionID(cp.SessionID); err != nil {
		return Checkpoint{}, err
	}
	if err := conversation.Validate(cp.Messages); err != nil {
		return Checkpoint{}, fmt.Errorf("invalid checkpoint state: %w", err)
	}
	cp = cp.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now().UTC()
	}
	return cp, nil
}
