package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps checkpoints in SQLite, one row per checkpoint.
type SQLiteStore struct {
	db          *sql.DB
	maxSessions int
	now         func() time.Time
}

// NewSQLiteStore opens a SQLite store; an empty dsn uses a private in-memory database
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// WithMaxSessions caps retained sessions; creating one past the cap deletes the oldest
// with their checkpoints. Zero keeps every session.
func (s *SQLiteStore) WithMaxSessions(n int) *SQLiteStore {
	s.maxSessions = n
	return s
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		step INTEGER NOT NULL,
		node TEXT NOT NULL,
		phase TEXT NOT NULL,
		messages TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Create registers a fresh session
func (s *SQLiteStore) Create(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}

	exists, err := s.exists(ctx, sessionID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at) VALUES (?, ?)`,
		sessionID, s.now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if err := s.prune(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

// prune deletes sessions beyond the cap, oldest first by insertion order.
func (s *SQLiteStore) prune(ctx context.Context, tx *sql.Tx) error {
	if s.maxSessions <= 0 {
		return nil
	}

	const stale = `SELECT session_id FROM sessions ORDER BY rowid DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE session_id IN (`+stale+`)`, s.maxSessions,
	); err != nil {
		return fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id IN (`+stale+`)`, s.maxSessions,
	); err != nil {
		return fmt.Errorf("failed to prune sessions: %w", err)
	}
	return nil
}

// Save appends a checkpoint
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	cp, err := prepare(cp, s.now)
	if err != nil {
		return err
	}

	exists, err := s.exists(ctx, cp.SessionID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, cp.SessionID)
	}

	messages, err := json.Marshal(cp.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (session_id, step, node, phase, messages, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		cp.SessionID, cp.Step, cp.Node, cp.Phase, string(messages), cp.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

// Latest returns the most recent checkpoint
func (s *SQLiteStore) Latest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	exists, err := s.exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, step, node, phase, messages, created_at FROM checkpoints
		 WHERE session_id = ? ORDER BY id DESC LIMIT 1`,
		sessionID,
	)

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// History returns all checkpoints in save order
func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]Checkpoint, error) {
	exists, err := s.exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, step, node, phase, messages, created_at FROM checkpoints
		 WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	history := []Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}
	return history, nil
}

// Delete removes a session and its checkpoints
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return tx.Commit()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) exists(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up session: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (Checkpoint, error) {
	var (
		cp        Checkpoint
		messages  string
		createdAt int64
	)
	if err := row.Scan(&cp.SessionID, &cp.Step, &cp.Node, &cp.Phase, &messages, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Checkpoint{}, err
		}
		return Checkpoint{}, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &cp.Messages); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to decode messages: %w", err)
	}
	cp.CreatedAt = time.Unix(0, createdAt).UTC()
	return cp, nil
}
