package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound indicates the session or chunk does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateChunk indicates a chunk with the same (session, index)
	// already exists.
	ErrDuplicateChunk = errors.New("store: duplicate chunk index")

	// ErrStateConflict indicates a guarded transition found the session in
	// a state it is not allowed to move from.
	ErrStateConflict = errors.New("store: state conflict")
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	owner_id         TEXT NOT NULL,
	state            TEXT NOT NULL,
	provider         TEXT NOT NULL,
	notes            TEXT NOT NULL DEFAULT '',
	audio_path       TEXT NOT NULL DEFAULT '',
	transcript       TEXT NOT NULL DEFAULT '',
	duration_seconds REAL NOT NULL DEFAULT 0,
	created_at       REAL NOT NULL,
	updated_at       REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, created_at);

CREATE TABLE IF NOT EXISTS chunks (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	idx              INTEGER NOT NULL,
	object_path      TEXT NOT NULL,
	duration_seconds REAL,
	uploaded_at      REAL NOT NULL,
	UNIQUE(session_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id, idx);
`

// Store provides durable access to sessions and chunks.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new session in the active state and returns it. The
// identifier is assigned here and never reused.
func (s *Store) Create(ctx context.Context, ownerID, provider string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		State:     StateActive,
		Provider:  provider,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, owner_id, state, provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.OwnerID, string(sess.State), sess.Provider, unixFloat(now), unixFloat(now))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return sess, nil
}

// Get returns the session with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, state, provider, notes, audio_path, transcript,
		       duration_seconds, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`, id)

	return scanSession(row)
}

// ListByOwner returns all sessions owned by ownerID, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, state, provider, notes, audio_path, transcript,
		       duration_seconds, created_at, updated_at
		FROM sessions
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SetState performs a guarded state transition: the update applies only when
// the current state is one of allowedFrom. Returns ErrStateConflict when the
// session exists but is in a disallowed state.
func (s *Store) SetState(ctx context.Context, id string, to SessionState, allowedFrom ...SessionState) error {
	if len(allowedFrom) == 0 {
		return fmt.Errorf("store: transition to %s requires at least one allowed source state", to)
	}

	placeholders := strings.Repeat("?,", len(allowedFrom))
	placeholders = placeholders[:len(placeholders)-1]

	args := []any{string(to), unixFloat(time.Now()), id}
	for _, st := range allowedFrom {
		args = append(args, string(st))
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE sessions SET state = ?, updated_at = ?
		WHERE id = ? AND state IN (%s)
	`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}

	return s.checkAffected(ctx, res, id)
}

// MarkEnded atomically transitions the session to ended and records the
// encrypted audio reference, encrypted transcript, and total duration. The
// transition is guarded so a session can only be ended once.
func (s *Store) MarkEnded(ctx context.Context, id, audioPath, transcript string, durationSeconds float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET state = ?, audio_path = ?, transcript = ?, duration_seconds = ?, updated_at = ?
		WHERE id = ? AND state IN (?, ?)
	`, string(StateEnded), audioPath, transcript, durationSeconds, unixFloat(time.Now()),
		id, string(StateActive), string(StatePaused))
	if err != nil {
		return fmt.Errorf("mark ended: %w", err)
	}

	return s.checkAffected(ctx, res, id)
}

// UpdateNotes replaces the free-text notes. Legal in any state.
func (s *Store) UpdateNotes(ctx context.Context, id, notes string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET notes = ?, updated_at = ? WHERE id = ?
	`, notes, unixFloat(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update notes: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddChunk inserts a chunk record. A second chunk at the same (session,
// index) fails with ErrDuplicateChunk; the schema's uniqueness constraint is
// the authority.
func (s *Store) AddChunk(ctx context.Context, sessionID string, index int, objectPath string, durationSeconds *float64) (*Chunk, error) {
	now := time.Now()
	chunk := &Chunk{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Index:           index,
		ObjectPath:      objectPath,
		DurationSeconds: durationSeconds,
		UploadedAt:      now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, session_id, idx, object_path, duration_seconds, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, chunk.ID, chunk.SessionID, chunk.Index, chunk.ObjectPath, chunk.DurationSeconds, unixFloat(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateChunk
		}
		return nil, fmt.Errorf("insert chunk: %w", err)
	}

	return chunk, nil
}

// Chunks returns all chunks for a session ordered by ascending index.
func (s *Store) Chunks(ctx context.Context, sessionID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, idx, object_path, duration_seconds, uploaded_at
		FROM chunks
		WHERE session_id = ?
		ORDER BY idx ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		var duration sql.NullFloat64
		var uploadedAt float64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Index, &c.ObjectPath, &duration, &uploadedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if duration.Valid {
			d := duration.Float64
			c.DurationSeconds = &d
		}
		c.UploadedAt = timeFromUnix(uploadedAt)
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// Delete removes a session and all of its chunks in one transaction. The
// chunks are deleted explicitly first so the parent-owns-children contract
// holds even if foreign key enforcement is off.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// checkAffected distinguishes "session missing" from "session in the wrong
// state" after a guarded update that touched zero rows.
func (s *Store) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := s.Get(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return ErrStateConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var state string
	var createdAt, updatedAt float64

	err := row.Scan(&sess.ID, &sess.OwnerID, &state, &sess.Provider, &sess.Notes,
		&sess.AudioPath, &sess.Transcript, &sess.DurationSeconds, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.State = SessionState(state)
	sess.CreatedAt = timeFromUnix(createdAt)
	sess.UpdatedAt = timeFromUnix(updatedAt)
	return &sess, nil
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
