package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leonj1/scribe/internal/audio"
	"github.com/leonj1/scribe/internal/crypto"
	"github.com/leonj1/scribe/internal/metrics"
	"github.com/leonj1/scribe/internal/storage"
	"github.com/leonj1/scribe/internal/store"
	"github.com/leonj1/scribe/internal/transcription"
)

// Manager owns the session state machine and drives the finish pipeline.
type Manager struct {
	store       *store.Store
	objects     storage.Store
	assembler   *audio.Assembler
	crypto      *crypto.Service
	transcriber transcription.Transcriber
	metrics     *metrics.Metrics
	logger      *slog.Logger

	defaultProvider string
	locks           *lockTable
}

// Config contains manager construction parameters.
type Config struct {
	Store           *store.Store
	Objects         storage.Store
	Crypto          *crypto.Service
	Transcriber     transcription.Transcriber
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
	DefaultProvider string
}

// View is a session prepared for display: the transcript is decrypted when
// possible. When decryption fails the stored ciphertext is surfaced as-is
// with TranscriptDecrypted=false rather than failing the read.
type View struct {
	Session             *store.Session
	Transcript          string
	TranscriptDecrypted bool
}

// FinishResult carries the ended session and the plaintext transcript, which
// is returned to the immediate caller of finish exactly once.
type FinishResult struct {
	Session    *store.Session
	Transcript string
}

// NewManager creates a session lifecycle manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil || cfg.Objects == nil || cfg.Crypto == nil || cfg.Transcriber == nil {
		return nil, fmt.Errorf("session: store, objects, crypto, and transcriber are required")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "whisper"
	}

	return &Manager{
		store:           cfg.Store,
		objects:         cfg.Objects,
		assembler:       audio.NewAssembler(cfg.Objects),
		crypto:          cfg.Crypto,
		transcriber:     cfg.Transcriber,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		defaultProvider: cfg.DefaultProvider,
		locks:           newLockTable(),
	}, nil
}

// Create starts a new recording session in the active state.
func (m *Manager) Create(ctx context.Context, ownerID, provider string) (*store.Session, error) {
	if provider == "" {
		provider = m.defaultProvider
	}

	sess, err := m.store.Create(ctx, ownerID, provider)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if m.metrics != nil {
		m.metrics.SessionsCreated.Inc()
	}

	m.logger.Info("Session created",
		slog.String("session_id", sess.ID),
		slog.String("owner_id", ownerID),
		slog.String("provider", provider),
	)

	return sess, nil
}

// AppendChunk stores one sequentially-indexed audio chunk. Valid only while
// the session is active; appending to a paused session is illegal and
// requires an explicit resume first. Duration probing failures are recorded
// as unknown, never fatal to the append.
func (m *Manager) AppendChunk(ctx context.Context, ownerID, sessionID string, index int, data []byte) (*store.Chunk, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: chunk index must be non-negative", ErrInvalidState)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("chunk data cannot be empty")
	}

	unlock := m.locks.acquire(sessionID)
	defer unlock()

	sess, err := m.getOwned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.State != store.StateActive {
		return nil, fmt.Errorf("%w: cannot append chunk in state %s", ErrInvalidState, sess.State)
	}

	var durationPtr *float64
	if seconds, ok := audio.ProbeDuration(data); ok {
		durationPtr = &seconds
	} else {
		m.logger.Warn("Chunk duration probe failed, recording as unknown",
			slog.String("session_id", sessionID),
			slog.Int("chunk_index", index),
		)
	}

	// Object path carries a fresh id so a duplicate-index upload can never
	// overwrite an already-stored chunk's bytes.
	objectPath := fmt.Sprintf("sessions/%s/chunks/%04d_%s.wav", sessionID, index, uuid.NewString())

	if err := m.objects.Write(objectPath, data); err != nil {
		return nil, fmt.Errorf("store chunk bytes: %w", err)
	}

	chunk, err := m.store.AddChunk(ctx, sessionID, index, objectPath, durationPtr)
	if err != nil {
		// The object is unreachable without its row; remove it.
		if delErr := m.objects.Delete(objectPath); delErr != nil {
			m.logger.Warn("Failed to remove orphaned chunk object",
				slog.String("object_path", objectPath),
				slog.String("error", delErr.Error()),
			)
		}

		if errors.Is(err, store.ErrDuplicateChunk) {
			return nil, fmt.Errorf("%w: index %d", ErrDuplicateChunk, index)
		}
		return nil, fmt.Errorf("record chunk: %w", err)
	}

	if m.metrics != nil {
		m.metrics.ChunksUploaded.Inc()
		m.metrics.ChunkSize.Observe(float64(len(data)))
	}

	m.logger.Debug("Chunk appended",
		slog.String("session_id", sessionID),
		slog.Int("chunk_index", index),
		slog.Int("size_bytes", len(data)),
	)

	return chunk, nil
}

// Pause transitions an active session to paused.
func (m *Manager) Pause(ctx context.Context, ownerID, sessionID string) (*store.Session, error) {
	sess, err := m.transition(ctx, ownerID, sessionID, store.StatePaused, store.StateActive)
	if err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.SessionsPaused.Inc()
	}
	return sess, nil
}

// Resume transitions a paused session back to active. This is the only way
// back to active; uploads do not implicitly resume.
func (m *Manager) Resume(ctx context.Context, ownerID, sessionID string) (*store.Session, error) {
	sess, err := m.transition(ctx, ownerID, sessionID, store.StateActive, store.StatePaused)
	if err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.SessionsResumed.Inc()
	}
	return sess, nil
}

// transition performs a guarded pause/resume style state change under the
// per-session lock.
func (m *Manager) transition(ctx context.Context, ownerID, sessionID string, to store.SessionState, from store.SessionState) (*store.Session, error) {
	unlock := m.locks.acquire(sessionID)
	defer unlock()

	sess, err := m.getOwned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.State != from {
		return nil, fmt.Errorf("%w: cannot move to %s from %s", ErrInvalidState, to, sess.State)
	}

	if err := m.store.SetState(ctx, sessionID, to, from); err != nil {
		if errors.Is(err, store.ErrStateConflict) {
			return nil, fmt.Errorf("%w: concurrent transition", ErrInvalidState)
		}
		return nil, fmt.Errorf("set state: %w", err)
	}

	m.logger.Info("Session state changed",
		slog.String("session_id", sessionID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)

	return m.store.Get(ctx, sessionID)
}

// Finish runs the multi-stage completion pipeline: fetch ordered chunks,
// assemble, encrypt audio, transcribe the cleartext artifact, encrypt the
// transcript, and atomically record the ended state. Any failure before the
// final write leaves the session unchanged so the same call can be retried.
// The cleartext assembled artifact lives only in memory and is dropped
// unconditionally on every exit path.
func (m *Manager) Finish(ctx context.Context, ownerID, sessionID string) (*FinishResult, error) {
	unlock := m.locks.acquire(sessionID)
	defer unlock()

	started := time.Now()

	sess, err := m.getOwned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.State != store.StateActive && sess.State != store.StatePaused {
		return nil, fmt.Errorf("%w: cannot finish in state %s", ErrInvalidState, sess.State)
	}

	chunks, err := m.store.Chunks(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	chunkPaths := make([]string, len(chunks))
	for i, c := range chunks {
		chunkPaths[i] = c.ObjectPath
	}

	assembled, err := m.assembler.Assemble(ctx, chunkPaths)
	if err != nil {
		m.recordFinishFailure("assemble")
		return nil, err
	}

	encryptedAudio, err := m.crypto.EncryptBytes(assembled.Data)
	if err != nil {
		m.recordFinishFailure("encrypt_audio")
		return nil, fmt.Errorf("encrypt audio: %w", err)
	}

	audioPath := fmt.Sprintf("sessions/%s/audio.enc", sessionID)
	if err := m.objects.Write(audioPath, encryptedAudio); err != nil {
		m.recordFinishFailure("store_audio")
		return nil, fmt.Errorf("store encrypted audio: %w", err)
	}

	transcriptionStart := time.Now()
	if m.metrics != nil {
		m.metrics.TranscriptionRequests.Inc()
	}

	resp, err := m.transcriber.Transcribe(ctx, &transcription.Request{
		SessionID: sessionID,
		Provider:  sess.Provider,
		AudioData: assembled.Data,
		Duration:  assembled.DurationSeconds,
	})
	if err != nil {
		m.recordFinishFailure("transcribe")
		if m.metrics != nil {
			m.metrics.TranscriptionFailures.Inc()
		}
		m.cleanupArtifact(audioPath)

		m.logger.Error("Transcription failed, session left unchanged",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	if m.metrics != nil {
		m.metrics.TranscriptionDuration.Observe(time.Since(transcriptionStart).Seconds())
	}

	encryptedTranscript, err := m.crypto.EncryptText(resp.Text)
	if err != nil {
		m.recordFinishFailure("encrypt_transcript")
		m.cleanupArtifact(audioPath)
		return nil, fmt.Errorf("encrypt transcript: %w", err)
	}

	if err := m.store.MarkEnded(ctx, sessionID, audioPath, encryptedTranscript, assembled.DurationSeconds); err != nil {
		m.recordFinishFailure("persist")
		m.cleanupArtifact(audioPath)

		if errors.Is(err, store.ErrStateConflict) {
			return nil, fmt.Errorf("%w: concurrent finish", ErrInvalidState)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	if m.metrics != nil {
		m.metrics.SessionsFinished.Inc()
		m.metrics.FinishDuration.Observe(time.Since(started).Seconds())
		m.metrics.AssembledDuration.Observe(assembled.DurationSeconds)
	}

	m.logger.Info("Session finished",
		slog.String("session_id", sessionID),
		slog.Int("chunks", len(chunks)),
		slog.Float64("duration_seconds", assembled.DurationSeconds),
		slog.Duration("pipeline_time", time.Since(started)),
	)

	ended, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}

	return &FinishResult{Session: ended, Transcript: resp.Text}, nil
}

// UpdateNotes replaces the session's free-text notes. Legal in any state.
func (m *Manager) UpdateNotes(ctx context.Context, ownerID, sessionID, notes string) (*store.Session, error) {
	if _, err := m.getOwned(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}

	if err := m.store.UpdateNotes(ctx, sessionID, notes); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update notes: %w", err)
	}

	return m.store.Get(ctx, sessionID)
}

// Get returns the decrypted view of one session. Transcript decryption
// failure degrades to surfacing the ciphertext, never to losing the record.
func (m *Manager) Get(ctx context.Context, ownerID, sessionID string) (*View, error) {
	sess, err := m.getOwned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	return m.view(sess), nil
}

// List returns decrypted views of all sessions owned by ownerID, newest
// first.
func (m *Manager) List(ctx context.Context, ownerID string) ([]*View, error) {
	sessions, err := m.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	views := make([]*View, len(sessions))
	for i, sess := range sessions {
		views[i] = m.view(sess)
	}
	return views, nil
}

// Delete removes a session, its chunk objects, its encrypted artifact, and
// all database rows. The object prefix is cleared first so a partial failure
// can never leave reachable cleartext chunks behind a deleted session.
func (m *Manager) Delete(ctx context.Context, ownerID, sessionID string) error {
	unlock := m.locks.acquire(sessionID)
	defer unlock()

	if _, err := m.getOwned(ctx, ownerID, sessionID); err != nil {
		return err
	}

	if err := m.objects.DeleteAll(fmt.Sprintf("sessions/%s", sessionID)); err != nil {
		return fmt.Errorf("delete session objects: %w", err)
	}

	if err := m.store.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete session rows: %w", err)
	}

	if m.metrics != nil {
		m.metrics.SessionsDeleted.Inc()
	}

	m.logger.Info("Session deleted", slog.String("session_id", sessionID))
	return nil
}

// getOwned loads a session and enforces ownership: a session owned by someone
// else is reported as ErrUnauthorized, a missing one as ErrNotFound. The
// policy is uniform across every operation.
func (m *Manager) getOwned(ctx context.Context, ownerID, sessionID string) (*store.Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	if sess.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}

	return sess, nil
}

// view decrypts the stored transcript for display.
func (m *Manager) view(sess *store.Session) *View {
	v := &View{Session: sess}

	if sess.Transcript == "" {
		return v
	}

	plaintext, err := m.crypto.DecryptText(sess.Transcript)
	if err != nil {
		m.logger.Warn("Transcript decryption failed, surfacing ciphertext",
			slog.String("session_id", sess.ID),
		)
		v.Transcript = sess.Transcript
		return v
	}

	v.Transcript = plaintext
	v.TranscriptDecrypted = true
	return v
}

// cleanupArtifact removes an encrypted audio object left behind by a failed
// finish. Best-effort: a leftover object is orphaned ciphertext, eligible for
// an out-of-band sweep, never cleartext.
func (m *Manager) cleanupArtifact(audioPath string) {
	if err := m.objects.Delete(audioPath); err != nil {
		m.logger.Warn("Failed to clean up orphaned encrypted artifact",
			slog.String("object_path", audioPath),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) recordFinishFailure(stage string) {
	if m.metrics != nil {
		m.metrics.FinishFailures.WithLabelValues(stage).Inc()
	}
}
