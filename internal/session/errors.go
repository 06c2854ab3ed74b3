package session

import "errors"

var (
	// ErrNotFound indicates the session does not exist.
	ErrNotFound = errors.New("session: not found")

	// ErrInvalidState indicates the operation is illegal in the session's
	// current lifecycle state.
	ErrInvalidState = errors.New("session: invalid state for operation")

	// ErrUnauthorized indicates the caller is not the session's owner.
	ErrUnauthorized = errors.New("session: caller is not the owner")

	// ErrNoChunks indicates finish was attempted on a session with zero
	// uploaded chunks.
	ErrNoChunks = errors.New("session: no chunks to assemble")

	// ErrDuplicateChunk indicates a chunk already exists at the given index.
	ErrDuplicateChunk = errors.New("session: duplicate chunk index")

	// ErrTranscriptionFailed indicates the remote provider failed. The
	// session is left unchanged; the same finish call can be retried.
	ErrTranscriptionFailed = errors.New("session: transcription failed")

	// ErrPersistenceFailed indicates the final durable write failed after
	// the pipeline succeeded. The session is left in its pre-finish state
	// and finish can be retried.
	ErrPersistenceFailed = errors.New("session: persistence failed")
)
