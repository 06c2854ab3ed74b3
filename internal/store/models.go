package store

import "time"

// SessionState is the lifecycle state of a recording session.
type SessionState string

const (
	StateActive SessionState = "active"
	StatePaused SessionState = "paused"
	StateEnded  SessionState = "ended"
)

// Valid reports whether s is a known lifecycle state.
func (s SessionState) Valid() bool {
	switch s {
	case StateActive, StatePaused, StateEnded:
		return true
	}
	return false
}

// Session represents one recording attempt by one owner. AudioPath and
// Transcript are set exactly once, by the ended transition, and hold the
// encrypted artifact reference and encrypted transcript respectively.
type Session struct {
	ID              string
	OwnerID         string
	State           SessionState
	Provider        string // declared transcription provider name
	Notes           string
	AudioPath       string  // empty until ended
	Transcript      string  // empty until ended; ciphertext, base64
	DurationSeconds float64 // 0 until ended
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Chunk is one sequentially-indexed unit of raw audio belonging to exactly
// one session. Chunks are immutable once written.
type Chunk struct {
	ID              string
	SessionID       string
	Index           int
	ObjectPath      string
	DurationSeconds *float64 // nil when duration probing failed
	UploadedAt      time.Time
}
