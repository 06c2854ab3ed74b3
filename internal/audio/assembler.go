package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/leonj1/scribe/internal/storage"
)

var (
	// ErrEmptyInput indicates assembly was requested with zero chunks.
	ErrEmptyInput = errors.New("audio: no chunks to assemble")

	// ErrChunkMissing indicates a referenced chunk object could not be
	// located in storage.
	ErrChunkMissing = errors.New("audio: chunk object missing")

	// ErrChunkUnreadable indicates a chunk was found but could not be
	// decoded as audio.
	ErrChunkUnreadable = errors.New("audio: chunk unreadable")
)

// Assembled is the result of concatenating an ordered chunk sequence.
type Assembled struct {
	Data            []byte  // Continuous WAV artifact
	DurationSeconds float64 // Total playback duration
	SampleRate      int
}

// Assembler concatenates ordered audio chunks read from object storage into
// one continuous WAV artifact. Chunks must share sample rate, bit depth, and
// channel count; concatenation is sample-accurate with no padding between
// chunks.
type Assembler struct {
	store storage.Store
}

// NewAssembler returns an assembler reading chunk objects from store.
func NewAssembler(store storage.Store) *Assembler {
	return &Assembler{store: store}
}

// Assemble reads each chunk path in order, decodes it, and concatenates the
// samples into a single WAV stream. The input order is the playback order;
// the caller is responsible for sorting by sequence index.
func (a *Assembler) Assemble(ctx context.Context, chunkPaths []string) (*Assembled, error) {
	if len(chunkPaths) == 0 {
		return nil, ErrEmptyInput
	}

	var combined []int16
	sampleRate := 0

	for i, path := range chunkPaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := a.store.Read(path)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("chunk %d (%s): %w", i, path, ErrChunkMissing)
			}
			return nil, fmt.Errorf("chunk %d (%s): %w", i, path, err)
		}

		samples, rate, err := DecodeWAV(data)
		if err != nil {
			return nil, fmt.Errorf("chunk %d (%s): %w: %v", i, path, ErrChunkUnreadable, err)
		}

		if sampleRate == 0 {
			sampleRate = rate
			combined = make([]int16, 0, len(samples)*len(chunkPaths))
		} else if rate != sampleRate {
			return nil, fmt.Errorf("chunk %d (%s): %w: sample rate %d differs from %d",
				i, path, ErrChunkUnreadable, rate, sampleRate)
		}

		combined = append(combined, samples...)
	}

	data, err := EncodeWAV(combined, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("encode assembled audio: %w", err)
	}

	return &Assembled{
		Data:            data,
		DurationSeconds: float64(len(combined)) / float64(sampleRate),
		SampleRate:      sampleRate,
	}, nil
}

// ProbeDuration reports the playback duration of a single encoded chunk.
// Probing is best-effort advisory metadata: on any decode failure it returns
// ok=false rather than an error.
func ProbeDuration(data []byte) (seconds float64, ok bool) {
	d, err := Duration(data)
	if err != nil {
		return 0, false
	}
	return d, true
}
