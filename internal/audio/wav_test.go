package audio

import (
	"math"
	"testing"
)

// sineSamples generates a 440Hz sine wave for the given duration.
func sineSamples(sampleRate int, seconds float64) []int16 {
	numSamples := int(float64(sampleRate) * seconds)
	samples := make([]int16, numSamples)

	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		samples[i] = int16(16383.0 * math.Sin(2*math.Pi*440.0*t))
	}
	return samples
}

func TestEncodeWAV(t *testing.T) {
	sampleRate := 16000
	samples := sineSamples(sampleRate, 0.1)

	wavData, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := wavHeaderSize + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	duration, err := Duration(wavData)
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}

	expected := float64(len(samples)) / float64(sampleRate)
	if math.Abs(duration-expected) > 0.001 {
		t.Errorf("Expected duration %.3f, got %.3f", expected, duration)
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	originalSamples := []int16{100, -200, 300, -400, 500}
	sampleRate := 16000

	wavData, err := EncodeWAV(originalSamples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, decodedRate, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if decodedRate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, decodedRate)
	}

	if len(decoded) != len(originalSamples) {
		t.Fatalf("Expected %d samples, got %d", len(originalSamples), len(decoded))
	}

	for i, want := range originalSamples {
		if decoded[i] != want {
			t.Errorf("Sample %d: expected %d, got %d", i, want, decoded[i])
		}
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	if _, err := EncodeWAV([]int16{}, 16000); err == nil {
		t.Error("Expected error for empty samples")
	}
}

func TestEncodeWAVInvalidSampleRate(t *testing.T) {
	if _, err := EncodeWAV([]int16{100, 200}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestDecodeWAVTooShort(t *testing.T) {
	if _, _, err := DecodeWAV([]byte{0x52, 0x49}); err == nil {
		t.Error("Expected error for truncated data")
	}
}

func TestDecodeWAVBadMagic(t *testing.T) {
	wavData, err := EncodeWAV([]int16{1, 2, 3}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	wavData[0] = 'X' // corrupt RIFF magic
	if _, _, err := DecodeWAV(wavData); err == nil {
		t.Error("Expected error for corrupted RIFF header")
	}
}

func TestDecodeWAVTruncatedPayload(t *testing.T) {
	wavData, err := EncodeWAV(sineSamples(16000, 0.05), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	// Header intact but half the sample payload cut off
	if _, _, err := DecodeWAV(wavData[:len(wavData)/2]); err == nil {
		t.Error("Expected error for truncated sample payload")
	}
}
