package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, err := NewService("test-secret-for-round-trip")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"small", []byte("hello")},
		{"binary", []byte{0x00, 0xff, 0x7f, 0x80, 0x01}},
		{"large", bytes.Repeat([]byte("audio-sample-data"), 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := svc.EncryptBytes(tt.plaintext)
			if err != nil {
				t.Fatalf("EncryptBytes failed: %v", err)
			}

			if bytes.Contains(ciphertext, tt.plaintext) && len(tt.plaintext) > 4 {
				t.Error("ciphertext contains plaintext")
			}

			decrypted, err := svc.DecryptBytes(ciphertext)
			if err != nil {
				t.Fatalf("DecryptBytes failed: %v", err)
			}

			if !bytes.Equal(decrypted, tt.plaintext) {
				t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(decrypted), len(tt.plaintext))
			}
		})
	}
}

func TestEncryptIsNotDeterministic(t *testing.T) {
	svc, err := NewService("nonce-freshness-secret")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	plaintext := []byte("same plaintext twice")

	first, err := svc.EncryptBytes(plaintext)
	if err != nil {
		t.Fatalf("first EncryptBytes failed: %v", err)
	}

	second, err := svc.EncryptBytes(plaintext)
	if err != nil {
		t.Fatalf("second EncryptBytes failed: %v", err)
	}

	if bytes.Equal(first, second) {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	svcA, err := NewService("key-a")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	svcB, err := NewService("key-b")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	ciphertext, err := svcA.EncryptBytes([]byte("secret audio"))
	if err != nil {
		t.Fatalf("EncryptBytes failed: %v", err)
	}

	if _, err := svcB.DecryptBytes(ciphertext); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecryptTampered(t *testing.T) {
	svc, err := NewService("tamper-secret")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	ciphertext, err := svc.EncryptBytes([]byte("authentic data"))
	if err != nil {
		t.Fatalf("EncryptBytes failed: %v", err)
	}

	// Flip one bit in the middle of the sealed portion
	tampered := make([]byte, len(ciphertext))
	copy(tampered, ciphertext)
	tampered[len(tampered)/2] ^= 0x01

	if _, err := svc.DecryptBytes(tampered); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed for tampered ciphertext, got %v", err)
	}
}

func TestDecryptTruncated(t *testing.T) {
	svc, err := NewService("truncation-secret")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if _, err := svc.DecryptBytes([]byte{0x01, 0x02, 0x03}); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed for truncated input, got %v", err)
	}
}

func TestTextRoundTrip(t *testing.T) {
	svc, err := NewService("text-secret")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	original := "Patient reported mild symptoms. Follow-up in two weeks."

	encrypted, err := svc.EncryptText(original)
	if err != nil {
		t.Fatalf("EncryptText failed: %v", err)
	}

	if encrypted == original {
		t.Error("encrypted text equals plaintext")
	}

	decrypted, err := svc.DecryptText(encrypted)
	if err != nil {
		t.Fatalf("DecryptText failed: %v", err)
	}

	if decrypted != original {
		t.Errorf("text round trip mismatch: got %q", decrypted)
	}
}

func TestDecryptTextInvalidBase64(t *testing.T) {
	svc, err := NewService("base64-secret")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if _, err := svc.DecryptText("not valid base64!!!"); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed for invalid base64, got %v", err)
	}
}

func TestNewServiceEmptySecret(t *testing.T) {
	if _, err := NewService(""); err == nil {
		t.Error("expected error for empty secret")
	}
}
