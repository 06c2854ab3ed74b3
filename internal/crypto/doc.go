// Package crypto provides the at-rest encryption service for audio artifacts
// and transcripts. It implements AES-256-GCM with a process-wide key derived
// from the configured secret via HKDF-SHA256, plus base64 text variants for
// values stored in database columns.
package crypto
