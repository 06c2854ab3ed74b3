// Package session implements the recording-session lifecycle manager: the
// Active/Paused/Ended state machine, chunk ingestion invariants, and the
// finish pipeline that assembles uploaded chunks into one encrypted audio
// artifact plus one encrypted transcript. State-changing operations on one
// session are serialized by a per-session lock table; operations on
// different sessions never contend.
package session
