// Package store persists recording sessions and their ordered chunk lists in
// SQLite. State transitions are exposed as typed, guarded single-row updates
// so lifecycle fields can never be written outside the allowed transitions,
// and chunk uniqueness per (session, index) is enforced by the schema.
package store
