// Package server exposes the recording session API over HTTP. It handles
// JWT bearer authentication, request decoding, and the mapping from domain
// errors to HTTP status codes; all session semantics live in the session
// package.
package server
