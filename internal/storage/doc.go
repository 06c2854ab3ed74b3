// Package storage defines the durable object store used for raw audio chunks
// and encrypted assembled artifacts, keyed by opaque relative paths. The
// filesystem implementation keeps all objects under a single configured root.
package storage
