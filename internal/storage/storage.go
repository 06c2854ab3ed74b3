package storage

import "errors"

// ErrNotFound indicates the requested object does not exist in the store.
var ErrNotFound = errors.New("storage: object not found")

// Store is a byte-addressable object store keyed by opaque paths. Paths are
// forward-slash separated and relative; callers treat them as opaque
// references once written.
type Store interface {
	// Write stores data under path, creating parent prefixes as needed.
	// An existing object at the same path is overwritten.
	Write(path string, data []byte) error

	// Read returns the full contents of the object at path, or ErrNotFound.
	Read(path string) ([]byte, error)

	// Exists reports whether an object is present at path.
	Exists(path string) bool

	// Delete removes the object at path. Deleting a missing object is not
	// an error.
	Delete(path string) error

	// DeleteAll removes every object under the given prefix.
	DeleteAll(prefix string) error
}
