// Package objectstore provides the streamed-read / buffered-write / bulk
// delete / list-with-size abstraction the reward-assignment core uses for
// history, incoming-marker, and rewarded-decision objects. Concrete object
// stores (S3, Azure Blob) and an in-memory test double all satisfy Store.
package objectstore

import (
	"context"
	"io"
)

// ObjectMeta describes one stored object: its key and size in bytes.
type ObjectMeta struct {
	Key  string
	Size int64
}

// Store is the object-store surface the rest of the module depends on.
// Implementations are responsible for compressing writes and decompressing
// reads according to their configured codec (see internal/compression).
type Store interface {
	// Get streams the decompressed contents of the object at key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// PutLines writes lines (each already-serialized, newline-free) as a
	// single compressed JSONL object at key, one line per record.
	PutLines(ctx context.Context, key string, lines [][]byte) error

	// List returns metadata, including size, for every object whose key has
	// the given prefix.
	List(ctx context.Context, prefix string) ([]ObjectMeta, error)

	// Delete removes every given key. Missing keys are not an error.
	Delete(ctx context.Context, keys []string) error
}
