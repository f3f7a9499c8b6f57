// Package checkpoint persists conversation state snapshots keyed by thread
// identifier so a suspended conversation can later be resumed.
package checkpoint

import (
	"errors"
	"time"
)

// Store persists checkpoints per thread.
//
// Implementations must be safe for concurrent use across different thread
// ids. Writes to a single thread id are serialized by the engine (the
// thread is a serialization boundary), so stores do not need per-key
// write ordering beyond plain atomicity.
type Store interface {
	// Save stores a checkpoint for a thread at a sequence number.
	// Overwrites any existing checkpoint at the same (threadID, sequence).
	Save(threadID string, sequence int, data []byte) error

	// LoadLatest retrieves the highest-sequence checkpoint for a thread.
	// Returns ErrNotFound if the thread has no checkpoints.
	LoadLatest(threadID string) ([]byte, error)

	// Load retrieves the checkpoint at a specific sequence.
	// Returns ErrNotFound if it doesn't exist.
	Load(threadID string, sequence int) ([]byte, error)

	// List returns checkpoint metadata for a thread, ordered by sequence.
	// Returns an empty slice (not an error) for an unknown thread.
	List(threadID string) ([]Info, error)

	// DeleteThread removes all checkpoints for a thread. Threads are never
	// deleted implicitly; this exists for external retention policies.
	DeleteThread(threadID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides checkpoint metadata without loading full state.
type Info struct {
	ThreadID  string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no checkpoint exists for the key.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)
