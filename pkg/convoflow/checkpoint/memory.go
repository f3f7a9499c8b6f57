package checkpoint

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory checkpoint store for tests and development.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[int]stored // threadID -> sequence -> checkpoint
	closed bool
}

type stored struct {
	data      []byte
	timestamp time.Time
}

// NewMemoryStore creates an in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[int]stored)}
}

// Save implements Store.
func (m *MemoryStore) Save(threadID string, sequence int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if m.data[threadID] == nil {
		m.data[threadID] = make(map[int]stored)
	}

	// Copy so the caller's slice isn't retained.
	buf := make([]byte, len(data))
	copy(buf, data)

	m.data[threadID][sequence] = stored{data: buf, timestamp: time.Now().UTC()}
	return nil
}

// LoadLatest implements Store.
func (m *MemoryStore) LoadLatest(threadID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	thread, ok := m.data[threadID]
	if !ok || len(thread) == 0 {
		return nil, ErrNotFound
	}

	latest := -1
	for seq := range thread {
		if seq > latest {
			latest = seq
		}
	}
	return clone(thread[latest].data), nil
}

// Load implements Store.
func (m *MemoryStore) Load(threadID string, sequence int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	thread, ok := m.data[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	cp, ok := thread[sequence]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(cp.data), nil
}

// List implements Store.
func (m *MemoryStore) List(threadID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	thread := m.data[threadID]
	infos := make([]Info, 0, len(thread))
	for seq, cp := range thread {
		infos = append(infos, Info{
			ThreadID:  threadID,
			Sequence:  seq,
			Timestamp: cp.timestamp,
			Size:      int64(len(cp.data)),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Sequence < infos[j].Sequence })
	return infos, nil
}

// DeleteThread implements Store.
func (m *MemoryStore) DeleteThread(threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, threadID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
