// Package approval tracks pending human-authorization requests.
//
// When a run interrupts because a stage needs an authorization flag, a
// request is opened here; resuming the thread resolves it. The inbox is
// the human-in-the-loop work list surfaced over the HTTP API.
package approval

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a request.
type Status string

// Request statuses.
const (
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
)

// Sentinel errors.
var (
	// ErrNoPending indicates the thread has no pending request.
	ErrNoPending = errors.New("no pending authorization request for thread")
)

// Request is one pending or resolved authorization.
type Request struct {
	// ID uniquely identifies this request.
	ID string `json:"id"`

	// ThreadID is the interrupted conversation waiting on this request.
	ThreadID string `json:"thread_id"`

	// Flag is the authorization flag the stage requires (e.g.
	// "refund_authorized").
	Flag string `json:"flag"`

	// Reason is the human-readable explanation from the interrupt.
	Reason string `json:"reason,omitempty"`

	Status      Status     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Inbox is an in-memory registry of authorization requests.
// A thread has at most one pending request at a time; opening a new one
// replaces the previous pending entry (the stage re-interrupting supersedes
// its earlier ask). Resolved requests are kept as history.
type Inbox struct {
	mu      sync.RWMutex
	pending map[string]*Request // threadID -> pending request
	history []*Request
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{pending: make(map[string]*Request)}
}

// Open records a pending authorization request for a thread.
func (in *Inbox) Open(threadID, flag, reason string) *Request {
	req := &Request{
		ID:          fmt.Sprintf("auth-%s", uuid.New().String()[:8]),
		ThreadID:    threadID,
		Flag:        flag,
		Reason:      reason,
		Status:      StatusPending,
		RequestedAt: time.Now().UTC(),
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	in.pending[threadID] = req
	return req
}

// Resolve marks the thread's pending request granted or denied.
// Returns ErrNoPending if the thread has nothing pending.
func (in *Inbox) Resolve(threadID string, granted bool) (*Request, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	req, ok := in.pending[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPending, threadID)
	}

	now := time.Now().UTC()
	req.ResolvedAt = &now
	if granted {
		req.Status = StatusGranted
	} else {
		req.Status = StatusDenied
	}

	delete(in.pending, threadID)
	in.history = append(in.history, req)
	return req, nil
}

// Pending returns a snapshot of all pending requests, oldest first.
func (in *Inbox) Pending() []Request {
	in.mu.RLock()
	defer in.mu.RUnlock()

	out := make([]Request, 0, len(in.pending))
	for _, req := range in.pending {
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// PendingFor returns the thread's pending request, if any.
func (in *Inbox) PendingFor(threadID string) (Request, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	req, ok := in.pending[threadID]
	if !ok {
		return Request{}, false
	}
	return *req, true
}

// History returns resolved requests in resolution order.
func (in *Inbox) History() []Request {
	in.mu.RLock()
	defer in.mu.RUnlock()

	out := make([]Request, len(in.history))
	for i, req := range in.history {
		out[i] = *req
	}
	return out
}
