package event

import (
	"sync"
	"sync/atomic"
)

// Bus fans events out to subscribers. A subscription is scoped to one
// thread id (or all threads) and receives that thread's events in publish
// order.
type Bus interface {
	// Publish delivers an event to matching subscribers.
	Publish(evt Event)

	// Subscribe creates a subscription for a single thread's events.
	Subscribe(threadID string) Subscription

	// SubscribeAll subscribes to every thread's events.
	SubscribeAll() Subscription

	// Close shuts down the bus and all subscriptions.
	Close()
}

// Subscription is an active event stream.
type Subscription interface {
	// Events is the ordered delivery channel. It is closed when the
	// subscription is cancelled or the bus closes.
	Events() <-chan Event

	// Cancel removes the subscription and closes Events.
	Cancel()
}

// BusConfig configures the local bus.
type BusConfig struct {
	// BufferSize is the channel buffer per subscription. Default 64.
	BufferSize int

	// OnDrop is called when a slow subscriber's buffer is full and an
	// event is dropped. Nil means drops are silent.
	OnDrop func(evt Event, subscriberID int64)
}

// LocalBus is the in-memory Bus implementation.
// Publish never blocks: a subscriber that cannot keep up loses events
// (reported through OnDrop) rather than stalling the engine.
type LocalBus struct {
	cfg BusConfig

	mu       sync.RWMutex
	byThread map[string]map[int64]*localSub
	all      map[int64]*localSub

	nextID atomic.Int64
	closed bool
}

// NewBus creates a local in-memory bus.
func NewBus(cfg BusConfig) *LocalBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	return &LocalBus{
		cfg:      cfg,
		byThread: make(map[string]map[int64]*localSub),
		all:      make(map[int64]*localSub),
	}
}

type localSub struct {
	id       int64
	threadID string
	all      bool
	events   chan Event
	bus      *LocalBus
	once     sync.Once
}

// Events implements Subscription.
func (s *localSub) Events() <-chan Event { return s.events }

// Cancel implements Subscription.
func (s *localSub) Cancel() {
	s.bus.remove(s)
	s.once.Do(func() { close(s.events) })
}

// Publish implements Bus.
func (b *LocalBus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.byThread[evt.ThreadID] {
		b.deliver(sub, evt)
	}
	for _, sub := range b.all {
		b.deliver(sub, evt)
	}
}

func (b *LocalBus) deliver(sub *localSub, evt Event) {
	select {
	case sub.events <- evt:
	default:
		if b.cfg.OnDrop != nil {
			b.cfg.OnDrop(evt, sub.id)
		}
	}
}

// Subscribe implements Bus.
func (b *LocalBus) Subscribe(threadID string) Subscription {
	sub := &localSub{
		id:       b.nextID.Add(1),
		threadID: threadID,
		events:   make(chan Event, b.cfg.BufferSize),
		bus:      b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.once.Do(func() { close(sub.events) })
		return sub
	}

	if b.byThread[threadID] == nil {
		b.byThread[threadID] = make(map[int64]*localSub)
	}
	b.byThread[threadID][sub.id] = sub
	return sub
}

// SubscribeAll implements Bus.
func (b *LocalBus) SubscribeAll() Subscription {
	sub := &localSub{
		id:     b.nextID.Add(1),
		all:    true,
		events: make(chan Event, b.cfg.BufferSize),
		bus:    b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.once.Do(func() { close(sub.events) })
		return sub
	}

	b.all[sub.id] = sub
	return sub
}

func (b *LocalBus) remove(sub *localSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.all {
		delete(b.all, sub.id)
		return
	}
	if subs := b.byThread[sub.threadID]; subs != nil {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.byThread, sub.threadID)
		}
	}
}

// Close implements Bus.
func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.byThread {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.events) })
		}
	}
	for _, sub := range b.all {
		sub.once.Do(func() { close(sub.events) })
	}

	b.byThread = make(map[string]map[int64]*localSub)
	b.all = make(map[int64]*localSub)
}
