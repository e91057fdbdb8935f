package watcher

import (
	"errors"
	"sync"
)

// MemorySource is an in-memory Source. Emit blocks until the subscribed
// engine has applied the event, which keeps tests deterministic.
type MemorySource struct {
	mu  sync.Mutex
	sub *memorySubscription

	// SubscribeErr, when set, is returned by Subscribe.
	SubscribeErr error
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{}
}

func (m *MemorySource) Subscribe(root string) (Subscription, error) {
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != nil && !m.sub.isClosed() {
		return nil, errors.New("memory source already subscribed")
	}
	m.sub = &memorySubscription{
		events: make(chan Event),
		errs:   make(chan error, 16),
		closed: make(chan struct{}),
	}
	return m.sub, nil
}

// Emit delivers ev and waits until it has been handled. It reports false
// when there is no open subscription.
func (m *MemorySource) Emit(ev Event) bool {
	m.mu.Lock()
	sub := m.sub
	m.mu.Unlock()
	if sub == nil {
		return false
	}
	ev.handled = make(chan struct{})
	select {
	case sub.events <- ev:
	case <-sub.closed:
		return false
	}
	select {
	case <-ev.handled:
		return true
	case <-sub.closed:
		return false
	}
}

// Create emits a file creation.
func (m *MemorySource) Create(path string) bool {
	return m.Emit(Event{Kind: EventCreate, Path: path})
}

// CreateDir emits a directory creation.
func (m *MemorySource) CreateDir(path string) bool {
	return m.Emit(Event{Kind: EventCreate, Path: path, IsDir: true})
}

// Delete emits a deletion.
func (m *MemorySource) Delete(path string) bool {
	return m.Emit(Event{Kind: EventDelete, Path: path})
}

// Fail delivers err on the error channel without blocking.
func (m *MemorySource) Fail(err error) {
	m.mu.Lock()
	sub := m.sub
	m.mu.Unlock()
	if sub == nil {
		return
	}
	select {
	case sub.errs <- err:
	default:
	}
}

type memorySubscription struct {
	events chan Event
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func (s *memorySubscription) Events() <-chan Event { return s.events }
func (s *memorySubscription) Errors() <-chan error { return s.errs }

func (s *memorySubscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *memorySubscription) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
