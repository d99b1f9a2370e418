package store

import (
	"context"
	"sort"
	"sync"
)

const watchBuffer = 256

// Memory is an in-process Store. It backs tests and single-node development.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers map[*memoryWatcher]struct{}
	closed   bool
}

type memoryWatcher struct {
	prefix string
	ch     chan Event
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string][]byte),
		watchers: make(map[*memoryWatcher]struct{}),
	}
}

// Backend returns the backend name.
func (m *Memory) Backend() string { return "memory" }

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Get returns a copy of the value at key.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return clone(v), nil
}

// Put writes value at key.
func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = clone(value)
	m.notify(Event{Op: OpPut, Key: key, Value: clone(value)})
	return nil
}

// Create writes value at key unless the key already exists.
func (m *Memory) Create(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; ok {
		return ErrKeyExists
	}
	m.data[key] = clone(value)
	m.notify(Event{Op: OpPut, Key: key, Value: clone(value)})
	return nil
}

// Delete removes key and its descendants. Deleting an absent key is a no-op.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for k := range m.data {
		if k == key || isDescendant(key, k) {
			removed = append(removed, k)
		}
	}
	sort.Strings(removed)
	for _, k := range removed {
		delete(m.data, k)
		m.notify(Event{Op: OpDelete, Key: k})
	}
	return nil
}

// List returns the descendants of prefix ordered by key.
func (m *Memory) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []Entry
	for k, v := range m.data {
		if isDescendant(prefix, k) {
			entries = append(entries, Entry{Key: k, Value: clone(v)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Watch streams changes below prefix until ctx is done.
func (m *Memory) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	w := &memoryWatcher{prefix: prefix, ch: make(chan Event, watchBuffer)}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(w.ch)
		return w.ch, nil
	}
	m.watchers[w] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.watchers[w]; ok {
			delete(m.watchers, w)
			close(w.ch)
		}
	}()

	return w.ch, nil
}

// DropWatches closes every open watch channel as if the backend lost its
// connection. Watchers observe a close while their context is still live.
func (m *Memory) DropWatches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for w := range m.watchers {
		delete(m.watchers, w)
		close(w.ch)
	}
}

// Close drops every watcher.
func (m *Memory) Close() error {
	m.DropWatches()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// notify must be called with m.mu held. A full buffer drops the event:
// the events already queued make the consumer re-read after this write.
func (m *Memory) notify(ev Event) {
	for w := range m.watchers {
		if !isDescendant(w.prefix, ev.Key) {
			continue
		}
		select {
		case w.ch <- ev:
		default:
		}
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
