package eventlog

import (
	"context"
	"sync"

	"github.com/kailas-cloud/toxfilter/internal/db"
	"github.com/kailas-cloud/toxfilter/internal/domain/event"
)

// mockStore is an in-memory list store with Redis index semantics.
type mockStore struct {
	mu       sync.Mutex
	lists    map[string][][]byte
	pushErr  error
	trimErr  error
	trims    int
	rangeErr error
}

func newMockStore() *mockStore {
	return &mockStore{lists: make(map[string][][]byte)}
}

func (m *mockStore) RPush(_ context.Context, key string, values ...[]byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushErr != nil {
		return 0, m.pushErr
	}
	m.lists[key] = append(m.lists[key], values...)
	return int64(len(m.lists[key])), nil
}

func (m *mockStore) LTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trimErr != nil {
		return m.trimErr
	}
	m.trims++
	l := m.lists[key]
	from, to, ok := db.Bounds(start, stop, int64(len(l)))
	if !ok {
		delete(m.lists, key)
		return nil
	}
	m.lists[key] = append([][]byte(nil), l[from:to+1]...)
	return nil
}

func (m *mockStore) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rangeErr != nil {
		return nil, m.rangeErr
	}
	l := m.lists[key]
	from, to, ok := db.Bounds(start, stop, int64(len(l)))
	if !ok {
		return nil, nil
	}
	return append([][]byte(nil), l[from:to+1]...), nil
}

func (m *mockStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lists, key)
	return nil
}

func (m *mockStore) raw(key string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.lists[key]...)
}

// mockAppender records appended batches.
type mockAppender struct {
	mu      sync.Mutex
	events  []event.Event
	batches int
	err     error
	block   chan struct{}
}

func (m *mockAppender) Append(_ context.Context, events ...event.Event) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *mockAppender) Events() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Event(nil), m.events...)
}
