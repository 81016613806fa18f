package activity

import (
	"context"
	"sync"
)

// DefaultMemCapacity is the number of activities a [MemStore] keeps when
// created with a non-positive capacity.
const DefaultMemCapacity = 1000

var _ Store = (*MemStore)(nil)

// MemStore keeps the most recent activities in memory. When full, the oldest
// activity is discarded.
type MemStore struct {
	mu       sync.Mutex
	items    []ScreenActivity
	capacity int
	nextID   int64
	closed   bool
}

// NewMemStore returns an empty store holding at most capacity activities.
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultMemCapacity
	}
	return &MemStore{capacity: capacity, nextID: 1}
}

// Save implements [Store].
func (s *MemStore) Save(_ context.Context, a ScreenActivity) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	a.ID = s.nextID
	s.nextID++
	a.Tags = append([]string(nil), a.Tags...)
	if len(s.items) == s.capacity {
		s.items = append(s.items[:0], s.items[1:]...)
	}
	s.items = append(s.items, a)
	return a.ID, nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, limit int) ([]ScreenActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return nil, nil
	}
	start := max(len(s.items)-limit, 0)
	out := make([]ScreenActivity, len(s.items)-start)
	copy(out, s.items[start:])
	return out, nil
}

// Len returns the number of stored activities.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Ping implements [Store].
func (s *MemStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements [Store].
func (s *MemStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
