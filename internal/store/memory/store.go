// Package memory provides an in-memory implementation of store.Store.
// This is useful for testing and development without external dependencies.
package memory

import (
	"context"
	"sync"
	"time"

	"jobqueue-go/internal/store"
)

// Ensure *Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is an in-memory implementation of the store.Store interface.
// It uses maps with mutex protection for thread-safe access.
// It has no native blocking; callers poll.
type Store struct {
	mu sync.Mutex

	// sets stores setKey -> members
	sets map[string]map[string]struct{}

	// lists stores listKey -> entries, head at index 0
	lists map[string][][]byte

	closed bool
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		sets:  make(map[string]map[string]struct{}),
		lists: make(map[string][][]byte),
	}
}

// --- Set Operations ---

// AddMember adds member to the set, reporting whether it was absent.
func (s *Store) AddMember(ctx context.Context, setKey, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	if s.sets[setKey] == nil {
		s.sets[setKey] = make(map[string]struct{})
	}
	if _, exists := s.sets[setKey][member]; exists {
		return false, nil
	}
	s.sets[setKey][member] = struct{}{}
	return true, nil
}

// RemoveMember removes member from the set.
func (s *Store) RemoveMember(ctx context.Context, setKey, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if s.sets[setKey] != nil {
		delete(s.sets[setKey], member)
	}
	return nil
}

// --- List Operations ---

// Append adds an entry to the tail of the list.
func (s *Store) Append(ctx context.Context, listKey string, entry []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	// Store a copy to prevent external modification
	s.lists[listKey] = append(s.lists[listKey], cloneBytes(entry))
	return nil
}

// PopHead removes and returns the head of the list. block is ignored.
func (s *Store) PopHead(ctx context.Context, listKey string, block time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	return s.popLocked(listKey), nil
}

// MoveHead moves the head of srcKey to the tail of dstKey. block is ignored.
func (s *Store) MoveHead(ctx context.Context, srcKey, dstKey string, block time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	entry := s.popLocked(srcKey)
	if entry == nil {
		return nil, nil
	}
	s.lists[dstKey] = append(s.lists[dstKey], entry)
	return cloneBytes(entry), nil
}

// Range returns up to count entries from start, head first.
func (s *Store) Range(ctx context.Context, listKey string, start, count int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	list := s.lists[listKey]
	result := make([][]byte, 0)
	if start < 0 || count <= 0 || start >= int64(len(list)) {
		return result, nil
	}

	end := start + count
	if end > int64(len(list)) {
		end = int64(len(list))
	}
	for _, entry := range list[start:end] {
		result = append(result, cloneBytes(entry))
	}
	return result, nil
}

// RemoveByID removes the first entry whose id matches.
// Entries that cannot be decoded are skipped.
func (s *Store) RemoveByID(ctx context.Context, listKey, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	list := s.lists[listKey]
	for i, entry := range list {
		entryID, err := store.EntryID(entry)
		if err != nil || entryID != id {
			continue
		}
		s.lists[listKey] = append(list[:i:i], list[i+1:]...)
		return true, nil
	}
	return false, nil
}

// Len returns the number of entries in the list.
func (s *Store) Len(ctx context.Context, listKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	return int64(len(s.lists[listKey])), nil
}

// --- Lifecycle ---

// Blocking reports false: PopHead and MoveHead never wait.
func (s *Store) Blocking() bool {
	return false
}

// Ping fails only after Close.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close marks the store closed; later calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// --- Test Helpers ---

// Clear removes all data from the store. Useful for test cleanup.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sets = make(map[string]map[string]struct{})
	s.lists = make(map[string][][]byte)
}

// IsMember reports whether member is in the set. Useful for assertions in tests.
func (s *Store) IsMember(setKey, member string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sets[setKey][member]
	return ok
}

// popLocked removes the head of the list; the caller holds s.mu.
func (s *Store) popLocked(listKey string) []byte {
	list := s.lists[listKey]
	if len(list) == 0 {
		return nil
	}
	entry := list[0]
	list[0] = nil
	s.lists[listKey] = list[1:]
	return entry
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
