package activeprofile

import (
	"context"
	"sync"
)

// MemoryStore is the single-process pointer store used when Redis is not
// configured. Pointers do not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	pointers map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pointers: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pointers[userID]
	return id, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, userID, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointers[userID] = profileID
	return nil
}

func (s *MemoryStore) ClearIf(_ context.Context, userID, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pointers[userID] == profileID {
		delete(s.pointers, userID)
	}
	return nil
}
