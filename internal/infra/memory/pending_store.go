package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-status-gateway/internal/domain"
)

// PendingStore is an in-memory implementation of app.PendingStore.
// Entries do not survive a restart.
type PendingStore struct {
	mu      sync.RWMutex
	entries map[int]domain.PendingStatus
}

func NewPendingStore() *PendingStore {
	return &PendingStore{
		entries: make(map[int]domain.PendingStatus),
	}
}

func (s *PendingStore) Get(_ context.Context, sessionID int) (domain.PendingStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[sessionID]
	if !ok {
		return domain.PendingStatus{}, domain.ErrPendingNotFound
	}
	return entry, nil
}

func (s *PendingStore) Save(_ context.Context, pending domain.PendingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[pending.SessionID] = pending
	return nil
}

// List returns entries oldest failure first.
func (s *PendingStore) List(_ context.Context) ([]domain.PendingStatus, error) {
	s.mu.RLock()
	out := make([]domain.PendingStatus, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FailedAt.Equal(out[j].FailedAt) {
			return out[i].FailedAt.Before(out[j].FailedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}

func (s *PendingStore) Delete(_ context.Context, sessionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sessionID]; !ok {
		return domain.ErrPendingNotFound
	}
	delete(s.entries, sessionID)
	return nil
}
