package statestore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for tests and single-run CLI use.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]*Draft
}

// NewMemoryStore creates a new in-memory draft store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]*Draft)}
}

// SaveDraft stores a copy of the draft.
func (s *MemoryStore) SaveDraft(_ context.Context, draft *Draft) error {
	if err := validate(draft); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[draft.ID()] = copyDraft(draft)
	return nil
}

// LoadDraft returns a copy to prevent external mutations.
func (s *MemoryStore) LoadDraft(_ context.Context, id string) (*Draft, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDraft(d), nil
}

// DeleteDraft removes a draft.
func (s *MemoryStore) DeleteDraft(_ context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[id]; !ok {
		return ErrNotFound
	}
	delete(s.drafts, id)
	return nil
}

// ListDrafts returns the drafts owned by userID, oldest first.
func (s *MemoryStore) ListDrafts(_ context.Context, userID string) ([]*Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Draft, 0, len(s.drafts))
	for _, d := range s.drafts {
		if userID != "" && d.UserID() != userID {
			continue
		}
		out = append(out, copyDraft(d))
	}
	sortDrafts(out)
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// copyDraft deep-copies through JSON so score pointers are not shared.
func copyDraft(d *Draft) *Draft {
	data, err := json.Marshal(d)
	if err != nil {
		c := *d
		return &c
	}
	var c Draft
	if err := json.Unmarshal(data, &c); err != nil {
		c = *d
	}
	return &c
}

func sortDrafts(drafts []*Draft) {
	sort.SliceStable(drafts, func(i, j int) bool {
		if drafts[i].CreatedAt.Equal(drafts[j].CreatedAt) {
			return drafts[i].ID() < drafts[j].ID()
		}
		return drafts[i].CreatedAt.Before(drafts[j].CreatedAt)
	})
}
