package memory

import (
	"context"
	"sync"

	"lms-quiz-engine/internal/app"
)

// SnapshotStore is an in-memory implementation of app.SnapshotStore. Single
// instance only; use the redis store when sessions must survive the process.
type SnapshotStore struct {
	mu    sync.RWMutex
	saved map[string]app.PersistedState
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{saved: make(map[string]app.PersistedState)}
}

func (s *SnapshotStore) Save(_ context.Context, learnerID, lessonID string, state app.PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[s.key(learnerID, lessonID)] = state
	return nil
}

func (s *SnapshotStore) Load(_ context.Context, learnerID, lessonID string) (app.PersistedState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.saved[s.key(learnerID, lessonID)]
	return state, ok, nil
}

func (s *SnapshotStore) Delete(_ context.Context, learnerID, lessonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, s.key(learnerID, lessonID))
	return nil
}

func (s *SnapshotStore) key(learnerID, lessonID string) string {
	return learnerID + "|" + lessonID
}
