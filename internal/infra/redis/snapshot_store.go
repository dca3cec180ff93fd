package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lms-quiz-engine/internal/app"
)

// SnapshotStore persists session snapshots in Redis so a learner reconnecting
// to another engine instance recovers draft answers and tracked attempt ids.
// Key: session:{learnerID}:{lessonID}, JSON-encoded, expiring after ttl.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) Save(ctx context.Context, learnerID, lessonID string, state app.PersistedState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(learnerID, lessonID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context, learnerID, lessonID string) (app.PersistedState, bool, error) {
	raw, err := s.client.Get(ctx, s.key(learnerID, lessonID)).Bytes()
	if err == redis.Nil {
		return app.PersistedState{}, false, nil
	}
	if err != nil {
		return app.PersistedState{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	var state app.PersistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return app.PersistedState{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return state, true, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, learnerID, lessonID string) error {
	return s.client.Del(ctx, s.key(learnerID, lessonID)).Err()
}

func (s *SnapshotStore) key(learnerID, lessonID string) string {
	return "session:" + learnerID + ":" + lessonID
}
