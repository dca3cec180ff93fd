package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"lms-quiz-engine/internal/app"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSnapshotStore(client, time.Minute)
	ctx := context.Background()

	state := app.PersistedState{
		Answers: map[string]map[string]string{"quiz-1": {"q1": "4"}},
		Active:  map[string]string{"quiz-1": "attempt-1"},
		Passed:  []string{"quiz-0"},
	}
	if err := store.Save(ctx, "learner-1", "lesson-1", state); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("session:learner-1:lesson-1") {
		t.Fatalf("expected redis key to be set")
	}

	loaded, ok, err := store.Load(ctx, "learner-1", "lesson-1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.Answers["quiz-1"]["q1"] != "4" || loaded.Active["quiz-1"] != "attempt-1" {
		t.Fatalf("unexpected snapshot %+v", loaded)
	}

	if err := store.Delete(ctx, "learner-1", "lesson-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("session:learner-1:lesson-1") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestSnapshotStoreMissIsNotAnError(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSnapshotStore(client, time.Minute)

	_, ok, err := store.Load(context.Background(), "learner-1", "lesson-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected miss")
	}
}

func TestSnapshotStoreExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSnapshotStore(client, time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, "learner-1", "lesson-1", app.PersistedState{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Load(ctx, "learner-1", "lesson-1")
	if err != nil {
		t.Fatalf("load after expiry: %v", err)
	}
	if ok {
		t.Fatalf("expected snapshot expired")
	}
}
