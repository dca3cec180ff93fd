package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"lms-quiz-engine/internal/domain"
	"lms-quiz-engine/internal/upstream"
)

type countingAPI struct {
	upstream.API
	activeCalls  int32
	historyCalls int32
	statsCalls   int32
}

func (c *countingAPI) ActiveAttempt(ctx context.Context, quizID, learnerID string) (domain.Attempt, bool, error) {
	atomic.AddInt32(&c.activeCalls, 1)
	return c.API.ActiveAttempt(ctx, quizID, learnerID)
}

func (c *countingAPI) AttemptHistory(ctx context.Context, quizID, learnerID string) (domain.AttemptHistory, error) {
	atomic.AddInt32(&c.historyCalls, 1)
	return c.API.AttemptHistory(ctx, quizID, learnerID)
}

func (c *countingAPI) LearnerStatistics(ctx context.Context, learnerID string) ([]domain.Attempt, error) {
	atomic.AddInt32(&c.statsCalls, 1)
	return c.API.LearnerStatistics(ctx, learnerID)
}

func pollerFixture() (*Poller, *AttemptState, *countingAPI) {
	quizzes := []domain.Quiz{
		{ID: "quiz-1", LessonID: "lesson-1", PassingScore: 70},
		{ID: "quiz-2", LessonID: "lesson-1", PassingScore: 70},
	}
	api := &countingAPI{API: upstream.NewFake(quizzes, map[string][]domain.Question{})}
	state := NewAttemptState("lesson-1", "learner-1", quizzes)
	syncer := NewSyncer(state, api, "learner-1")
	return NewPoller(state, syncer, time.Second), state, api
}

func TestPollOncePollsOnlyExpandedOrActive(t *testing.T) {
	poller, state, api := pollerFixture()

	// Nothing expanded, nothing active: only the statistics reconcile runs.
	poller.PollOnce(context.Background())
	if n := atomic.LoadInt32(&api.activeCalls); n != 0 {
		t.Fatalf("expected no active-attempt polls, got %d", n)
	}
	if n := atomic.LoadInt32(&api.statsCalls); n != 1 {
		t.Fatalf("expected one statistics fetch, got %d", n)
	}

	state.SetExpanded("quiz-1", true)
	poller.PollOnce(context.Background())
	if n := atomic.LoadInt32(&api.activeCalls); n != 1 {
		t.Fatalf("expected one active-attempt poll, got %d", n)
	}
	if n := atomic.LoadInt32(&api.historyCalls); n != 1 {
		t.Fatalf("expected one history poll, got %d", n)
	}
}

func TestPollOnceSkipsSubmittedQuizzes(t *testing.T) {
	poller, state, api := pollerFixture()

	state.SetExpanded("quiz-1", true)
	state.RecordSubmission("quiz-1", domain.QuizResult{Percentage: 100, Passed: true})

	poller.PollOnce(context.Background())
	if n := atomic.LoadInt32(&api.activeCalls); n != 0 {
		t.Fatalf("terminal quiz must not be polled, got %d polls", n)
	}
}

func TestPollOnceStopsReconcilingOnceStatsLoaded(t *testing.T) {
	poller, _, api := pollerFixture()

	poller.PollOnce(context.Background())
	poller.PollOnce(context.Background())
	if n := atomic.LoadInt32(&api.statsCalls); n != 1 {
		t.Fatalf("expected statistics fetched once, got %d", n)
	}
}

func TestRunStopsOnCancelAndDiscardsLateTicks(t *testing.T) {
	poller, state, api := pollerFixture()
	state.SetExpanded("quiz-1", true)

	ticks := make(chan time.Time)
	poller.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		return ticks, func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx)
	}()

	ticks <- time.Now()
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&api.activeCalls) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("tick never triggered a poll")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	// One immediate pass plus one tick; nothing after cancellation.
	if polled := atomic.LoadInt32(&api.activeCalls); polled != 2 {
		t.Fatalf("expected 2 polls before cancel, got %d", polled)
	}
}
