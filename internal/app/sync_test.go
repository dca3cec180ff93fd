package app_test

import (
	"context"
	"errors"
	"testing"

	"lms-quiz-engine/internal/app"
	"lms-quiz-engine/internal/domain"
	"lms-quiz-engine/internal/upstream"
)

func TestPollActiveAttemptRestoresFromServer(t *testing.T) {
	ctx := context.Background()
	quizzes, questions := threeQuestionQuiz()
	fake := upstream.NewFake(quizzes, questions)

	// Attempt started in another tab: the local session knows nothing.
	attempt, err := fake.CreateAttempt(ctx, "quiz-1", "learner-1")
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	state := app.NewAttemptState("lesson-1", "learner-1", quizzes)
	syncer := app.NewSyncer(state, fake, "learner-1")

	syncer.PollActiveAttempt(ctx, "quiz-1")
	if got := state.ActiveAttemptID("quiz-1"); got != attempt.ID {
		t.Fatalf("expected restored attempt %s, got %q", attempt.ID, got)
	}

	// Polling again with the same upstream answer is a no-op.
	syncer.PollActiveAttempt(ctx, "quiz-1")
	if got := state.ActiveAttemptID("quiz-1"); got != attempt.ID {
		t.Fatalf("expected attempt unchanged, got %q", got)
	}
}

func TestPollHistoryBackfillsResult(t *testing.T) {
	ctx := context.Background()
	quizzes, questions := threeQuestionQuiz()
	fake := upstream.NewFake(quizzes, questions)

	attempt, _ := fake.CreateAttempt(ctx, "quiz-1", "learner-1")
	if _, err := fake.SubmitAttempt(ctx, attempt.ID, nil, 100); err != nil {
		t.Fatalf("submit attempt: %v", err)
	}

	state := app.NewAttemptState("lesson-1", "learner-1", quizzes)
	syncer := app.NewSyncer(state, fake, "learner-1")

	syncer.PollHistory(ctx, "quiz-1")
	result, ok := state.Result("quiz-1")
	if !ok {
		t.Fatalf("expected backfilled result")
	}
	if result.Percentage != 100 || !result.SyncedWithAPI || !result.HasHistory {
		t.Fatalf("unexpected backfilled result %+v", result)
	}
}

type failingAPI struct {
	upstream.API
}

var errUpstreamDown = errors.New("upstream down")

func (failingAPI) ActiveAttempt(context.Context, string, string) (domain.Attempt, bool, error) {
	return domain.Attempt{}, false, errUpstreamDown
}

func (failingAPI) AttemptHistory(context.Context, string, string) (domain.AttemptHistory, error) {
	return domain.AttemptHistory{}, errUpstreamDown
}

func (failingAPI) LearnerStatistics(context.Context, string) ([]domain.Attempt, error) {
	return nil, errUpstreamDown
}

// Polling failures are background reconciliation, not learner actions: they
// are swallowed and leave state untouched.
func TestPollFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	quizzes, _ := threeQuestionQuiz()
	state := app.NewAttemptState("lesson-1", "learner-1", quizzes)
	syncer := app.NewSyncer(state, failingAPI{}, "learner-1")

	syncer.PollActiveAttempt(ctx, "quiz-1")
	syncer.PollHistory(ctx, "quiz-1")
	syncer.ReconcileLearnerStatistics(ctx)

	if state.ActiveAttemptID("quiz-1") != "" {
		t.Fatalf("expected no attempt tracked")
	}
	if _, ok := state.Result("quiz-1"); ok {
		t.Fatalf("expected no result recorded")
	}
	if state.StatsLoaded() {
		t.Fatalf("a failed statistics fetch must not mark stats loaded")
	}
}
