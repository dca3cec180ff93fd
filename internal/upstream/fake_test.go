package upstream

import (
	"context"
	"testing"
	"time"

	"lms-quiz-engine/internal/domain"
)

func fakeFixture() *Fake {
	quizzes := []domain.Quiz{
		{ID: "quiz-1", LessonID: "lesson-1", PassingScore: 70},
	}
	questions := map[string][]domain.Question{
		"quiz-1": {
			{ID: "q1", QuizID: "quiz-1", Options: []string{"3", "4"}, Correct: "4"},
		},
	}
	return NewFake(quizzes, questions)
}

func TestSingleActiveAttemptPerLearner(t *testing.T) {
	ctx := context.Background()
	fake := fakeFixture()

	first, err := fake.CreateAttempt(ctx, "quiz-1", "learner-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := fake.CreateAttempt(ctx, "quiz-1", "learner-1"); err != domain.ErrAttemptActive {
		t.Fatalf("expected ErrAttemptActive, got %v", err)
	}

	// A different learner is unaffected.
	if _, err := fake.CreateAttempt(ctx, "quiz-1", "learner-2"); err != nil {
		t.Fatalf("create for second learner: %v", err)
	}

	if _, err := fake.SubmitAttempt(ctx, first.ID, nil, 50); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := fake.CreateAttempt(ctx, "quiz-1", "learner-1"); err != nil {
		t.Fatalf("create after submit: %v", err)
	}
}

func TestAttemptCountStrictlyIncreases(t *testing.T) {
	ctx := context.Background()
	fake := fakeFixture()

	for want := 1; want <= 3; want++ {
		attempt, err := fake.CreateAttempt(ctx, "quiz-1", "learner-1")
		if err != nil {
			t.Fatalf("create %d: %v", want, err)
		}
		if attempt.AttemptCount != want {
			t.Fatalf("expected attempt count %d, got %d", want, attempt.AttemptCount)
		}
		if _, err := fake.SubmitAttempt(ctx, attempt.ID, nil, 10*want); err != nil {
			t.Fatalf("submit %d: %v", want, err)
		}
	}
}

func TestSubmittedAttemptIsImmutable(t *testing.T) {
	ctx := context.Background()
	fake := fakeFixture()

	attempt, _ := fake.CreateAttempt(ctx, "quiz-1", "learner-1")
	submitted, err := fake.SubmitAttempt(ctx, attempt.ID, []domain.AnswerRecord{
		{QuestionID: "q1", SelectedOption: "4", IsCorrect: true},
	}, 100)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.SubmittedAt == nil || submitted.Score == nil || *submitted.Score != 100 {
		t.Fatalf("unexpected submitted attempt %+v", submitted)
	}

	if _, err := fake.SubmitAttempt(ctx, attempt.ID, nil, 0); err != domain.ErrAttemptSubmitted {
		t.Fatalf("expected ErrAttemptSubmitted, got %v", err)
	}
}

func TestHistoryStats(t *testing.T) {
	ctx := context.Background()
	fake := NewFakeWithClock(
		[]domain.Quiz{{ID: "quiz-1", LessonID: "lesson-1"}},
		map[string][]domain.Question{"quiz-1": {}},
		func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	)

	for _, score := range []int{40, 80, 60} {
		attempt, err := fake.CreateAttempt(ctx, "quiz-1", "learner-1")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := fake.SubmitAttempt(ctx, attempt.ID, nil, score); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	history, err := fake.AttemptHistory(ctx, "quiz-1", "learner-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	stats := history.Stats
	if stats.TotalAttempts != 3 || stats.HighestScore != 80 || stats.LastAttemptScore != 60 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.AverageScore != 60 {
		t.Fatalf("expected average 60, got %v", stats.AverageScore)
	}
}
