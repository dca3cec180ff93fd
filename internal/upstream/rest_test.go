package upstream

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"lms-quiz-engine/internal/domain"
)

// The REST client is exercised against the fake's handler, which serves the
// same routes the real LMS does.
func restFixture(t *testing.T) (*RESTClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(fakeFixture().Handler())
	t.Cleanup(server.Close)
	return NewRESTClient(server.URL, 5*time.Second), server
}

func TestRESTClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, _ := restFixture(t)

	quizzes, err := client.LessonQuizzes(ctx, "lesson-1")
	if err != nil {
		t.Fatalf("lesson quizzes: %v", err)
	}
	if len(quizzes) != 1 || quizzes[0].ID != "quiz-1" {
		t.Fatalf("unexpected quizzes %+v", quizzes)
	}

	questions, err := client.QuizQuestions(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("quiz questions: %v", err)
	}
	if len(questions) != 1 || questions[0].Correct != "4" {
		t.Fatalf("unexpected questions %+v", questions)
	}

	attempt, err := client.CreateAttempt(ctx, "quiz-1", "learner-1")
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if attempt.ID == "" || attempt.AttemptCount != 1 {
		t.Fatalf("unexpected attempt %+v", attempt)
	}

	active, ok, err := client.ActiveAttempt(ctx, "quiz-1", "learner-1")
	if err != nil || !ok {
		t.Fatalf("active attempt: ok=%v err=%v", ok, err)
	}
	if active.ID != attempt.ID {
		t.Fatalf("expected active attempt %s, got %s", attempt.ID, active.ID)
	}

	submitted, err := client.SubmitAttempt(ctx, attempt.ID, []domain.AnswerRecord{
		{QuestionID: "q1", SelectedOption: "4", IsCorrect: true},
	}, 100)
	if err != nil {
		t.Fatalf("submit attempt: %v", err)
	}
	if submitted.SubmittedAt == nil || *submitted.Score != 100 {
		t.Fatalf("unexpected submitted attempt %+v", submitted)
	}

	history, err := client.AttemptHistory(ctx, "quiz-1", "learner-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.Stats.TotalAttempts != 1 || history.Stats.HighestScore != 100 {
		t.Fatalf("unexpected history %+v", history.Stats)
	}

	attempts, err := client.LearnerStatistics(ctx, "learner-1")
	if err != nil {
		t.Fatalf("learner statistics: %v", err)
	}
	if len(attempts) != 1 || attempts[0].QuizID != "quiz-1" {
		t.Fatalf("unexpected statistics %+v", attempts)
	}
}

func TestRESTClientActiveAttemptNotFound(t *testing.T) {
	ctx := context.Background()
	client, _ := restFixture(t)

	_, ok, err := client.ActiveAttempt(ctx, "quiz-1", "learner-1")
	if err != nil {
		t.Fatalf("active attempt: %v", err)
	}
	if ok {
		t.Fatalf("expected no active attempt")
	}
}

func TestRESTClientMapsConflictToAttemptActive(t *testing.T) {
	ctx := context.Background()
	client, _ := restFixture(t)

	if _, err := client.CreateAttempt(ctx, "quiz-1", "learner-1"); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if _, err := client.CreateAttempt(ctx, "quiz-1", "learner-1"); err != domain.ErrAttemptActive {
		t.Fatalf("expected ErrAttemptActive, got %v", err)
	}
}
