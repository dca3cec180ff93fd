// Package upstream models the external LMS REST API this engine consumes.
// The engine never owns attempt records; it only creates, submits, and reads
// them through this surface.
package upstream

import (
	"context"

	"lms-quiz-engine/internal/domain"
)

// API is the consumer-side view of the upstream LMS.
type API interface {
	// LessonQuizzes returns the quiz metadata for a lesson.
	LessonQuizzes(ctx context.Context, lessonID string) ([]domain.Quiz, error)
	// QuizQuestions returns the ordered question list, correct options included,
	// so scoring can happen engine-side.
	QuizQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
	// CreateAttempt starts a new attempt. The upstream rejects it with
	// domain.ErrAttemptActive while an unsubmitted attempt exists for the pair.
	CreateAttempt(ctx context.Context, quizID, learnerID string) (domain.Attempt, error)
	// SubmitAttempt finalizes an attempt with the full per-question breakdown
	// and the engine-computed percentage.
	SubmitAttempt(ctx context.Context, attemptID string, answers []domain.AnswerRecord, score int) (domain.Attempt, error)
	// ActiveAttempt returns the learner's unsubmitted attempt for a quiz, if any.
	ActiveAttempt(ctx context.Context, quizID, learnerID string) (domain.Attempt, bool, error)
	// AttemptHistory returns all past attempts plus aggregate stats for one quiz.
	AttemptHistory(ctx context.Context, quizID, learnerID string) (domain.AttemptHistory, error)
	// LearnerStatistics returns the learner's attempts across all quizzes.
	LearnerStatistics(ctx context.Context, learnerID string) ([]domain.Attempt, error)
}
