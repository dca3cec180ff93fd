package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz metadata could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrLessonNotFound indicates the lesson has no catalog entry upstream.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrAttemptNotFound indicates an attempt id unknown to the upstream.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrNoActiveAttempt is returned when submitting without a tracked attempt id.
	ErrNoActiveAttempt = errors.New("no active attempt for quiz")
	// ErrAttemptActive is returned by the upstream when a second attempt is
	// created while one is still unsubmitted.
	ErrAttemptActive = errors.New("an attempt is already active for this quiz")
	// ErrAttemptSubmitted indicates a mutation on an already-submitted attempt.
	ErrAttemptSubmitted = errors.New("attempt already submitted")
	// ErrUnansweredQuestions blocks submission until every question has an answer.
	ErrUnansweredQuestions = errors.New("all questions must be answered before submitting")
	// ErrActionInFlight guards start/submit against double dispatch per quiz.
	ErrActionInFlight = errors.New("another request for this quiz is still in flight")
	// ErrReviewMode is returned when answering while the quiz panel is read-only.
	ErrReviewMode = errors.New("quiz is in review mode")
)
