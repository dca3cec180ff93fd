package app

import (
	"context"
	"fmt"
	"math"
	"sync"

	"lms-quiz-engine/internal/domain"
	"lms-quiz-engine/internal/upstream"
)

// CatalogRepository loads quiz metadata and questions (usually through a
// TTL cache in front of the upstream or the course DB).
type CatalogRepository interface {
	LessonQuizzes(ctx context.Context, lessonID string) ([]domain.Quiz, error)
	QuizQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// StartDecision is the outcome of StartOrContinue.
type StartDecision string

const (
	// DecisionContinued means an in-progress attempt was resumed locally.
	DecisionContinued StartDecision = "continued"
	// DecisionStarted means a fresh attempt was created upstream.
	DecisionStarted StartDecision = "started"
	// DecisionChoiceRequired means a prior result exists and the learner must
	// pick between restarting from scratch and viewing the past result.
	DecisionChoiceRequired StartDecision = "choice_required"
)

// Controller drives the per-quiz attempt state machine:
// NotStarted -> InProgress -> Submitted (-> Review) -> Retrying -> InProgress.
// It is the only mutation surface over AttemptState; every network-calling
// action either fully applies its transition or leaves state untouched, and
// every learner-initiated action produces learner-visible feedback.
type Controller struct {
	state     *AttemptState
	api       upstream.API
	catalog   CatalogRepository
	syncer    *Syncer
	learnerID string

	mu       sync.Mutex
	inflight map[string]bool
}

func NewController(state *AttemptState, api upstream.API, catalog CatalogRepository, syncer *Syncer, learnerID string) *Controller {
	return &Controller{
		state:     state,
		api:       api,
		catalog:   catalog,
		syncer:    syncer,
		learnerID: learnerID,
		inflight:  make(map[string]bool),
	}
}

// begin marks a quiz as having a non-reentrant action in flight. A second
// start or submit for the same quiz is rejected until the first resolves, so
// a double-clicked button never issues two upstream calls.
func (c *Controller) begin(quizID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[quizID] {
		return domain.ErrActionInFlight
	}
	c.inflight[quizID] = true
	return nil
}

func (c *Controller) end(quizID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, quizID)
}

// Start creates a new attempt upstream and begins tracking it. On failure the
// quiz stays NotStarted and the learner is told why.
func (c *Controller) Start(ctx context.Context, quizID string) error {
	if err := c.begin(quizID); err != nil {
		return err
	}
	defer c.end(quizID)

	attempt, err := c.api.CreateAttempt(ctx, quizID, c.learnerID)
	if err != nil {
		c.state.Notify(Notification{
			Level:   "error",
			QuizID:  quizID,
			Message: fmt.Sprintf("could not start quiz: %v", err),
		})
		return err
	}
	c.state.RestoreActiveAttempt(quizID, attempt.ID)
	c.state.SetExpanded(quizID, true)
	return nil
}

// Answer stores one draft answer. Pure local update, no upstream call. Only
// an in-progress attempt accepts answers: not started, submitted, and review
// states all reject the edit.
func (c *Controller) Answer(quizID, questionID, option string) error {
	if c.state.InReview(quizID) {
		return domain.ErrReviewMode
	}
	if c.state.IsSubmitted(quizID) {
		return domain.ErrAttemptSubmitted
	}
	if c.state.ActiveAttemptID(quizID) == "" {
		return domain.ErrNoActiveAttempt
	}
	c.state.SetAnswer(quizID, questionID, option)
	return nil
}

// Submit scores the draft answers engine-side and finalizes the attempt
// upstream. Preconditions are checked before any upstream mutation: a tracked
// attempt id must exist and every question must be answered. On upstream
// failure no state advances and the learner may submit again.
func (c *Controller) Submit(ctx context.Context, quizID string) error {
	if err := c.begin(quizID); err != nil {
		return err
	}
	defer c.end(quizID)

	attemptID := c.state.ActiveAttemptID(quizID)
	if attemptID == "" {
		c.state.Notify(Notification{
			Level:   "error",
			QuizID:  quizID,
			Message: "attempt id missing, please restart the quiz",
		})
		return domain.ErrNoActiveAttempt
	}

	questions, err := c.catalog.QuizQuestions(ctx, quizID)
	if err != nil {
		c.state.Notify(Notification{
			Level:   "error",
			QuizID:  quizID,
			Message: fmt.Sprintf("could not load questions: %v", err),
		})
		return err
	}

	answers := c.state.Answers(quizID)
	for _, q := range questions {
		if _, ok := answers[q.ID]; !ok {
			c.state.Notify(Notification{
				Level:   "warning",
				QuizID:  quizID,
				Message: "answer all questions before submitting",
			})
			return domain.ErrUnansweredQuestions
		}
	}

	quiz, _ := c.state.Quiz(quizID)
	percentage, records, details := scoreAttempt(questions, answers)
	passed := percentage >= quiz.Threshold()

	attempt, err := c.api.SubmitAttempt(ctx, attemptID, records, percentage)
	if err != nil {
		c.state.Notify(Notification{
			Level:   "error",
			QuizID:  quizID,
			Message: fmt.Sprintf("could not submit quiz: %v", err),
		})
		return err
	}

	result := domain.QuizResult{
		Percentage: percentage,
		Passed:     passed,
		Details:    details,
	}
	if attempt.SubmittedAt != nil {
		result.SubmittedAt = *attempt.SubmittedAt
	}
	c.state.RecordSubmission(quizID, result)

	if passed {
		c.state.Notify(Notification{
			Level:   "success",
			QuizID:  quizID,
			Message: fmt.Sprintf("scored %d%%, quiz passed", percentage),
		})
	} else {
		c.state.Notify(Notification{
			Level:   "warning",
			QuizID:  quizID,
			Message: fmt.Sprintf("scored %d%%, below the %d%% passing score", percentage, quiz.Threshold()),
		})
	}

	// Shrink the gate's staleness window right after a submit instead of
	// waiting for the next poll tick.
	c.syncer.ReconcileLearnerStatistics(ctx)
	return nil
}

// Retry resets per-quiz state and immediately starts a brand-new attempt.
// The lifetime pass set survives the reset, so a failed retry never re-locks
// a lesson the learner already unlocked.
func (c *Controller) Retry(ctx context.Context, quizID string) error {
	c.state.ResetForRetry(quizID)
	return c.Start(ctx, quizID)
}

// StartOrContinue is the decision entrypoint bound to the primary button:
// resume a tracked in-progress attempt without an upstream call, ask the
// learner to choose when a prior result exists, otherwise start fresh.
func (c *Controller) StartOrContinue(ctx context.Context, quizID string) (StartDecision, error) {
	if c.state.ActiveAttemptID(quizID) != "" && !c.state.IsSubmitted(quizID) {
		c.state.SetExpanded(quizID, true)
		return DecisionContinued, nil
	}
	if _, ok := c.state.Result(quizID); ok {
		c.state.OfferChoice(quizID)
		return DecisionChoiceRequired, nil
	}
	if err := c.Start(ctx, quizID); err != nil {
		return "", err
	}
	return DecisionStarted, nil
}

// ViewReview switches the quiz into read-only review mode rendering the
// stored result details. No further edits or re-submission are possible.
func (c *Controller) ViewReview(quizID string) error {
	if _, ok := c.state.Result(quizID); !ok {
		c.state.Notify(Notification{
			Level:   "error",
			QuizID:  quizID,
			Message: "no result to review yet",
		})
		return domain.ErrAttemptNotFound
	}
	c.state.EnterReview(quizID)
	return nil
}

// Expand and Collapse track the quiz panel, which also gates polling.
func (c *Controller) Expand(quizID string)   { c.state.SetExpanded(quizID, true) }
func (c *Controller) Collapse(quizID string) { c.state.SetExpanded(quizID, false) }

// scoreAttempt compares each stored answer to the question's correct option
// by exact string equality (no trimming, no case folding) and rounds the
// percentage: round(100 * correct / total).
func scoreAttempt(questions []domain.Question, answers map[string]string) (int, []domain.AnswerRecord, []domain.ResultDetail) {
	correct := 0
	records := make([]domain.AnswerRecord, 0, len(questions))
	details := make([]domain.ResultDetail, 0, len(questions))
	for _, q := range questions {
		selected := answers[q.ID]
		isCorrect := selected == q.Correct
		if isCorrect {
			correct++
		}
		records = append(records, domain.AnswerRecord{
			QuestionID:     q.ID,
			SelectedOption: selected,
			IsCorrect:      isCorrect,
		})
		details = append(details, domain.ResultDetail{
			QuestionID:     q.ID,
			Prompt:         q.Prompt,
			SelectedOption: selected,
			CorrectOption:  q.Correct,
			IsCorrect:      isCorrect,
			Explanation:    q.Explanation,
		})
	}
	if len(questions) == 0 {
		return 0, records, details
	}
	percentage := int(math.Round(100 * float64(correct) / float64(len(questions))))
	return percentage, records, details
}
