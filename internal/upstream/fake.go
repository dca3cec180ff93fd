package upstream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lms-quiz-engine/internal/domain"
)

// Fake is an in-memory upstream used by tests and by `serve` when no real LMS
// is configured. It enforces the same invariants the real backend does: one
// active attempt per (quiz, learner), immutable submitted attempts, strictly
// increasing attempt counts.
type Fake struct {
	mu        sync.RWMutex
	now       func() time.Time
	quizzes   map[string]domain.Quiz       // by quiz id
	questions map[string][]domain.Question // by quiz id
	attempts  map[string]*domain.Attempt   // by attempt id
	counts    map[string]int               // quizID|learnerID -> attempts so far
}

// NewFake seeds a fake upstream with quizzes and their questions.
func NewFake(quizzes []domain.Quiz, questions map[string][]domain.Question) *Fake {
	f := &Fake{
		now:       time.Now,
		quizzes:   make(map[string]domain.Quiz),
		questions: make(map[string][]domain.Question),
		attempts:  make(map[string]*domain.Attempt),
		counts:    make(map[string]int),
	}
	for _, q := range quizzes {
		f.quizzes[q.ID] = q
	}
	for quizID, qs := range questions {
		f.questions[quizID] = qs
	}
	return f
}

// NewFakeWithClock is test-only for deterministic timestamps.
func NewFakeWithClock(quizzes []domain.Quiz, questions map[string][]domain.Question, now func() time.Time) *Fake {
	f := NewFake(quizzes, questions)
	f.now = now
	return f
}

func (f *Fake) LessonQuizzes(_ context.Context, lessonID string) ([]domain.Quiz, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []domain.Quiz
	for _, q := range f.quizzes {
		if q.LessonID == lessonID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) QuizQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	qs, ok := f.questions[quizID]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	return append([]domain.Question(nil), qs...), nil
}

func (f *Fake) CreateAttempt(_ context.Context, quizID, learnerID string) (domain.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.quizzes[quizID]; !ok {
		return domain.Attempt{}, domain.ErrQuizNotFound
	}
	for _, a := range f.attempts {
		if a.QuizID == quizID && a.LearnerID == learnerID && a.Active() {
			return domain.Attempt{}, domain.ErrAttemptActive
		}
	}
	key := quizID + "|" + learnerID
	f.counts[key]++
	attempt := &domain.Attempt{
		ID:           uuid.NewString(),
		QuizID:       quizID,
		LearnerID:    learnerID,
		StartedAt:    f.now(),
		Answers:      []domain.AnswerRecord{},
		AttemptCount: f.counts[key],
	}
	f.attempts[attempt.ID] = attempt
	return *attempt, nil
}

func (f *Fake) SubmitAttempt(_ context.Context, attemptID string, answers []domain.AnswerRecord, score int) (domain.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if !attempt.Active() {
		return domain.Attempt{}, domain.ErrAttemptSubmitted
	}
	submitted := f.now()
	attempt.SubmittedAt = &submitted
	attempt.Score = &score
	attempt.Answers = append([]domain.AnswerRecord(nil), answers...)
	return *attempt, nil
}

func (f *Fake) ActiveAttempt(_ context.Context, quizID, learnerID string) (domain.Attempt, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, a := range f.attempts {
		if a.QuizID == quizID && a.LearnerID == learnerID && a.Active() {
			return *a, true, nil
		}
	}
	return domain.Attempt{}, false, nil
}

func (f *Fake) AttemptHistory(_ context.Context, quizID, learnerID string) (domain.AttemptHistory, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var history domain.AttemptHistory
	for _, a := range f.attempts {
		if a.QuizID == quizID && a.LearnerID == learnerID && !a.Active() {
			history.Attempts = append(history.Attempts, *a)
		}
	}
	sort.Slice(history.Attempts, func(i, j int) bool {
		return history.Attempts[i].AttemptCount < history.Attempts[j].AttemptCount
	})
	history.Stats = statsFor(history.Attempts)
	return history, nil
}

func (f *Fake) LearnerStatistics(_ context.Context, learnerID string) ([]domain.Attempt, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []domain.Attempt
	for _, a := range f.attempts {
		if a.LearnerID == learnerID && !a.Active() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func statsFor(attempts []domain.Attempt) domain.AttemptStats {
	stats := domain.AttemptStats{TotalAttempts: len(attempts)}
	if len(attempts) == 0 {
		return stats
	}
	sum := 0
	for _, a := range attempts {
		score := 0
		if a.Score != nil {
			score = *a.Score
		}
		sum += score
		if score > stats.HighestScore {
			stats.HighestScore = score
		}
		stats.LastAttemptScore = score
		if a.SubmittedAt != nil {
			stats.LastAttemptAt = *a.SubmittedAt
		}
	}
	stats.AverageScore = float64(sum) / float64(len(attempts))
	return stats
}
