package app

import (
	"sync"
	"time"

	"lms-quiz-engine/internal/domain"
)

// QuizStatus is the per-quiz position in the attempt state machine.
type QuizStatus string

const (
	StatusNotStarted QuizStatus = "not_started"
	StatusInProgress QuizStatus = "in_progress"
	StatusSubmitted  QuizStatus = "submitted"
	StatusReview     QuizStatus = "review"
)

// Notification is a transient learner-facing message emitted by actions.
type Notification struct {
	Level   string `json:"level"` // success, info, warning, error
	QuizID  string `json:"quizId,omitempty"`
	Message string `json:"message"`
}

// QuizSnapshot is the read-only projection of one quiz's state for rendering.
type QuizSnapshot struct {
	Quiz            domain.Quiz          `json:"quiz"`
	Status          QuizStatus           `json:"status"`
	Answers         map[string]string    `json:"answers"`
	Result          *domain.QuizResult   `json:"result,omitempty"`
	ActiveAttemptID string               `json:"activeAttemptId,omitempty"`
	Stats           *domain.AttemptStats `json:"stats,omitempty"`
	Passed          bool                 `json:"passed"`
	Expanded        bool                 `json:"expanded"`
}

// Snapshot is the full lesson-session projection, including the progression
// gate's verdict.
type Snapshot struct {
	LessonID     string         `json:"lessonId"`
	LearnerID    string         `json:"learnerId"`
	Quizzes      []QuizSnapshot `json:"quizzes"`
	CanAdvance   bool           `json:"canAdvance"`
	HighestScore int            `json:"highestScore"`
	StatsLoaded  bool           `json:"statsLoaded"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Event is what subscribers receive: a fresh snapshot, a notification, or the
// controller asking the learner to choose between restart and review.
type Event struct {
	State  *Snapshot     `json:"state,omitempty"`
	Notice *Notification `json:"notice,omitempty"`
	Choice string        `json:"choice,omitempty"` // quiz id awaiting restart-or-review
}

// PersistedState is the portion of session state worth surviving a reconnect:
// draft answers, tracked attempt ids, and lifetime passes.
type PersistedState struct {
	Answers map[string]map[string]string `json:"answers"`
	Active  map[string]string            `json:"active"`
	Passed  []string                     `json:"passed"`
}

// AttemptState holds all client-derived quiz state for one (learner, lesson)
// session. It is a cache over the upstream, not a source of truth; the session
// owns it and all mutation goes through the controller and syncer.
type AttemptState struct {
	lessonID  string
	learnerID string
	now       func() time.Time

	mu           sync.RWMutex
	catalog      []domain.Quiz
	byID         map[string]domain.Quiz
	answers      map[string]map[string]string
	submitted    map[string]bool
	results      map[string]*domain.QuizResult
	active       map[string]string
	passed       map[string]struct{}
	review       map[string]bool
	expanded     map[string]bool
	history      map[string]domain.AttemptStats
	serverScores map[string][]int
	statsLoaded  bool
	subscribers  map[chan Event]struct{}
}

// NewAttemptState builds state for a lesson's quiz catalog.
func NewAttemptState(lessonID, learnerID string, catalog []domain.Quiz) *AttemptState {
	return NewAttemptStateWithClock(lessonID, learnerID, catalog, time.Now)
}

// NewAttemptStateWithClock allows deterministic timestamps in tests.
func NewAttemptStateWithClock(lessonID, learnerID string, catalog []domain.Quiz, now func() time.Time) *AttemptState {
	byID := make(map[string]domain.Quiz, len(catalog))
	for _, q := range catalog {
		byID[q.ID] = q
	}
	return &AttemptState{
		lessonID:     lessonID,
		learnerID:    learnerID,
		now:          now,
		catalog:      append([]domain.Quiz(nil), catalog...),
		byID:         byID,
		answers:      make(map[string]map[string]string),
		submitted:    make(map[string]bool),
		results:      make(map[string]*domain.QuizResult),
		active:       make(map[string]string),
		passed:       make(map[string]struct{}),
		review:       make(map[string]bool),
		expanded:     make(map[string]bool),
		history:      make(map[string]domain.AttemptStats),
		serverScores: make(map[string][]int),
		subscribers:  make(map[chan Event]struct{}),
	}
}

// SetAnswer overwrites one draft answer. The value is not validated against
// the question's options; an invalid value simply scores as incorrect.
func (s *AttemptState) SetAnswer(quizID, questionID, option string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, ok := s.answers[quizID]
	if !ok {
		draft = make(map[string]string)
		s.answers[quizID] = draft
	}
	if draft[questionID] == option {
		return // idempotent, no broadcast
	}
	draft[questionID] = option
	s.broadcastLocked()
}

// RecordSubmission marks the quiz submitted, stores its result, clears the
// tracked attempt id, and remembers a pass for the rest of the session.
func (s *AttemptState) RecordSubmission(quizID string, result domain.QuizResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted[quizID] = true
	s.results[quizID] = &result
	delete(s.active, quizID)
	if result.Passed {
		s.passed[quizID] = struct{}{}
	}
	s.broadcastLocked()
}

// ResetForRetry clears answers, submission flag, result, and review mode for a
// quiz. Membership in the lifetime pass set is deliberately preserved: a
// learner who already passed stays unlocked through a voluntary retry.
func (s *AttemptState) ResetForRetry(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.answers, quizID)
	delete(s.submitted, quizID)
	delete(s.results, quizID)
	delete(s.review, quizID)
	s.broadcastLocked()
}

// RestoreActiveAttempt sets the tracked attempt id without touching other
// state. Idempotent; restoring the already-tracked id is a no-op.
func (s *AttemptState) RestoreActiveAttempt(quizID, attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[quizID] == attemptID {
		return
	}
	s.active[quizID] = attemptID
	s.broadcastLocked()
}

// SetExpanded tracks whether the quiz panel is open; the poller only polls
// expanded or active quizzes.
func (s *AttemptState) SetExpanded(quizID string, expanded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expanded[quizID] == expanded {
		return
	}
	s.expanded[quizID] = expanded
	s.broadcastLocked()
}

// EnterReview switches the quiz panel to the read-only review rendering.
func (s *AttemptState) EnterReview(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.review[quizID] {
		return
	}
	s.review[quizID] = true
	s.expanded[quizID] = true
	s.broadcastLocked()
}

// ApplyHistory merges a per-quiz history fetch. Local results win for detail;
// the server wins for existence: a result is synthesized only when nothing is
// known locally.
func (s *AttemptState) ApplyHistory(quizID string, history domain.AttemptHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[quizID] = history.Stats
	if last, ok := latestSubmitted(history.Attempts); ok {
		s.mergeServerAttemptLocked(quizID, *last.Score, *last.SubmittedAt)
	}
	s.broadcastLocked()
}

// MergeLearnerAttempts reconciles the learner-wide statistics fetch. Raw
// scores are kept for the gate's server-first tier; results are synthesized
// for quizzes with no local state, and existing local results only gain the
// history flags, never lose their Details.
func (s *AttemptState) MergeLearnerAttempts(attempts []domain.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scores := make(map[string][]int)
	for _, a := range attempts {
		if a.Score == nil {
			continue
		}
		scores[a.QuizID] = append(scores[a.QuizID], *a.Score)
		if _, ok := s.byID[a.QuizID]; ok {
			submittedAt := time.Time{}
			if a.SubmittedAt != nil {
				submittedAt = *a.SubmittedAt
			}
			s.mergeServerAttemptLocked(a.QuizID, *a.Score, submittedAt)
		}
	}
	s.serverScores = scores
	for quizID, quizScores := range scores {
		th := s.thresholdLocked(quizID)
		for _, score := range quizScores {
			if score >= th {
				s.passed[quizID] = struct{}{}
				break
			}
		}
	}
	s.statsLoaded = true
	s.broadcastLocked()
}

// mergeServerAttemptLocked backfills or flags a result from a server-sourced
// attempt that carries no per-question breakdown.
func (s *AttemptState) mergeServerAttemptLocked(quizID string, score int, submittedAt time.Time) {
	if existing, ok := s.results[quizID]; ok {
		existing.HasHistory = true
		existing.SyncedWithAPI = true
		return
	}
	s.results[quizID] = &domain.QuizResult{
		Percentage:    score,
		Passed:        score >= s.thresholdLocked(quizID),
		SubmittedAt:   submittedAt,
		HasHistory:    true,
		SyncedWithAPI: true,
	}
}

func (s *AttemptState) thresholdLocked(quizID string) int {
	if q, ok := s.byID[quizID]; ok {
		return q.Threshold()
	}
	return domain.DefaultPassingScore
}

// Subscribe returns a channel receiving events for this session. The caller
// must invoke the returned cancel function to avoid leaks.
func (s *AttemptState) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- Event{State: &initial}

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Notify fans a notification out to all subscribers.
func (s *AttemptState) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fanoutLocked(Event{Notice: &n})
}

// OfferChoice asks subscribers to pick between restart and review for a quiz.
func (s *AttemptState) OfferChoice(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fanoutLocked(Event{Choice: quizID})
}

func (s *AttemptState) broadcastLocked() {
	snap := s.snapshotLocked()
	s.fanoutLocked(Event{State: &snap})
}

func (s *AttemptState) fanoutLocked(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest event so a slow consumer never blocks the session.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Snapshot returns the current read-only projection.
func (s *AttemptState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *AttemptState) snapshotLocked() Snapshot {
	snap := Snapshot{
		LessonID:     s.lessonID,
		LearnerID:    s.learnerID,
		CanAdvance:   s.canAdvanceLocked(),
		HighestScore: s.highestScoreLocked(),
		StatsLoaded:  s.statsLoaded,
		UpdatedAt:    s.now(),
	}
	for _, q := range s.catalog {
		qs := QuizSnapshot{
			Quiz:            q,
			Status:          s.statusLocked(q.ID),
			Answers:         copyAnswers(s.answers[q.ID]),
			ActiveAttemptID: s.active[q.ID],
			Expanded:        s.expanded[q.ID],
		}
		if r, ok := s.results[q.ID]; ok {
			result := *r
			qs.Result = &result
		}
		if h, ok := s.history[q.ID]; ok {
			stats := h
			qs.Stats = &stats
		}
		qs.Passed = s.quizPassedLocked(q)
		snap.Quizzes = append(snap.Quizzes, qs)
	}
	return snap
}

func (s *AttemptState) statusLocked(quizID string) QuizStatus {
	switch {
	case s.review[quizID]:
		return StatusReview
	case s.submitted[quizID]:
		return StatusSubmitted
	case s.active[quizID] != "":
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}

// quizPassedLocked is the two-tier pass check: learner-wide server statistics
// first, then local results and the lifetime pass set. Until statistics have
// loaded, a quiz with no local state reports locked.
func (s *AttemptState) quizPassedLocked(q domain.Quiz) bool {
	th := q.Threshold()
	if s.statsLoaded {
		for _, score := range s.serverScores[q.ID] {
			if score >= th {
				return true
			}
		}
	}
	if r, ok := s.results[q.ID]; ok && r.Percentage >= th {
		return true
	}
	_, ok := s.passed[q.ID]
	return ok
}

func (s *AttemptState) canAdvanceLocked() bool {
	for _, q := range s.catalog {
		if !s.quizPassedLocked(q) {
			return false
		}
	}
	return true
}

// highestScoreLocked takes the maximum score per quiz across server and local
// sources, then the maximum across the lesson's quizzes.
func (s *AttemptState) highestScoreLocked() int {
	highest := 0
	for _, q := range s.catalog {
		best := 0
		if s.statsLoaded {
			for _, score := range s.serverScores[q.ID] {
				if score > best {
					best = score
				}
			}
		}
		if r, ok := s.results[q.ID]; ok && r.Percentage > best {
			best = r.Percentage
		}
		if best > highest {
			highest = best
		}
	}
	return highest
}

// Answers returns a copy of the draft answers for a quiz.
func (s *AttemptState) Answers(quizID string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAnswers(s.answers[quizID])
}

// ActiveAttemptID returns the tracked attempt id, or empty when none.
func (s *AttemptState) ActiveAttemptID(quizID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[quizID]
}

// IsSubmitted reports whether the quiz reached a terminal state this session.
func (s *AttemptState) IsSubmitted(quizID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.submitted[quizID]
}

// InReview reports whether the quiz panel is read-only.
func (s *AttemptState) InReview(quizID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.review[quizID]
}

// Result returns a copy of the stored result, if any.
func (s *AttemptState) Result(quizID string) (domain.QuizResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.results[quizID]; ok {
		return *r, true
	}
	return domain.QuizResult{}, false
}

// HasPassed reports lifetime pass membership for a quiz.
func (s *AttemptState) HasPassed(quizID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.passed[quizID]
	return ok
}

// Quiz looks a quiz up in the lesson catalog.
func (s *AttemptState) Quiz(quizID string) (domain.Quiz, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.byID[quizID]
	return q, ok
}

// Catalog returns the lesson's quizzes in order.
func (s *AttemptState) Catalog() []domain.Quiz {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Quiz(nil), s.catalog...)
}

// PollableQuizzes lists the quizzes the syncer should poll: expanded or with a
// tracked attempt, and not yet terminal for the session.
func (s *AttemptState) PollableQuizzes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, q := range s.catalog {
		if s.submitted[q.ID] {
			continue
		}
		if s.expanded[q.ID] || s.active[q.ID] != "" {
			out = append(out, q.ID)
		}
	}
	return out
}

// StatsLoaded reports whether learner-wide statistics have been reconciled.
func (s *AttemptState) StatsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLoaded
}

// Export captures the state worth persisting across reconnects.
func (s *AttemptState) Export() PersistedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := PersistedState{
		Answers: make(map[string]map[string]string, len(s.answers)),
		Active:  make(map[string]string, len(s.active)),
	}
	for quizID, draft := range s.answers {
		out.Answers[quizID] = copyAnswers(draft)
	}
	for quizID, attemptID := range s.active {
		out.Active[quizID] = attemptID
	}
	for quizID := range s.passed {
		out.Passed = append(out.Passed, quizID)
	}
	return out
}

// Restore loads a persisted snapshot into an empty state. Existing local
// state is never overwritten.
func (s *AttemptState) Restore(saved PersistedState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for quizID, draft := range saved.Answers {
		if _, ok := s.answers[quizID]; ok {
			continue
		}
		s.answers[quizID] = copyAnswers(draft)
	}
	for quizID, attemptID := range saved.Active {
		if s.active[quizID] == "" {
			s.active[quizID] = attemptID
		}
	}
	for _, quizID := range saved.Passed {
		s.passed[quizID] = struct{}{}
	}
	s.broadcastLocked()
}

func copyAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// latestSubmitted returns the newest attempt that actually finished. History
// payloads may carry a still-active attempt at the tail; it has no score and
// must not be mistaken for an outcome.
func latestSubmitted(attempts []domain.Attempt) (domain.Attempt, bool) {
	for i := len(attempts) - 1; i >= 0; i-- {
		a := attempts[i]
		if a.Score != nil && a.SubmittedAt != nil {
			return a, true
		}
	}
	return domain.Attempt{}, false
}
