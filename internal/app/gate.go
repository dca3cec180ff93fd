package app

// Gate decides whether the learner may advance past the current lesson. The
// check is conjunctive: every quiz in the lesson must be passed, where a pass
// is established server-first (learner-wide statistics) and only then from
// local results or the lifetime pass set.
//
// While learner-wide statistics are still loading the gate deliberately
// reports locked for quizzes with no local state; it unlocks once the fetch
// completes. Optimistically unlocking before the data arrives is not allowed.
type Gate struct {
	state *AttemptState
}

func NewGate(state *AttemptState) *Gate {
	return &Gate{state: state}
}

// CanAdvance reports whether every quiz in the lesson is passed. A lesson with
// no quizzes is always open.
func (g *Gate) CanAdvance() bool {
	s := g.state
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canAdvanceLocked()
}

// QuizPassed runs the two-tier pass check for a single quiz.
func (g *Gate) QuizPassed(quizID string) bool {
	s := g.state
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.byID[quizID]
	if !ok {
		return false
	}
	return s.quizPassedLocked(q)
}

// HighestScore returns the lesson's best score: per quiz the maximum across
// server and local sources, then the maximum across quizzes.
func (g *Gate) HighestScore() int {
	s := g.state
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.highestScoreLocked()
}
