package app

import (
	"context"
	"log"

	"lms-quiz-engine/internal/upstream"
)

// Syncer reconciles upstream attempt data into AttemptState. All of its
// fetches are background reconciliation: failures are logged and swallowed,
// never surfaced to the learner, since absence of data just means "no history
// yet".
type Syncer struct {
	state     *AttemptState
	api       upstream.API
	learnerID string
}

func NewSyncer(state *AttemptState, api upstream.API, learnerID string) *Syncer {
	return &Syncer{state: state, api: api, learnerID: learnerID}
}

// PollActiveAttempt recovers an in-progress attempt started elsewhere (page
// reload, another tab). If the upstream reports an attempt whose id differs
// from the tracked one, the tracked id is replaced.
func (s *Syncer) PollActiveAttempt(ctx context.Context, quizID string) {
	attempt, ok, err := s.api.ActiveAttempt(ctx, quizID, s.learnerID)
	if err != nil {
		log.Printf("poll active attempt quiz=%s: %v", quizID, err)
		return
	}
	if !ok {
		return
	}
	if s.state.ActiveAttemptID(quizID) != attempt.ID {
		s.state.RestoreActiveAttempt(quizID, attempt.ID)
	}
}

// PollHistory refreshes the per-quiz attempt summary and backfills a result
// when the session knows nothing locally.
func (s *Syncer) PollHistory(ctx context.Context, quizID string) {
	history, err := s.api.AttemptHistory(ctx, quizID, s.learnerID)
	if err != nil {
		log.Printf("poll history quiz=%s: %v", quizID, err)
		return
	}
	if history.Stats.TotalAttempts == 0 && len(history.Attempts) == 0 {
		return
	}
	s.state.ApplyHistory(quizID, history)
}

// ReconcileLearnerStatistics fetches the learner's attempts across all
// quizzes and merges them: raw scores feed the gate's server-first tier,
// results are synthesized only where local state is absent, and locally-known
// Details are never overwritten by the coarser aggregate records.
func (s *Syncer) ReconcileLearnerStatistics(ctx context.Context) {
	attempts, err := s.api.LearnerStatistics(ctx, s.learnerID)
	if err != nil {
		log.Printf("reconcile learner statistics learner=%s: %v", s.learnerID, err)
		return
	}
	s.state.MergeLearnerAttempts(attempts)
}
