package app

import (
	"context"
	"time"
)

// Poller schedules background reconciliation while the session is alive. Only
// quizzes that are expanded or have a tracked attempt are polled, and a quiz
// that reached a terminal state for the session is skipped entirely. The
// ticker is injectable so tests can drive time deterministically.
type Poller struct {
	state     *AttemptState
	syncer    *Syncer
	interval  time.Duration
	newTicker func(time.Duration) (<-chan time.Time, func())
}

// DefaultPollInterval is the reconciliation cadence used when none is configured.
const DefaultPollInterval = 10 * time.Second

func NewPoller(state *AttemptState, syncer *Syncer, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		state:    state,
		syncer:   syncer,
		interval: interval,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Run polls until the context is canceled. An immediate pass runs before the
// first tick so a reloaded session recovers in-progress work without waiting
// a full interval.
func (p *Poller) Run(ctx context.Context) {
	ticks, stop := p.newTicker(p.interval)
	defer stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce runs one reconciliation pass.
func (p *Poller) PollOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !p.state.StatsLoaded() {
		p.syncer.ReconcileLearnerStatistics(ctx)
	}
	for _, quizID := range p.state.PollableQuizzes() {
		p.syncer.PollActiveAttempt(ctx, quizID)
		p.syncer.PollHistory(ctx, quizID)
	}
}
