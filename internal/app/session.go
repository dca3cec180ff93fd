package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"lms-quiz-engine/internal/upstream"
)

// SnapshotStore persists session state across reconnects and engine
// instances. Implementations are best-effort; the upstream stays the source
// of truth for everything but draft answers.
type SnapshotStore interface {
	Save(ctx context.Context, learnerID, lessonID string, state PersistedState) error
	Load(ctx context.Context, learnerID, lessonID string) (PersistedState, bool, error)
	Delete(ctx context.Context, learnerID, lessonID string) error
}

// Session is one learner's live view of one lesson's quizzes. The session
// exclusively owns its AttemptState for as long as it is open; all mutation
// goes through the controller.
type Session struct {
	ID         string
	LearnerID  string
	LessonID   string
	State      *AttemptState
	Controller *Controller
	Gate       *Gate
	Syncer     *Syncer

	cancel context.CancelFunc
	refs   int
}

// Engine owns all live sessions and their shared collaborators.
type Engine struct {
	api          upstream.API
	catalog      CatalogRepository
	snapshots    SnapshotStore // nil disables persistence
	pollInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewEngine(api upstream.API, catalog CatalogRepository, snapshots SnapshotStore, pollInterval time.Duration) *Engine {
	return &Engine{
		api:          api,
		catalog:      catalog,
		snapshots:    snapshots,
		pollInterval: pollInterval,
		sessions:     make(map[string]*Session),
	}
}

// Open attaches to the learner's session for a lesson, creating it on first
// use. A second tab shares the existing session rather than competing with it.
func (e *Engine) Open(ctx context.Context, learnerID, lessonID string) (*Session, error) {
	key := sessionKey(learnerID, lessonID)

	e.mu.Lock()
	if session, ok := e.sessions[key]; ok {
		session.refs++
		e.mu.Unlock()
		return session, nil
	}
	e.mu.Unlock()

	quizzes, err := e.catalog.LessonQuizzes(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	state := NewAttemptState(lessonID, learnerID, quizzes)
	if e.snapshots != nil {
		if saved, ok, err := e.snapshots.Load(ctx, learnerID, lessonID); err != nil {
			log.Printf("load session snapshot learner=%s lesson=%s: %v", learnerID, lessonID, err)
		} else if ok {
			state.Restore(saved)
		}
	}

	syncer := NewSyncer(state, e.api, learnerID)
	session := &Session{
		ID:         uuid.NewString(),
		LearnerID:  learnerID,
		LessonID:   lessonID,
		State:      state,
		Controller: NewController(state, e.api, e.catalog, syncer, learnerID),
		Gate:       NewGate(state),
		Syncer:     syncer,
		refs:       1,
	}

	e.mu.Lock()
	if existing, ok := e.sessions[key]; ok {
		// Lost the race; reuse the winner.
		existing.refs++
		e.mu.Unlock()
		return existing, nil
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	session.cancel = cancel
	e.sessions[key] = session
	e.mu.Unlock()

	poller := NewPoller(state, syncer, e.pollInterval)
	go func() {
		poller.Run(pollCtx)
	}()
	go e.persistLoop(pollCtx, session)

	return session, nil
}

// Release detaches one subscriber. When the last one leaves the poller stops
// immediately, the final snapshot is persisted, and the session is dropped;
// anything still in flight resolves into a state nobody reads.
func (e *Engine) Release(session *Session) {
	key := sessionKey(session.LearnerID, session.LessonID)

	e.mu.Lock()
	session.refs--
	if session.refs > 0 {
		e.mu.Unlock()
		return
	}
	delete(e.sessions, key)
	e.mu.Unlock()

	session.cancel()
	e.persist(context.Background(), session)
}

// persistLoop saves the session snapshot on the same cadence as polling so a
// crashed instance loses at most one interval of draft answers.
func (e *Engine) persistLoop(ctx context.Context, session *Session) {
	if e.snapshots == nil {
		return
	}
	interval := e.pollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.persist(ctx, session)
		}
	}
}

func (e *Engine) persist(ctx context.Context, session *Session) {
	if e.snapshots == nil {
		return
	}
	saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelSave()
	if err := e.snapshots.Save(saveCtx, session.LearnerID, session.LessonID, session.State.Export()); err != nil {
		log.Printf("persist session learner=%s lesson=%s: %v", session.LearnerID, session.LessonID, err)
	}
}

func sessionKey(learnerID, lessonID string) string {
	return learnerID + "|" + lessonID
}
