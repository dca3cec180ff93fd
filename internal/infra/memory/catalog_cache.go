package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"lms-quiz-engine/internal/domain"
)

// CatalogLoader fetches quiz metadata and questions from a backing store
// (the upstream REST API or the course DB).
type CatalogLoader interface {
	LoadLessonQuizzes(ctx context.Context, lessonID string) ([]domain.Quiz, error)
	LoadQuizQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// CatalogCache caches lesson quizzes and quiz questions with TTL so gate
// evaluations and submits do not hammer the backing store. Cache fills are
// deduplicated with singleflight and expirations are jittered to spread
// reloads.
type CatalogCache struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu        sync.RWMutex
	lessons   map[string]cachedLesson
	questions map[string]cachedQuestions
}

type cachedLesson struct {
	quizzes   []domain.Quiz
	expiresAt time.Time
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCatalogCache(loader CatalogLoader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		loader:    loader,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		lessons:   make(map[string]cachedLesson),
		questions: make(map[string]cachedQuestions),
	}
}

func (c *CatalogCache) LessonQuizzes(ctx context.Context, lessonID string) ([]domain.Quiz, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.lessons[lessonID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.quizzes, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("lesson:"+lessonID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.lessons[lessonID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.quizzes, nil
		}
		c.mu.RUnlock()

		quizzes, err := c.loader.LoadLessonQuizzes(ctx, lessonID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.lessons[lessonID] = cachedLesson{
			quizzes:   quizzes,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return quizzes, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Quiz), nil
}

func (c *CatalogCache) QuizQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.questions[quizID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("questions:"+quizID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.questions[quizID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.LoadQuizQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.questions[quizID] = cachedQuestions{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticCatalogLoader serves a fixed catalog from memory (tests and demos).
type StaticCatalogLoader struct {
	quizzes   map[string][]domain.Quiz     // by lesson id
	questions map[string][]domain.Question // by quiz id
}

func NewStaticCatalogLoader(quizzes []domain.Quiz, questions map[string][]domain.Question) *StaticCatalogLoader {
	byLesson := make(map[string][]domain.Quiz)
	for _, q := range quizzes {
		byLesson[q.LessonID] = append(byLesson[q.LessonID], q)
	}
	return &StaticCatalogLoader{quizzes: byLesson, questions: questions}
}

func (l *StaticCatalogLoader) LoadLessonQuizzes(_ context.Context, lessonID string) ([]domain.Quiz, error) {
	quizzes, ok := l.quizzes[lessonID]
	if !ok {
		return nil, domain.ErrLessonNotFound
	}
	return quizzes, nil
}

func (l *StaticCatalogLoader) LoadQuizQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	questions, ok := l.questions[quizID]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	return questions, nil
}

// UpstreamLoader adapts any upstream API into a CatalogLoader.
type UpstreamLoader struct {
	LessonQuizzesFn func(ctx context.Context, lessonID string) ([]domain.Quiz, error)
	QuizQuestionsFn func(ctx context.Context, quizID string) ([]domain.Question, error)
}

func (l UpstreamLoader) LoadLessonQuizzes(ctx context.Context, lessonID string) ([]domain.Quiz, error) {
	return l.LessonQuizzesFn(ctx, lessonID)
}

func (l UpstreamLoader) LoadQuizQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	return l.QuizQuestionsFn(ctx, quizID)
}
