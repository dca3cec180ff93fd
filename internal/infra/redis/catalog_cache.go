package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"lms-quiz-engine/internal/domain"
	"lms-quiz-engine/internal/infra/memory"
)

// CatalogCache caches lesson quizzes and quiz questions as JSON blobs in
// Redis, falling back to a loader on cache miss. Keys:
//
//	catalog:lesson:{lessonID}         -> []domain.Quiz
//	catalog:quiz:{quizID}:questions   -> []domain.Question
//
// Cache fills are deduplicated with singleflight and TTLs are jittered so
// engine instances sharing the cache do not reload in lockstep.
type CatalogCache struct {
	client *redis.Client
	loader memory.CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewCatalogCache(client *redis.Client, loader memory.CatalogLoader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) LessonQuizzes(ctx context.Context, lessonID string) ([]domain.Quiz, error) {
	key := c.lessonKey(lessonID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var quizzes []domain.Quiz
		if err := json.Unmarshal(raw, &quizzes); err == nil {
			return quizzes, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var quizzes []domain.Quiz
			if err := json.Unmarshal(raw, &quizzes); err == nil {
				return quizzes, nil
			}
		}

		quizzes, err := c.loader.LoadLessonQuizzes(ctx, lessonID)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, quizzes)
		return quizzes, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Quiz), nil
}

func (c *CatalogCache) QuizQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	key := c.questionsKey(quizID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(raw, &questions); err == nil {
			return questions, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var questions []domain.Question
			if err := json.Unmarshal(raw, &questions); err == nil {
				return questions, nil
			}
		}

		questions, err := c.loader.LoadQuizQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, questions)
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// store writes the cache entry best-effort; a failed write just means the
// next call loads again.
func (c *CatalogCache) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
}

func (c *CatalogCache) lessonKey(lessonID string) string {
	return "catalog:lesson:" + lessonID
}

func (c *CatalogCache) questionsKey(quizID string) string {
	return "catalog:quiz:" + quizID + ":questions"
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
