package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

var _ app.QuestionSource = (*QuestionCache)(nil)

// QuestionCache caches question content in Redis and falls back to a loader on cache miss.
// Course lists are stored as:  SET quiz:questions:{course} [JSON array]
// Single questions as:         SET quiz:question:{id}      {JSON}
type QuestionCache struct {
	client *redis.Client
	loader app.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) courseKey(course string) string {
	return "quiz:questions:" + course
}

func (c *QuestionCache) questionKey(id string) string {
	return "quiz:question:" + id
}

func (c *QuestionCache) ListQuestions(ctx context.Context, course string) ([]domain.Question, error) {
	key := c.courseKey(course)
	if questions, ok := c.cachedList(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.cachedList(ctx, key); ok {
			return questions, nil
		}

		questions, err := c.loader.ListQuestions(ctx, course)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(questions)
		if err != nil {
			return nil, err
		}

		ttl := c.ttlWithJitter()
		pipe := c.client.Pipeline()
		pipe.Set(ctx, key, data, ttl)
		for _, q := range questions {
			if raw, err := json.Marshal(q); err == nil {
				pipe.Set(ctx, c.questionKey(q.ID), raw, ttl)
			}
		}
		// cache writes are best-effort
		_, _ = pipe.Exec(ctx)
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) LoadQuestion(ctx context.Context, id string) (domain.Question, error) {
	key := c.questionKey(id)
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var q domain.Question
		if json.Unmarshal(data, &q) == nil {
			return q, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		q, err := c.loader.LoadQuestion(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		if raw, err := json.Marshal(q); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *QuestionCache) cachedList(ctx context.Context, key string) ([]domain.Question, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
