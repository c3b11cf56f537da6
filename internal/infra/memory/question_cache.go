package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

// QuestionCache caches course question lists with TTL to avoid repeated loader hits.
type QuestionCache struct {
	source app.QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu      sync.RWMutex
	courses map[string]cachedCourse
	byID    map[string]cachedQuestion
}

type cachedCourse struct {
	questions []domain.Question
	expiresAt time.Time
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionCache(source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return NewQuestionCacheWithClock(source, ttl, time.Now)
}

// NewQuestionCacheWithClock is test-only for deterministic expiry.
func NewQuestionCacheWithClock(source app.QuestionSource, ttl time.Duration, clock func() time.Time) *QuestionCache {
	return &QuestionCache{
		source:  source,
		ttl:     ttl,
		clock:   clock,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		courses: make(map[string]cachedCourse),
		byID:    make(map[string]cachedQuestion),
	}
}

func (c *QuestionCache) ListQuestions(ctx context.Context, course string) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.courses[course]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return append([]domain.Question(nil), entry.questions...), nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("course:"+course, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.courses[course]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.source.ListQuestions(ctx, course)
		if err != nil {
			return nil, err
		}

		expires := now.Add(c.ttlWithJitter())
		c.mu.Lock()
		c.courses[course] = cachedCourse{questions: questions, expiresAt: expires}
		for _, q := range questions {
			c.byID[q.ID] = cachedQuestion{question: q, expiresAt: expires}
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), result.([]domain.Question)...), nil
}

func (c *QuestionCache) LoadQuestion(ctx context.Context, id string) (domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.byID[id]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.question, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("question:"+id, func() (interface{}, error) {
		q, err := c.source.LoadQuestion(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		expires := c.clock().Add(c.ttlWithJitter())
		c.mu.Lock()
		c.byID[id] = cachedQuestion{question: q, expiresAt: expires}
		c.mu.Unlock()
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticQuestionSource is a question source backed by a slice (useful for tests/demos).
type StaticQuestionSource struct {
	byID map[string]domain.Question
}

func NewStaticQuestionSource(questions []domain.Question) *StaticQuestionSource {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &StaticQuestionSource{byID: byID}
}

func (s *StaticQuestionSource) ListQuestions(_ context.Context, course string) ([]domain.Question, error) {
	var out []domain.Question
	for _, q := range s.byID {
		if q.Course == course {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *StaticQuestionSource) LoadQuestion(_ context.Context, id string) (domain.Question, error) {
	if q, ok := s.byID[id]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}
