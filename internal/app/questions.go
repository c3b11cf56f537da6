package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"nurseconnect-quiz-service/internal/domain"
)

// QuestionBank selects questions for new matches.
type QuestionBank struct {
	source QuestionSource

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionBank(source QuestionSource) *QuestionBank {
	return &QuestionBank{
		source: source,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// QuestionsFor returns up to count questions. Questions matching (course, unit, career)
// come first; the rest of the course tops up when there are not enough.
func (b *QuestionBank) QuestionsFor(ctx context.Context, course, unit, career string, count int) ([]domain.Question, error) {
	all, err := b.source.ListQuestions(ctx, course)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	var exact, rest []domain.Question
	for _, q := range all {
		if !q.Valid() {
			continue
		}
		if q.Unit == unit && q.Career == career {
			exact = append(exact, q)
		} else {
			rest = append(rest, q)
		}
	}

	b.mu.Lock()
	b.rnd.Shuffle(len(exact), func(i, j int) { exact[i], exact[j] = exact[j], exact[i] })
	b.rnd.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	b.mu.Unlock()

	picked := exact
	if len(picked) < count {
		picked = append(picked, rest[:min(len(rest), count-len(picked))]...)
	}
	if len(picked) > count {
		picked = picked[:count]
	}
	if len(picked) == 0 {
		return nil, domain.ErrNotEnoughQuestions
	}
	return picked, nil
}

// Question loads a single question by id.
func (b *QuestionBank) Question(ctx context.Context, id string) (domain.Question, error) {
	return b.source.LoadQuestion(ctx, id)
}
