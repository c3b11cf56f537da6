package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

func TestTicketStoreWaitingIsFIFO(t *testing.T) {
	ctx := context.Background()
	s := NewTicketStore()
	base := time.Unix(100, 0)
	pool := domain.PoolKey{Course: "Fundamentals", Unit: "U1", Career: "CNA"}
	joined := map[string]time.Duration{"t1": 5 * time.Second, "t2": 0, "t3": 9 * time.Second}
	for id, offset := range joined {
		_ = s.Put(ctx, domain.Ticket{
			ID: id, PlayerID: id, Course: pool.Course, Unit: pool.Unit, Career: pool.Career,
			JoinTime: base.Add(offset), Status: domain.TicketWaiting,
		})
	}
	_ = s.Put(ctx, domain.Ticket{ID: "other", Course: "Pharmacology", Unit: "U1", Career: "CNA", JoinTime: base, Status: domain.TicketWaiting})

	waiting, err := s.Waiting(ctx, pool)
	if err != nil {
		t.Fatalf("waiting: %v", err)
	}
	if len(waiting) != 3 {
		t.Fatalf("expected 3 tickets in pool, got %d", len(waiting))
	}
	if waiting[0].ID != "t2" || waiting[1].ID != "t1" || waiting[2].ID != "t3" {
		t.Fatalf("expected oldest first, got %s %s %s", waiting[0].ID, waiting[1].ID, waiting[2].ID)
	}
}

func TestTicketStoreTransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewTicketStore()
	_ = s.Put(ctx, domain.Ticket{ID: "t1", Status: domain.TicketWaiting})

	got, err := s.Transition(ctx, "t1", domain.TicketWaiting, domain.TicketMatched, "m1")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.Status != domain.TicketMatched || got.MatchID != "m1" {
		t.Fatalf("unexpected ticket %+v", got)
	}
	if _, err := s.Transition(ctx, "t1", domain.TicketWaiting, domain.TicketMatched, "m2"); !errors.Is(err, domain.ErrConcurrentMutation) {
		t.Fatalf("expected conflict on second claim, got %v", err)
	}
	if removed, _ := s.DeleteIfWaiting(ctx, "t1"); removed {
		t.Fatalf("matched ticket must not be removed")
	}
}

func TestTicketStoreClaimIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewTicketStore()
	_ = s.Put(ctx, domain.Ticket{ID: "a", Status: domain.TicketWaiting})
	_ = s.Put(ctx, domain.Ticket{ID: "b", Status: domain.TicketWaiting})
	_ = s.Put(ctx, domain.Ticket{ID: "c", Status: domain.TicketWaiting})

	claimed, err := s.Claim(ctx, "m1", "a", "b")
	if err != nil || len(claimed) != 2 || claimed[1].ID != "b" || claimed[1].MatchID != "m1" {
		t.Fatalf("claim: %+v %v", claimed, err)
	}
	if _, err := s.Claim(ctx, "m2", "c", "b"); !errors.Is(err, domain.ErrConcurrentMutation) {
		t.Fatalf("expected conflict on claimed ticket, got %v", err)
	}
	if c, _ := s.Get(ctx, "c"); c.Status != domain.TicketWaiting || c.MatchID != "" {
		t.Fatalf("failed claim changed c: %+v", c)
	}
	if _, err := s.Claim(ctx, "m3", "c", "ghost"); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("expected ticket not found, got %v", err)
	}
}

func TestStatsRepositoryAppliesOncePerKey(t *testing.T) {
	ctx := context.Background()
	repo := NewStatsRepository()
	r := domain.MatchResult{MatchID: "m1", PlayerID: "p1", Course: "Fundamentals", Outcome: domain.OutcomeWin, QuestionsAnswered: 10, CorrectAnswers: 7}
	apply := func(s *domain.PlayerStats) { s.RecordMatchResult(r, time.Unix(0, 0)) }

	first, applied, err := repo.Apply(ctx, r, apply)
	if err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}
	second, applied, err := repo.Apply(ctx, r, apply)
	if err != nil || applied {
		t.Fatalf("second apply: applied=%v err=%v", applied, err)
	}
	if first.TotalMatches != 1 || second.TotalMatches != 1 || second.RankPoints != domain.WinPoints {
		t.Fatalf("expected single application, got %+v", second)
	}
}

func TestStatsRepositoryGetUnknown(t *testing.T) {
	if _, err := NewStatsRepository().Get(context.Background(), "ghost"); !errors.Is(err, domain.ErrStatsNotFound) {
		t.Fatalf("expected stats not found, got %v", err)
	}
}

func TestMatchArchiveListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	a := NewMatchArchive()
	for i, id := range []string{"m1", "m2", "m3"} {
		m := domain.Match{ID: id, Status: domain.MatchCompleted, EndedAt: time.Unix(int64(i), 0),
			Participants: []domain.Participant{{PlayerID: "p1"}}}
		_ = a.Save(ctx, m)
	}
	_ = a.Save(ctx, domain.Match{ID: "m4", Participants: []domain.Participant{{PlayerID: "p2"}}})

	got, err := a.ListByPlayer(ctx, "p1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m3" || got[1].ID != "m2" {
		t.Fatalf("expected m3, m2; got %+v", got)
	}
}

func TestQuestionCacheCaches(t *testing.T) {
	source := &countingSource{QuestionSource: NewStaticQuestionSource([]domain.Question{
		{ID: "q1", Course: "Fundamentals", Options: []string{"a", "b"}},
		{ID: "q2", Course: "Fundamentals", Options: []string{"a", "b"}},
	})}
	now := time.Unix(0, 0)
	cache := NewQuestionCacheWithClock(source, time.Minute, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		qs, err := cache.ListQuestions(context.Background(), "Fundamentals")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(qs) != 2 {
			t.Fatalf("expected 2 questions, got %d", len(qs))
		}
	}
	if _, err := cache.LoadQuestion(context.Background(), "q2"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if source.lists != 1 || source.loads != 0 {
		t.Fatalf("expected one list and cached load, got lists=%d loads=%d", source.lists, source.loads)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.ListQuestions(context.Background(), "Fundamentals"); err != nil {
		t.Fatalf("list after expiry: %v", err)
	}
	if source.lists != 2 {
		t.Fatalf("expected reload after ttl, got %d", source.lists)
	}
}

func TestStaticQuestionSourceUnknown(t *testing.T) {
	_, err := NewStaticQuestionSource(nil).LoadQuestion(context.Background(), "nope")
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

type countingSource struct {
	app.QuestionSource
	lists, loads int
}

func (s *countingSource) ListQuestions(ctx context.Context, course string) ([]domain.Question, error) {
	s.lists++
	return s.QuestionSource.ListQuestions(ctx, course)
}

func (s *countingSource) LoadQuestion(ctx context.Context, id string) (domain.Question, error) {
	s.loads++
	return s.QuestionSource.LoadQuestion(ctx, id)
}
