package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"nurseconnect-quiz-service/internal/domain"
)

// CoordinatorConfig holds match defaults.
type CoordinatorConfig struct {
	TargetPlayers     int
	TotalQuestions    int
	QuestionTimeLimit time.Duration
	AdvanceGrace      time.Duration
	MaxMissedRounds   int
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.TargetPlayers <= 0 {
		c.TargetPlayers = 2
	}
	if c.TotalQuestions <= 0 {
		c.TotalQuestions = 10
	}
	if c.QuestionTimeLimit <= 0 {
		c.QuestionTimeLimit = domain.DefaultQuestionTimeLimit
	}
	return c
}

// Seat is a player placed into a match at creation.
type Seat struct {
	PlayerID string
	Name     string
	Ready    bool
}

// MatchRequest describes a match to create. Zero values fall back to the coordinator defaults.
type MatchRequest struct {
	ID            string
	Course        string
	Unit          string
	Career        string
	TargetPlayers int
	Seats         []Seat
}

// Coordinator owns live matches. Each match is driven by a single actor goroutine; every
// mutation goes through the MatchStore's compare-and-set Update.
type Coordinator struct {
	store     MatchStore
	questions *QuestionBank
	results   ResultRecorder
	archive   MatchArchive
	clock     clockwork.Clock
	cfg       CoordinatorConfig

	mu     sync.Mutex
	actors map[string]*matchActor
	closed bool
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock replaces the wall clock.
func WithClock(clock clockwork.Clock) CoordinatorOption {
	return func(c *Coordinator) { c.clock = clock }
}

// WithArchive stores completed matches for history queries.
func WithArchive(archive MatchArchive) CoordinatorOption {
	return func(c *Coordinator) { c.archive = archive }
}

func NewCoordinator(store MatchStore, questions *QuestionBank, results ResultRecorder, cfg CoordinatorConfig, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:     store,
		questions: questions,
		results:   results,
		clock:     clockwork.NewRealClock(),
		cfg:       cfg.withDefaults(),
		actors:    make(map[string]*matchActor),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create builds a WAITING match, seats the given players and starts its actor.
func (c *Coordinator) Create(ctx context.Context, req MatchRequest) (domain.Match, error) {
	target := req.TargetPlayers
	if target <= 0 {
		target = c.cfg.TargetPlayers
	}
	if len(req.Seats) > target {
		return domain.Match{}, domain.ErrMatchFull
	}
	questions, err := c.questions.QuestionsFor(ctx, req.Course, req.Unit, req.Career, c.cfg.TotalQuestions)
	if err != nil {
		return domain.Match{}, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := c.clock.Now().UTC()
	m := domain.NewMatch(id, domain.MatchSpec{
		Course:            req.Course,
		Unit:              req.Unit,
		Career:            req.Career,
		TargetPlayers:     target,
		QuestionTimeLimit: c.cfg.QuestionTimeLimit,
		AdvanceGrace:      c.cfg.AdvanceGrace,
		MaxMissedRounds:   c.cfg.MaxMissedRounds,
	}, questions, now)
	for _, seat := range req.Seats {
		if err := m.Join(seat.PlayerID, seat.Name, now); err != nil {
			return domain.Match{}, err
		}
		if seat.Ready {
			if err := m.SetReady(seat.PlayerID, true, now); err != nil {
				return domain.Match{}, err
			}
		}
	}

	if err := c.store.Create(ctx, m); err != nil {
		return domain.Match{}, fmt.Errorf("create match: %w", err)
	}

	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.Match{}, domain.ErrCoordinatorClosed
	}
	a := newMatchActor(c, id, byID)
	c.actors[id] = a
	c.mu.Unlock()

	log.Printf("match %s: created course=%q unit=%q career=%q players=%d/%d questions=%d",
		id, m.Course, m.Unit, m.Career, len(m.Participants), m.TargetPlayers, len(questions))
	// a match seeded with ready players may already be active
	a.post(func(*domain.Match, time.Time) error { return errNoop })
	return m.Clone(), nil
}

// Join adds a player to a WAITING match.
func (c *Coordinator) Join(ctx context.Context, matchID, playerID, name string) (domain.Match, error) {
	return c.do(ctx, matchID, func(m *domain.Match, now time.Time) error {
		return m.Join(playerID, name, now)
	})
}

// SetReady marks a participant ready; the last ready flag starts the match.
func (c *Coordinator) SetReady(ctx context.Context, matchID, playerID string, ready bool) (domain.Match, error) {
	return c.do(ctx, matchID, func(m *domain.Match, now time.Time) error {
		return m.SetReady(playerID, ready, now)
	})
}

// SubmitAnswer records an answer. Duplicate submissions succeed without re-scoring.
func (c *Coordinator) SubmitAnswer(ctx context.Context, matchID, playerID, questionID string, option int) (domain.AnswerOutcome, domain.Match, error) {
	a, err := c.actorFor(ctx, matchID)
	if err != nil {
		return domain.AnswerOutcome{}, domain.Match{}, err
	}
	q, ok := a.questions[questionID]
	if !ok {
		return domain.AnswerOutcome{QuestionID: questionID}, domain.Match{}, domain.ErrInvalidRoundSubmission
	}
	if !q.HasOption(option) {
		return domain.AnswerOutcome{QuestionID: questionID}, domain.Match{}, domain.ErrOptionNotFound
	}

	var outcome domain.AnswerOutcome
	m, err := a.send(ctx, func(m *domain.Match, now time.Time) error {
		var err error
		outcome, err = m.SubmitAnswer(playerID, questionID, q.IsCorrect(option), now)
		return err
	})
	if errors.Is(err, domain.ErrDuplicateSubmission) {
		outcome.Duplicate = true
		m, err = c.store.Get(ctx, matchID)
	}
	return outcome, m, err
}

// PressNext acknowledges the resolved round for a participant.
func (c *Coordinator) PressNext(ctx context.Context, matchID, playerID string) (domain.Match, error) {
	return c.do(ctx, matchID, func(m *domain.Match, now time.Time) error {
		return m.PressNext(playerID, now)
	})
}

// Leave removes the player from gating. Remaining players keep playing.
func (c *Coordinator) Leave(ctx context.Context, matchID, playerID string) (domain.Match, error) {
	return c.do(ctx, matchID, func(m *domain.Match, now time.Time) error {
		return m.Leave(playerID, now)
	})
}

// Get returns the current snapshot of a match.
func (c *Coordinator) Get(ctx context.Context, matchID string) (domain.Match, error) {
	return c.store.Get(ctx, matchID)
}

// Subscribe pushes every committed snapshot of a match. The caller must invoke cancel.
func (c *Coordinator) Subscribe(ctx context.Context, matchID string) (<-chan domain.Match, func(), error) {
	return c.store.Subscribe(ctx, matchID)
}

// FindOpen returns the open match of the pool with the fewest players, oldest first.
func (c *Coordinator) FindOpen(ctx context.Context, pool domain.PoolKey, target int) (domain.Match, bool, error) {
	if target <= 0 {
		target = c.cfg.TargetPlayers
	}
	open, err := c.store.Open(ctx, pool)
	if err != nil {
		return domain.Match{}, false, err
	}
	candidates := open[:0]
	for _, m := range open {
		if m.Status == domain.MatchWaiting && !m.Full() && m.TargetPlayers == target {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return domain.Match{}, false, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].Participants) != len(candidates[j].Participants) {
			return len(candidates[i].Participants) < len(candidates[j].Participants)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates[0], true, nil
}

// JoinOpen places the player into an open lobby of the pool, creating one when none fits.
func (c *Coordinator) JoinOpen(ctx context.Context, pool domain.PoolKey, target int, seat Seat) (domain.Match, error) {
	for attempt := 0; attempt < 3; attempt++ {
		open, ok, err := c.FindOpen(ctx, pool, target)
		if err != nil {
			return domain.Match{}, err
		}
		if !ok {
			break
		}
		m, err := c.do(ctx, open.ID, func(m *domain.Match, now time.Time) error {
			if err := m.Join(seat.PlayerID, seat.Name, now); err != nil {
				return err
			}
			return m.SetReady(seat.PlayerID, true, now)
		})
		if errors.Is(err, domain.ErrMatchFull) || errors.Is(err, domain.ErrMatchNotWaiting) {
			continue
		}
		return m, err
	}
	seat.Ready = true
	return c.Create(ctx, MatchRequest{
		Course:        pool.Course,
		Unit:          pool.Unit,
		Career:        pool.Career,
		TargetPlayers: target,
		Seats:         []Seat{seat},
	})
}

// Reap stops actors of matches completed before the cutoff and drops their store records.
func (c *Coordinator) Reap(ctx context.Context, completedBefore time.Time) int {
	c.mu.Lock()
	var done []*matchActor
	for id, a := range c.actors {
		if ended, ok := a.finishedAt(); ok && ended.Before(completedBefore) {
			done = append(done, a)
			delete(c.actors, id)
		}
	}
	c.mu.Unlock()

	for _, a := range done {
		a.shutdown()
		if err := c.store.Delete(ctx, a.id); err != nil {
			log.Printf("match %s: delete after reap: %v", a.id, err)
		}
	}
	return len(done)
}

// Live reports the number of match actors currently running.
func (c *Coordinator) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actors)
}

// Close stops every actor.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	actors := c.actors
	c.actors = make(map[string]*matchActor)
	c.mu.Unlock()
	for _, a := range actors {
		a.shutdown()
	}
}

func (c *Coordinator) do(ctx context.Context, matchID string, apply applyFunc) (domain.Match, error) {
	a, err := c.actorFor(ctx, matchID)
	if err != nil {
		return domain.Match{}, err
	}
	return a.send(ctx, apply)
}

// actorFor returns the live actor of a match, rehydrating it from the store when this
// process does not own one yet.
func (c *Coordinator) actorFor(ctx context.Context, matchID string) (*matchActor, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrCoordinatorClosed
	}
	if a, ok := c.actors[matchID]; ok {
		c.mu.Unlock()
		return a, nil
	}
	c.mu.Unlock()

	m, err := c.store.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Question, len(m.QuestionIDs))
	for _, qid := range m.QuestionIDs {
		q, err := c.questions.Question(ctx, qid)
		if err != nil {
			return nil, fmt.Errorf("load question %s: %w", qid, err)
		}
		byID[qid] = q
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, domain.ErrCoordinatorClosed
	}
	if a, ok := c.actors[matchID]; ok {
		return a, nil
	}
	a := newMatchActor(c, matchID, byID)
	c.actors[matchID] = a
	a.post(func(*domain.Match, time.Time) error { return errNoop })
	return a, nil
}
