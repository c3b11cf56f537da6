package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"nurseconnect-quiz-service/internal/domain"
)

const (
	storeTimeout    = 5 * time.Second
	recordAttempts  = 3
	actorQueueDepth = 16
)

// errNoop aborts a store transaction that has nothing to write.
var errNoop = errors.New("no change")

type applyFunc func(m *domain.Match, now time.Time) error

type commandResult struct {
	match domain.Match
	err   error
}

type command struct {
	apply applyFunc
	done  chan commandResult // nil for timer commands
}

// matchActor serializes every command of one match on its own goroutine and owns the
// round timers of that match.
type matchActor struct {
	c         *Coordinator
	id        string
	questions map[string]domain.Question

	cmds     chan command
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	// touched only by run
	roundTimer   clockwork.Timer
	roundFor     int
	advanceTimer clockwork.Timer
	advanceFor   int
	finalized    bool

	mu      sync.Mutex
	endedAt time.Time
}

func newMatchActor(c *Coordinator, id string, questions map[string]domain.Question) *matchActor {
	a := &matchActor{
		c:          c,
		id:         id,
		questions:  questions,
		cmds:       make(chan command, actorQueueDepth),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		roundFor:   -1,
		advanceFor: -1,
	}
	go a.run()
	return a
}

func (a *matchActor) run() {
	defer close(a.stopped)
	for {
		select {
		case cmd := <-a.cmds:
			m, err := a.execute(cmd.apply)
			if cmd.done != nil {
				cmd.done <- commandResult{match: m, err: err}
			} else if err != nil && !quietTimerErr(err) {
				log.Printf("match %s: timer command: %v", a.id, err)
			}
		case <-a.stop:
			a.stopTimers()
			return
		}
	}
}

// send runs apply on the actor and waits for the committed snapshot.
func (a *matchActor) send(ctx context.Context, apply applyFunc) (domain.Match, error) {
	done := make(chan commandResult, 1)
	select {
	case a.cmds <- command{apply: apply, done: done}:
	case <-a.stop:
		return domain.Match{}, domain.ErrCoordinatorClosed
	case <-ctx.Done():
		return domain.Match{}, ctx.Err()
	}
	select {
	case r := <-done:
		return r.match, r.err
	case <-a.stopped:
		return domain.Match{}, domain.ErrCoordinatorClosed
	case <-ctx.Done():
		return domain.Match{}, ctx.Err()
	}
}

// post enqueues apply without waiting for the result.
func (a *matchActor) post(apply applyFunc) {
	select {
	case a.cmds <- command{apply: apply}:
	case <-a.stop:
	}
}

func (a *matchActor) shutdown() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.stopped
}

func (a *matchActor) finishedAt() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endedAt, !a.endedAt.IsZero()
}

// execute commits apply through the store. A round whose deadline passed is resolved
// first; that resolution is persisted even when apply itself is rejected.
func (a *matchActor) execute(apply applyFunc) (domain.Match, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	now := a.c.clock.Now().UTC()
	var opErr error
	m, err := a.c.store.Update(ctx, a.id, func(m *domain.Match) error {
		opErr = nil
		resolved := m.ResolveIfDue(now)
		if err := apply(m, now); err != nil {
			if !resolved {
				return err
			}
			opErr = err
		}
		return nil
	})
	if errors.Is(err, errNoop) {
		m, err = a.c.store.Get(ctx, a.id)
	}
	if err != nil {
		return domain.Match{}, err
	}
	a.afterChange(m)
	if errors.Is(opErr, errNoop) {
		opErr = nil
	}
	return m, opErr
}

// afterChange arms the timer that matches the committed round state.
func (a *matchActor) afterChange(m domain.Match) {
	switch m.Status {
	case domain.MatchCompleted:
		a.stopTimers()
		a.finalize(m)
		return
	case domain.MatchWaiting:
		return
	}

	idx := m.CurrentQuestionIndex
	now := a.c.clock.Now().UTC()
	if !m.Round.Resolved {
		if a.roundFor == idx {
			return
		}
		a.stopTimers()
		a.roundFor = idx
		a.roundTimer = a.c.clock.AfterFunc(nonNegative(m.Round.Deadline().Sub(now)), func() {
			a.post(func(m *domain.Match, now time.Time) error {
				return m.ResolveRound(idx, now)
			})
		})
		return
	}

	if m.AdvanceGrace <= 0 || a.advanceFor == idx {
		return
	}
	a.stopTimers()
	a.advanceFor = idx
	a.advanceTimer = a.c.clock.AfterFunc(nonNegative(m.Round.ResolvedAt.Add(m.AdvanceGrace).Sub(now)), func() {
		a.post(func(m *domain.Match, now time.Time) error {
			return m.AdvanceRound(idx, now)
		})
	})
}

func (a *matchActor) stopTimers() {
	if a.roundTimer != nil {
		a.roundTimer.Stop()
		a.roundTimer = nil
	}
	if a.advanceTimer != nil {
		a.advanceTimer.Stop()
		a.advanceTimer = nil
	}
}

// finalize archives a completed match and hands it to the result recorder once.
func (a *matchActor) finalize(m domain.Match) {
	if a.finalized {
		return
	}
	a.finalized = true
	a.mu.Lock()
	a.endedAt = m.EndedAt
	if a.endedAt.IsZero() {
		a.endedAt = a.c.clock.Now().UTC()
	}
	a.mu.Unlock()

	if m.Draw {
		log.Printf("match %s: completed in a draw scores=%v", m.ID, m.Scores())
	} else {
		log.Printf("match %s: completed winner=%s scores=%v", m.ID, m.WinnerID, m.Scores())
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if a.c.archive != nil {
		if err := a.c.archive.Save(ctx, m); err != nil {
			log.Printf("match %s: archive: %v", m.ID, err)
		}
	}
	if a.c.results == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		if err = a.c.results.RecordMatch(ctx, m); err == nil {
			return
		}
		log.Printf("match %s: record results attempt %d: %v", m.ID, attempt, err)
	}
}

func quietTimerErr(err error) bool {
	return errors.Is(err, domain.ErrStaleRound) ||
		errors.Is(err, domain.ErrRoundResolved) ||
		errors.Is(err, domain.ErrRoundNotResolved)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
