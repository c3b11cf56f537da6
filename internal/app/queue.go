package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"nurseconnect-quiz-service/internal/domain"
)

const (
	DefaultMaxWait      = 60 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// MatchCreator creates the match two paired tickets are placed into.
type MatchCreator interface {
	Create(ctx context.Context, req MatchRequest) (domain.Match, error)
}

// QueueConfig tunes the matchmaking queue.
type QueueConfig struct {
	MaxWait      time.Duration
	PollInterval time.Duration
}

// MatchmakingQueue pairs compatible tickets FIFO and hands them to the coordinator.
type MatchmakingQueue struct {
	tickets TicketStore
	matches MatchCreator
	clock   clockwork.Clock
	cfg     QueueConfig
}

func NewMatchmakingQueue(tickets TicketStore, matches MatchCreator, cfg QueueConfig) *MatchmakingQueue {
	return NewMatchmakingQueueWithClock(tickets, matches, cfg, clockwork.NewRealClock())
}

func NewMatchmakingQueueWithClock(tickets TicketStore, matches MatchCreator, cfg QueueConfig, clock clockwork.Clock) *MatchmakingQueue {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &MatchmakingQueue{tickets: tickets, matches: matches, clock: clock, cfg: cfg}
}

// Join validates and enqueues a WAITING ticket.
func (q *MatchmakingQueue) Join(ctx context.Context, t domain.Ticket) (domain.Ticket, error) {
	if err := t.Validate(); err != nil {
		return domain.Ticket{}, err
	}
	if t.PlayerID == "" {
		return domain.Ticket{}, fmt.Errorf("%w: player id is required", domain.ErrInvalidTicket)
	}
	if t.PreferredDifficulty < domain.DifficultyEasy || t.PreferredDifficulty > domain.DifficultyHard {
		t.PreferredDifficulty = domain.DifficultyMedium
	}
	t.ID = uuid.NewString()
	t.JoinTime = q.clock.Now().UTC()
	t.Status = domain.TicketWaiting
	t.MatchID = ""
	if err := q.tickets.Put(ctx, t); err != nil {
		return domain.Ticket{}, fmt.Errorf("enqueue ticket: %w", err)
	}
	log.Printf("queue: ticket %s player=%s pool=%s", t.ID, t.PlayerID, t.Pool())
	return t, nil
}

// FindMatch pairs the ticket with the oldest compatible WAITING ticket. Without a partner the
// ticket stays WAITING, or becomes EXPIRED with ErrStaleTicket once it waited longer than maxWait.
// A zero maxWait uses the queue default.
func (q *MatchmakingQueue) FindMatch(ctx context.Context, ticketID string, maxWait time.Duration) (domain.Ticket, error) {
	if maxWait <= 0 {
		maxWait = q.cfg.MaxWait
	}
	self, err := q.tickets.Get(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	switch self.Status {
	case domain.TicketMatched:
		return self, nil
	case domain.TicketExpired:
		return self, domain.ErrStaleTicket
	}

	waiting, err := q.tickets.Waiting(ctx, self.Pool())
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("scan pool: %w", err)
	}
	for _, other := range waiting {
		if other.ID == self.ID || !self.CompatibleWith(other) {
			continue
		}
		matched, err := q.pair(ctx, self, other)
		if !errors.Is(err, domain.ErrConcurrentMutation) {
			return matched, err
		}
		// one of the pair was claimed concurrently
		current, err := q.tickets.Get(ctx, self.ID)
		if err != nil {
			return domain.Ticket{}, err
		}
		switch current.Status {
		case domain.TicketMatched:
			return current, nil
		case domain.TicketExpired:
			return current, domain.ErrStaleTicket
		}
	}

	if self.Expired(q.clock.Now(), maxWait) {
		expired, err := q.tickets.Transition(ctx, self.ID, domain.TicketWaiting, domain.TicketExpired, "")
		if errors.Is(err, domain.ErrConcurrentMutation) {
			// matched by a partner in the meantime
			return q.tickets.Get(ctx, self.ID)
		}
		if err != nil {
			return domain.Ticket{}, err
		}
		log.Printf("queue: ticket %s expired after %s", self.ID, maxWait)
		return expired, domain.ErrStaleTicket
	}
	return self, nil
}

// pair claims both tickets in one step and creates their match. Claims are reverted if
// creation fails.
func (q *MatchmakingQueue) pair(ctx context.Context, self, other domain.Ticket) (domain.Ticket, error) {
	matchID := uuid.NewString()
	claimed, err := q.tickets.Claim(ctx, matchID, other.ID, self.ID)
	if err != nil {
		return domain.Ticket{}, err
	}

	_, err = q.matches.Create(ctx, MatchRequest{
		ID:     matchID,
		Course: self.Course,
		Unit:   self.Unit,
		Career: self.Career,
		Seats: []Seat{
			{PlayerID: other.PlayerID, Name: other.PlayerName},
			{PlayerID: self.PlayerID, Name: self.PlayerName},
		},
	})
	if err != nil {
		q.revert(ctx, other.ID)
		q.revert(ctx, self.ID)
		return domain.Ticket{}, fmt.Errorf("create match: %w", err)
	}
	log.Printf("queue: paired %s and %s into match %s", other.ID, self.ID, matchID)
	return claimed[1], nil
}

func (q *MatchmakingQueue) revert(ctx context.Context, ticketID string) {
	if _, err := q.tickets.Transition(ctx, ticketID, domain.TicketMatched, domain.TicketWaiting, ""); err != nil {
		log.Printf("queue: revert ticket %s: %v", ticketID, err)
	}
}

// Await runs FindMatch every poll interval until the ticket is matched or expires.
func (q *MatchmakingQueue) Await(ctx context.Context, ticketID string, maxWait time.Duration) (domain.Ticket, error) {
	ticker := q.clock.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()
	for {
		t, err := q.FindMatch(ctx, ticketID, maxWait)
		if err != nil || t.Status != domain.TicketWaiting {
			return t, err
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ticker.Chan():
		}
	}
}

// Leave removes a WAITING ticket. Matched or expired tickets are left alone.
func (q *MatchmakingQueue) Leave(ctx context.Context, ticketID string) error {
	if _, err := q.tickets.Get(ctx, ticketID); err != nil {
		return err
	}
	removed, err := q.tickets.DeleteIfWaiting(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("leave queue: %w", err)
	}
	if removed {
		log.Printf("queue: ticket %s left", ticketID)
	}
	return nil
}

// Ticket returns the current state of a ticket.
func (q *MatchmakingQueue) Ticket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	return q.tickets.Get(ctx, ticketID)
}

// ExpireStale marks every WAITING ticket older than the max wait as EXPIRED.
func (q *MatchmakingQueue) ExpireStale(ctx context.Context) (int, error) {
	waiting, err := q.tickets.AllWaiting(ctx)
	if err != nil {
		return 0, err
	}
	now := q.clock.Now()
	expired := 0
	for _, t := range waiting {
		if !t.Expired(now, q.cfg.MaxWait) {
			continue
		}
		_, err := q.tickets.Transition(ctx, t.ID, domain.TicketWaiting, domain.TicketExpired, "")
		switch {
		case err == nil:
			expired++
		case errors.Is(err, domain.ErrConcurrentMutation):
		default:
			return expired, err
		}
	}
	return expired, nil
}
