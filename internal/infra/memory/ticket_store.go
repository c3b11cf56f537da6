package memory

import (
	"context"
	"sort"
	"sync"

	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

var _ app.TicketStore = (*TicketStore)(nil)

// TicketStore keeps matchmaking tickets in memory.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
}

func NewTicketStore() *TicketStore {
	return &TicketStore{tickets: make(map[string]domain.Ticket)}
}

func (s *TicketStore) Put(_ context.Context, t domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
	return nil
}

func (s *TicketStore) Get(_ context.Context, id string) (domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return t, nil
}

// Waiting returns the WAITING tickets of a pool, oldest first.
func (s *TicketStore) Waiting(_ context.Context, pool domain.PoolKey) ([]domain.Ticket, error) {
	return s.waiting(func(t domain.Ticket) bool { return t.Pool() == pool }), nil
}

func (s *TicketStore) AllWaiting(_ context.Context) ([]domain.Ticket, error) {
	return s.waiting(func(domain.Ticket) bool { return true }), nil
}

func (s *TicketStore) waiting(keep func(domain.Ticket) bool) []domain.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Ticket
	for _, t := range s.tickets {
		if t.Status == domain.TicketWaiting && keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinTime.Equal(out[j].JoinTime) {
			return out[i].JoinTime.Before(out[j].JoinTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *TicketStore) Transition(_ context.Context, id string, from, to domain.TicketStatus, matchID string) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	if t.Status != from {
		return t, domain.ErrConcurrentMutation
	}
	t.Status = to
	t.MatchID = matchID
	s.tickets[id] = t
	return t, nil
}

func (s *TicketStore) Claim(_ context.Context, matchID string, ids ...string) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := make([]domain.Ticket, len(ids))
	for i, id := range ids {
		t, ok := s.tickets[id]
		if !ok {
			return nil, domain.ErrTicketNotFound
		}
		if t.Status != domain.TicketWaiting {
			return nil, domain.ErrConcurrentMutation
		}
		t.Status = domain.TicketMatched
		t.MatchID = matchID
		claimed[i] = t
	}
	for _, t := range claimed {
		s.tickets[t.ID] = t
	}
	return claimed, nil
}

func (s *TicketStore) DeleteIfWaiting(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok || t.Status != domain.TicketWaiting {
		return false, nil
	}
	delete(s.tickets, id)
	return true, nil
}
