package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

var _ app.MatchStore = (*MatchStore)(nil)

// MatchStore is an in-memory Shared Match Store. Updates are compare-and-set on Version.
type MatchStore struct {
	mu          sync.RWMutex
	matches     map[string]domain.Match
	subscribers map[string]map[chan domain.Match]struct{}

	// beforeCommit lets tests interleave a competing writer between read and commit.
	beforeCommit func(id string)
}

func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches:     make(map[string]domain.Match),
		subscribers: make(map[string]map[chan domain.Match]struct{}),
	}
}

func (s *MatchStore) Create(_ context.Context, m domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[m.ID]; ok {
		return fmt.Errorf("match %s already exists", m.ID)
	}
	m.Version = 1
	s.matches[m.ID] = m.Clone()
	s.broadcastLocked(m)
	return nil
}

func (s *MatchStore) Get(_ context.Context, id string) (domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	return m.Clone(), nil
}

// Update reads the match, applies fn to a private copy and commits only if nobody else
// committed in between.
func (s *MatchStore) Update(ctx context.Context, id string, fn func(*domain.Match) error) (domain.Match, error) {
	for attempt := 0; attempt < app.MaxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return domain.Match{}, err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return domain.Match{}, err
		}
		if s.beforeCommit != nil {
			s.beforeCommit(id)
		}

		s.mu.Lock()
		stored, ok := s.matches[id]
		if !ok {
			s.mu.Unlock()
			return domain.Match{}, domain.ErrMatchNotFound
		}
		if stored.Version != current.Version {
			s.mu.Unlock()
			continue
		}
		next.Version = current.Version + 1
		s.matches[id] = next.Clone()
		s.broadcastLocked(next)
		s.mu.Unlock()
		return next, nil
	}
	return domain.Match{}, fmt.Errorf("%w: %w", domain.ErrMatchUnavailable, domain.ErrConcurrentMutation)
}

// Subscribe returns a channel that receives every committed snapshot, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *MatchStore) Subscribe(_ context.Context, id string) (<-chan domain.Match, func(), error) {
	ch := make(chan domain.Match, 8)

	s.mu.Lock()
	m, ok := s.matches[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil, domain.ErrMatchNotFound
	}
	if s.subscribers[id] == nil {
		s.subscribers[id] = make(map[chan domain.Match]struct{})
	}
	s.subscribers[id][ch] = struct{}{}
	ch <- m.Clone()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if subs, ok := s.subscribers[id]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(s.subscribers, id)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

// Open lists WAITING matches of a pool.
func (s *MatchStore) Open(_ context.Context, pool domain.PoolKey) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Match
	for _, m := range s.matches {
		if m.Status == domain.MatchWaiting && m.Course == pool.Course && m.Unit == pool.Unit && m.Career == pool.Career {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete drops the match and closes its subscriptions.
func (s *MatchStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, id)
	for ch := range s.subscribers[id] {
		close(ch)
	}
	delete(s.subscribers, id)
	return nil
}

func (s *MatchStore) broadcastLocked(m domain.Match) {
	for ch := range s.subscribers[m.ID] {
		snapshot := m.Clone()
		select {
		case ch <- snapshot:
		default:
			// slow subscriber: drop the stale snapshot, the newest one supersedes it
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
