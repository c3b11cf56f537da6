package memory

import (
	"context"
	"sort"
	"sync"

	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

var (
	_ app.StatsRepository = (*StatsRepository)(nil)
	_ app.MatchArchive    = (*MatchArchive)(nil)
)

// StatsRepository keeps player stats and the keys of results already applied.
type StatsRepository struct {
	mu      sync.Mutex
	stats   map[string]domain.PlayerStats
	applied map[string]struct{}
}

func NewStatsRepository() *StatsRepository {
	return &StatsRepository{
		stats:   make(map[string]domain.PlayerStats),
		applied: make(map[string]struct{}),
	}
}

func (r *StatsRepository) Get(_ context.Context, playerID string) (domain.PlayerStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[playerID]
	if !ok {
		return domain.PlayerStats{}, domain.ErrStatsNotFound
	}
	return copyStats(s), nil
}

func (r *StatsRepository) Apply(_ context.Context, result domain.MatchResult, fn func(*domain.PlayerStats)) (domain.PlayerStats, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[result.PlayerID]
	if !ok {
		s = domain.NewPlayerStats(result.PlayerID, result.PlayerName)
	}
	if _, done := r.applied[result.Key()]; done {
		return copyStats(s), false, nil
	}
	s = copyStats(s)
	fn(&s)
	r.stats[result.PlayerID] = s
	r.applied[result.Key()] = struct{}{}
	return copyStats(s), true, nil
}

func copyStats(s domain.PlayerStats) domain.PlayerStats {
	out := s
	out.SubjectQuestions = make(map[string]int, len(s.SubjectQuestions))
	for k, v := range s.SubjectQuestions {
		out.SubjectQuestions[k] = v
	}
	out.SubjectCorrect = make(map[string]int, len(s.SubjectCorrect))
	for k, v := range s.SubjectCorrect {
		out.SubjectCorrect[k] = v
	}
	return out
}

// MatchArchive keeps completed matches in memory.
type MatchArchive struct {
	mu      sync.RWMutex
	matches map[string]domain.Match
}

func NewMatchArchive() *MatchArchive {
	return &MatchArchive{matches: make(map[string]domain.Match)}
}

func (a *MatchArchive) Save(_ context.Context, m domain.Match) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.matches[m.ID] = m.Clone()
	return nil
}

// ListByPlayer returns the player's matches, most recently ended first.
func (a *MatchArchive) ListByPlayer(_ context.Context, playerID string, limit int) ([]domain.Match, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []domain.Match
	for _, m := range a.matches {
		if m.Participant(playerID) != nil {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
