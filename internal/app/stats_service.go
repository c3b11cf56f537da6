package app

import (
	"context"
	"fmt"
	"log"

	"github.com/jonboulle/clockwork"
	"nurseconnect-quiz-service/internal/domain"
)

// StatsService folds completed matches into PlayerStats exactly once per match and player.
type StatsService struct {
	repo    StatsRepository
	archive MatchArchive
	clock   clockwork.Clock
}

func NewStatsService(repo StatsRepository, archive MatchArchive) *StatsService {
	return NewStatsServiceWithClock(repo, archive, clockwork.NewRealClock())
}

// NewStatsServiceWithClock is used by tests for deterministic lastPlayed timestamps.
func NewStatsServiceWithClock(repo StatsRepository, archive MatchArchive, clock clockwork.Clock) *StatsService {
	return &StatsService{repo: repo, archive: archive, clock: clock}
}

// RecordMatch applies the result of every participant. Safe to call more than once.
func (s *StatsService) RecordMatch(ctx context.Context, m domain.Match) error {
	if m.Status != domain.MatchCompleted {
		return fmt.Errorf("record match %s: status %s", m.ID, m.Status)
	}
	for _, r := range m.Results() {
		if _, err := s.RecordResult(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// RecordResult applies a single result. A result already applied leaves the stats untouched.
func (s *StatsService) RecordResult(ctx context.Context, r domain.MatchResult) (domain.PlayerStats, error) {
	now := s.clock.Now().UTC()
	stats, applied, err := s.repo.Apply(ctx, r, func(ps *domain.PlayerStats) {
		ps.RecordMatchResult(r, now)
	})
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("record result %s: %w", r.Key(), err)
	}
	if applied {
		log.Printf("stats: %s %s in match %s, rank=%s points=%d", r.PlayerID, r.Outcome, r.MatchID, stats.Rank, stats.RankPoints)
	}
	return stats, nil
}

// Get returns the stats of a player.
func (s *StatsService) Get(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	return s.repo.Get(ctx, playerID)
}

// History lists the most recent completed matches of a player.
func (s *StatsService) History(ctx context.Context, playerID string, limit int) ([]domain.Match, error) {
	if s.archive == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.archive.ListByPlayer(ctx, playerID, limit)
}
