package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

var _ app.StatsRepository = (*StatsRepository)(nil)

type playerStatsRow struct {
	bun.BaseModel `bun:"table:player_stats"`

	PlayerID         string         `bun:"player_id,pk"`
	PlayerName       string         `bun:"player_name"`
	TotalMatches     int            `bun:"total_matches"`
	Wins             int            `bun:"wins"`
	Losses           int            `bun:"losses"`
	Draws            int            `bun:"draws"`
	TotalQuestions   int            `bun:"total_questions"`
	CorrectAnswers   int            `bun:"correct_answers"`
	WinRate          float64        `bun:"win_rate"`
	Accuracy         float64        `bun:"accuracy"`
	RankPoints       int            `bun:"rank_points"`
	Rank             string         `bun:"rank"`
	Streak           int            `bun:"streak"`
	BestStreak       int            `bun:"best_streak"`
	SubjectQuestions map[string]int `bun:"subject_questions,type:jsonb"`
	SubjectCorrect   map[string]int `bun:"subject_correct,type:jsonb"`
	LastPlayedAt     time.Time      `bun:"last_played_at,nullzero"`
}

type ledgerRow struct {
	bun.BaseModel `bun:"table:stats_ledger"`

	MatchID   string    `bun:"match_id,pk"`
	PlayerID  string    `bun:"player_id,pk"`
	Outcome   string    `bun:"outcome"`
	AppliedAt time.Time `bun:"applied_at"`
}

// StatsRepository stores PlayerStats in Postgres. A ledger row keyed by (match, player)
// is inserted in the same transaction as the stats change, so a replayed result is a no-op.
type StatsRepository struct {
	db *bun.DB
}

func NewStatsRepository(db *bun.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) Get(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	row := new(playerStatsRow)
	err := r.db.NewSelect().Model(row).Where("player_id = ?", playerID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlayerStats{}, domain.ErrStatsNotFound
	}
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("load stats: %w", err)
	}
	return row.toDomain(), nil
}

func (r *StatsRepository) Apply(ctx context.Context, result domain.MatchResult, fn func(*domain.PlayerStats)) (domain.PlayerStats, bool, error) {
	var (
		stats   domain.PlayerStats
		applied bool
	)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().
			Model(&ledgerRow{MatchID: result.MatchID, PlayerID: result.PlayerID, Outcome: string(result.Outcome), AppliedAt: time.Now().UTC()}).
			On("CONFLICT (match_id, player_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert ledger: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return err
		}

		row := new(playerStatsRow)
		err = tx.NewSelect().Model(row).Where("player_id = ?", result.PlayerID).For("UPDATE").Scan(ctx)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load stats: %w", err)
		}
		if exists {
			stats = row.toDomain()
		} else {
			stats = domain.NewPlayerStats(result.PlayerID, result.PlayerName)
		}
		if inserted == 0 {
			return nil
		}

		fn(&stats)
		applied = true
		next := fromDomain(stats)
		if exists {
			_, err = tx.NewUpdate().Model(next).WherePK().Exec(ctx)
		} else {
			_, err = tx.NewInsert().Model(next).Exec(ctx)
		}
		if err != nil {
			return fmt.Errorf("save stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.PlayerStats{}, false, err
	}
	return stats, applied, nil
}

func (row *playerStatsRow) toDomain() domain.PlayerStats {
	s := domain.PlayerStats{
		PlayerID:         row.PlayerID,
		PlayerName:       row.PlayerName,
		TotalMatches:     row.TotalMatches,
		Wins:             row.Wins,
		Losses:           row.Losses,
		Draws:            row.Draws,
		TotalQuestions:   row.TotalQuestions,
		CorrectAnswers:   row.CorrectAnswers,
		WinRate:          row.WinRate,
		Accuracy:         row.Accuracy,
		RankPoints:       row.RankPoints,
		Rank:             row.Rank,
		Streak:           row.Streak,
		BestStreak:       row.BestStreak,
		SubjectQuestions: row.SubjectQuestions,
		SubjectCorrect:   row.SubjectCorrect,
		LastPlayedAt:     row.LastPlayedAt.UTC(),
	}
	if s.SubjectQuestions == nil {
		s.SubjectQuestions = make(map[string]int)
	}
	if s.SubjectCorrect == nil {
		s.SubjectCorrect = make(map[string]int)
	}
	return s
}

func fromDomain(s domain.PlayerStats) *playerStatsRow {
	return &playerStatsRow{
		PlayerID:         s.PlayerID,
		PlayerName:       s.PlayerName,
		TotalMatches:     s.TotalMatches,
		Wins:             s.Wins,
		Losses:           s.Losses,
		Draws:            s.Draws,
		TotalQuestions:   s.TotalQuestions,
		CorrectAnswers:   s.CorrectAnswers,
		WinRate:          s.WinRate,
		Accuracy:         s.Accuracy,
		RankPoints:       s.RankPoints,
		Rank:             s.Rank,
		Streak:           s.Streak,
		BestStreak:       s.BestStreak,
		SubjectQuestions: s.SubjectQuestions,
		SubjectCorrect:   s.SubjectCorrect,
		LastPlayedAt:     s.LastPlayedAt,
	}
}
