package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

const createPlayerStatsSQL = `
CREATE TABLE IF NOT EXISTS player_stats (
	player_id         TEXT PRIMARY KEY,
	player_name       TEXT NOT NULL DEFAULT '',
	total_matches     INT NOT NULL DEFAULT 0,
	wins              INT NOT NULL DEFAULT 0,
	losses            INT NOT NULL DEFAULT 0,
	draws             INT NOT NULL DEFAULT 0,
	total_questions   INT NOT NULL DEFAULT 0,
	correct_answers   INT NOT NULL DEFAULT 0,
	win_rate          DOUBLE PRECISION NOT NULL DEFAULT 0,
	accuracy          DOUBLE PRECISION NOT NULL DEFAULT 0,
	rank_points       INT NOT NULL DEFAULT 0,
	rank              TEXT NOT NULL DEFAULT 'Bronze',
	streak            INT NOT NULL DEFAULT 0,
	best_streak       INT NOT NULL DEFAULT 0,
	subject_questions JSONB NOT NULL DEFAULT '{}',
	subject_correct   JSONB NOT NULL DEFAULT '{}',
	last_played_at    TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS stats_ledger (
	match_id   TEXT NOT NULL,
	player_id  TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (match_id, player_id)
);
`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createPlayerStatsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS stats_ledger; DROP TABLE IF EXISTS player_stats`)
			return err
		},
	)
}
