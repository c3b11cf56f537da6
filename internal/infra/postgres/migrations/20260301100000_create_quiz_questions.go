package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

const createQuizQuestionsSQL = `
CREATE TABLE IF NOT EXISTS quiz_questions (
	id         TEXT PRIMARY KEY,
	course     TEXT NOT NULL,
	unit       TEXT NOT NULL,
	career     TEXT NOT NULL,
	difficulty INT  NOT NULL DEFAULT 2,
	data       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS quiz_questions_course_idx ON quiz_questions (course, unit, career);
`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createQuizQuestionsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS quiz_questions`)
			return err
		},
	)
}
