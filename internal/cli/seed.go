package cli

import (
	"fmt"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"nurseconnect-quiz-service/internal/config"
	"nurseconnect-quiz-service/internal/infra/postgres"
)

// NewSeedCmd loads the bundled sample questions into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample nursing questions into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := runMigrations(ctx, cfg); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			questions := sampleQuestions()
			if err := postgres.NewQuestionLoader(pool).SaveQuestions(ctx, questions); err != nil {
				return err
			}
			log.Printf("seeded %d questions", len(questions))
			return nil
		},
	}
}
