package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/config"
	transport "nurseconnect-quiz-service/internal/transport/http"
	"nurseconnect-quiz-service/internal/worker"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
			return err
		}
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	stats := app.NewStatsService(b.stats, b.archive)
	coordinator := app.NewCoordinator(b.matches, app.NewQuestionBank(b.questions), stats, app.CoordinatorConfig{
		TargetPlayers:     cfg.Match.TargetPlayers,
		TotalQuestions:    cfg.Match.TotalQuestions,
		QuestionTimeLimit: config.TTLDuration(cfg.Match.QuestionTimeLimit, 30*time.Second),
		AdvanceGrace:      config.TTLDuration(cfg.Match.AdvanceGrace, 15*time.Second),
		MaxMissedRounds:   cfg.Match.MaxMissedRounds,
	}, app.WithArchive(b.archive))
	defer coordinator.Close()

	queue := app.NewMatchmakingQueue(b.tickets, coordinator, app.QueueConfig{
		MaxWait:      config.TTLDuration(cfg.Matchmaking.MaxWait, app.DefaultMaxWait),
		PollInterval: config.TTLDuration(cfg.Matchmaking.PollInterval, app.DefaultPollInterval),
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	janitor := worker.NewJanitor(queue, coordinator, worker.JanitorConfig{
		Interval:  config.TTLDuration(cfg.Matchmaking.SweepInterval, worker.DefaultSweepInterval),
		ReapAfter: config.TTLDuration(cfg.Match.ReapAfter, worker.DefaultReapAfter),
	})
	if err := janitor.Start(ctx); err != nil {
		return err
	}
	defer janitor.Stop()

	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     transport.NewRouter(transport.Services{Queue: queue, Coordinator: coordinator, Stats: stats}),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: websockets and /queue/{id}/wait hold the response open
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting quiz service on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
