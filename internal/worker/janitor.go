package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultSweepInterval = 30 * time.Second
	DefaultReapAfter     = 5 * time.Minute
)

// TicketExpirer expires WAITING tickets past the max wait.
type TicketExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// MatchReaper stops matches that completed before a cutoff.
type MatchReaper interface {
	Reap(ctx context.Context, completedBefore time.Time) int
}

type JanitorConfig struct {
	Interval  time.Duration
	ReapAfter time.Duration
}

// Sweep reports what one janitor run did.
type Sweep struct {
	Expired int
	Reaped  int
}

// Janitor periodically expires stale tickets and reaps finished matches.
type Janitor struct {
	tickets TicketExpirer
	matches MatchReaper
	cfg     JanitorConfig
	clock   clockwork.Clock

	sched gocron.Scheduler
}

func NewJanitor(tickets TicketExpirer, matches MatchReaper, cfg JanitorConfig) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.ReapAfter <= 0 {
		cfg.ReapAfter = DefaultReapAfter
	}
	return &Janitor{tickets: tickets, matches: matches, cfg: cfg, clock: clockwork.NewRealClock()}
}

// Start schedules RunOnce every interval until ctx is done or Stop is called.
func (j *Janitor) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithClock(j.clock))
	if err != nil {
		return fmt.Errorf("janitor scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(j.cfg.Interval),
		gocron.NewTask(func(ctx context.Context) {
			if _, err := j.RunOnce(ctx); err != nil {
				log.Printf("janitor: sweep failed: %v", err)
			}
		}),
		gocron.WithName("janitor"),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("janitor job: %w", err)
	}
	j.sched = sched
	sched.Start()
	log.Printf("janitor: sweeping every %s, reaping matches %s after completion", j.cfg.Interval, j.cfg.ReapAfter)
	return nil
}

func (j *Janitor) Stop() error {
	if j.sched == nil {
		return nil
	}
	return j.sched.Shutdown()
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce(ctx context.Context) (Sweep, error) {
	var s Sweep
	if j.matches != nil {
		s.Reaped = j.matches.Reap(ctx, j.clock.Now().Add(-j.cfg.ReapAfter))
	}
	if j.tickets != nil {
		expired, err := j.tickets.ExpireStale(ctx)
		s.Expired = expired
		if err != nil {
			return s, fmt.Errorf("expire tickets: %w", err)
		}
	}
	if s.Expired > 0 || s.Reaped > 0 {
		log.Printf("janitor: expired=%d reaped=%d", s.Expired, s.Reaped)
	}
	return s, nil
}
