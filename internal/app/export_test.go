package app

import (
	"context"
	"time"

	"nurseconnect-quiz-service/internal/domain"
)

// Flush waits until every command queued on the match actor so far has been applied.
func (c *Coordinator) Flush(ctx context.Context, matchID string) (domain.Match, error) {
	return c.do(ctx, matchID, func(*domain.Match, time.Time) error { return errNoop })
}
