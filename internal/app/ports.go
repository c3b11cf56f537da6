package app

import (
	"context"

	"nurseconnect-quiz-service/internal/domain"
)

// MaxUpdateAttempts bounds compare-and-set retries in MatchStore implementations.
const MaxUpdateAttempts = 5

// MatchStore is the shared system of record for match documents.
// Update runs fn as a compare-and-set transaction keyed on the match version: fn may run
// more than once and must only touch the match it is given. When fn returns an error
// nothing is written and that error is returned unchanged. Conflicts are retried; once
// retries are exhausted the error wraps domain.ErrMatchUnavailable.
type MatchStore interface {
	Create(ctx context.Context, m domain.Match) error
	Get(ctx context.Context, id string) (domain.Match, error)
	Update(ctx context.Context, id string, fn func(*domain.Match) error) (domain.Match, error)
	Subscribe(ctx context.Context, id string) (<-chan domain.Match, func(), error)
	Open(ctx context.Context, pool domain.PoolKey) ([]domain.Match, error)
	Delete(ctx context.Context, id string) error
}

// TicketStore holds matchmaking tickets. Transition is a compare-and-set on ticket status
// and fails with domain.ErrConcurrentMutation when the ticket is not in status from.
// Claim moves every listed ticket from WAITING to MATCHED in one step; if any of them is not
// WAITING nothing changes and it fails with domain.ErrConcurrentMutation.
type TicketStore interface {
	Put(ctx context.Context, t domain.Ticket) error
	Get(ctx context.Context, id string) (domain.Ticket, error)
	Waiting(ctx context.Context, pool domain.PoolKey) ([]domain.Ticket, error)
	AllWaiting(ctx context.Context) ([]domain.Ticket, error)
	Transition(ctx context.Context, id string, from, to domain.TicketStatus, matchID string) (domain.Ticket, error)
	Claim(ctx context.Context, matchID string, ids ...string) ([]domain.Ticket, error)
	DeleteIfWaiting(ctx context.Context, id string) (bool, error)
}

// StatsRepository persists PlayerStats. Apply runs fn at most once per result key and
// reports whether it ran.
type StatsRepository interface {
	Get(ctx context.Context, playerID string) (domain.PlayerStats, error)
	Apply(ctx context.Context, r domain.MatchResult, fn func(*domain.PlayerStats)) (domain.PlayerStats, bool, error)
}

// MatchArchive keeps completed matches for history queries.
type MatchArchive interface {
	Save(ctx context.Context, m domain.Match) error
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]domain.Match, error)
}

// QuestionSource is the external, read-only question store.
type QuestionSource interface {
	ListQuestions(ctx context.Context, course string) ([]domain.Question, error)
	LoadQuestion(ctx context.Context, id string) (domain.Question, error)
}

// ResultRecorder consumes completed matches.
type ResultRecorder interface {
	RecordMatch(ctx context.Context, m domain.Match) error
}
