package domain

import "errors"

var (
	// ErrInvalidTicket is returned when a ticket lacks course, unit or career.
	ErrInvalidTicket = errors.New("ticket requires course, unit and career")
	// ErrStaleTicket is returned when a ticket expired before it was matched.
	ErrStaleTicket = errors.New("ticket expired before a match was found")
	// ErrTicketNotFound is returned when a ticket id is unknown to the queue.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrMatchNotFound is returned when a match has not been created.
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchFull is returned when a join would exceed the target player count.
	ErrMatchFull = errors.New("match is full")
	// ErrMatchNotWaiting is returned when joining a match that already started.
	ErrMatchNotWaiting = errors.New("match is not accepting players")
	// ErrInvalidPlayer is returned when a player joins without an id.
	ErrInvalidPlayer = errors.New("player id is required")
	// ErrParticipantNotFound is returned when a player acts on a match they never joined.
	ErrParticipantNotFound = errors.New("participant not found in match")
	// ErrParticipantInactive is returned when a player who left or forfeited keeps acting.
	ErrParticipantInactive = errors.New("participant is no longer active in match")

	// ErrInvalidRoundSubmission covers answers for the wrong question, a closed round, or an inactive match.
	ErrInvalidRoundSubmission = errors.New("submission does not belong to the current round")
	// ErrDuplicateSubmission marks a repeated answer in one round. It is swallowed by the coordinator.
	ErrDuplicateSubmission = errors.New("player already answered this round")
	// ErrRoundResolved is returned when a round is resolved twice.
	ErrRoundResolved = errors.New("round already resolved")
	// ErrRoundNotResolved is returned when next is pressed while answers are still open.
	ErrRoundNotResolved = errors.New("round still accepting answers")
	// ErrStaleRound is returned by timer commands armed for a round that already moved on.
	ErrStaleRound = errors.New("round already advanced")

	// ErrQuestionNotFound indicates a question id is unknown to the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a selected option index is out of range.
	ErrOptionNotFound = errors.New("option not found")
	// ErrNotEnoughQuestions is returned when the bank has nothing for a course.
	ErrNotEnoughQuestions = errors.New("no questions available for course")

	// ErrStatsNotFound is returned for players who never finished a match.
	ErrStatsNotFound = errors.New("player stats not found")

	// ErrConcurrentMutation signals a compare-and-set conflict in a store.
	ErrConcurrentMutation = errors.New("concurrent match mutation")
	// ErrMatchUnavailable is returned once conflict retries are exhausted.
	ErrMatchUnavailable = errors.New("match temporarily unavailable")
	// ErrCoordinatorClosed is returned after the coordinator shut down.
	ErrCoordinatorClosed = errors.New("coordinator closed")
)
