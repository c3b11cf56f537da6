package domain

import (
	"strings"
	"time"
)

// Difficulty levels used by tickets and questions.
const (
	DifficultyEasy   = 1
	DifficultyMedium = 2
	DifficultyHard   = 3
)

// DefaultQuestionTimeLimit applies when neither the question nor the match sets one.
const DefaultQuestionTimeLimit = 30 * time.Second

// Question models an MCQ question with exactly one correct option. It is read-only once loaded.
type Question struct {
	ID                 string        `json:"id"`
	Prompt             string        `json:"prompt"`
	Options            []string      `json:"options"`
	CorrectOptionIndex int           `json:"correctOptionIndex"`
	Explanation        string        `json:"explanation,omitempty"`
	Course             string        `json:"course"`
	Unit               string        `json:"unit"`
	Career             string        `json:"career"`
	Difficulty         int           `json:"difficulty,omitempty"`
	TimeLimit          time.Duration `json:"timeLimit,omitempty"` // overrides the match default when > 0
}

// IsCorrect reports whether selected is the correct option.
func (q Question) IsCorrect(selected int) bool {
	return selected == q.CorrectOptionIndex
}

// HasOption reports whether selected indexes an existing option.
func (q Question) HasOption(selected int) bool {
	return selected >= 0 && selected < len(q.Options)
}

// Valid reports whether the question can be served in a match.
func (q Question) Valid() bool {
	return q.ID != "" && len(q.Options) >= 2 && q.HasOption(q.CorrectOptionIndex)
}

// TicketStatus is the lifecycle of a matchmaking ticket.
type TicketStatus string

const (
	TicketWaiting TicketStatus = "WAITING"
	TicketMatched TicketStatus = "MATCHED"
	TicketExpired TicketStatus = "EXPIRED"
)

// PoolKey groups tickets that may be paired with each other.
type PoolKey struct {
	Course string `json:"course"`
	Unit   string `json:"unit"`
	Career string `json:"career"`
}

// String renders the key for use in storage keys.
func (k PoolKey) String() string {
	return k.Course + "|" + k.Unit + "|" + k.Career
}

// Ticket is a pending request to be matched into a quiz session.
type Ticket struct {
	ID                  string       `json:"id"`
	PlayerID            string       `json:"playerId"`
	PlayerName          string       `json:"playerName"`
	Course              string       `json:"course"`
	Unit                string       `json:"unit"`
	Career              string       `json:"career"`
	PreferredDifficulty int          `json:"preferredDifficulty"`
	JoinTime            time.Time    `json:"joinTime"`
	Status              TicketStatus `json:"status"`
	MatchID             string       `json:"matchId,omitempty"`
}

// Pool returns the compatibility key of the ticket.
func (t Ticket) Pool() PoolKey {
	return PoolKey{Course: t.Course, Unit: t.Unit, Career: t.Career}
}

// Validate checks the compatibility fields are present.
func (t Ticket) Validate() error {
	if strings.TrimSpace(t.Course) == "" || strings.TrimSpace(t.Unit) == "" || strings.TrimSpace(t.Career) == "" {
		return ErrInvalidTicket
	}
	return nil
}

// CompatibleWith reports whether two tickets can share a match.
func (t Ticket) CompatibleWith(other Ticket) bool {
	return t.Course == other.Course &&
		t.Unit == other.Unit &&
		t.Career == other.Career &&
		t.PlayerID != other.PlayerID
}

// Expired reports whether the ticket waited longer than maxWait.
func (t Ticket) Expired(now time.Time, maxWait time.Duration) bool {
	return now.Sub(t.JoinTime) > maxWait
}

// AnswerOutcome summarizes a submission for the submitting player.
type AnswerOutcome struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Scored     bool   `json:"scored"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	TotalScore int    `json:"totalScore"`
}

// MatchResult is the per-player view of a completed match handed to the stats service.
type MatchResult struct {
	MatchID           string
	PlayerID          string
	PlayerName        string
	Course            string
	Outcome           Outcome
	QuestionsAnswered int
	CorrectAnswers    int
	CompletedAt       time.Time
}

// Key identifies the result for idempotent delivery.
func (r MatchResult) Key() string {
	return r.MatchID + ":" + r.PlayerID
}
