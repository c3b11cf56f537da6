package domain

import (
	"strings"
	"time"
)

// MatchStatus only moves WAITING -> ACTIVE -> COMPLETED.
type MatchStatus string

const (
	MatchWaiting   MatchStatus = "WAITING"
	MatchActive    MatchStatus = "ACTIVE"
	MatchCompleted MatchStatus = "COMPLETED"
)

// RoundState is a participant's progress through the current round.
type RoundState string

const (
	RoundNotAnswered  RoundState = "NOT_ANSWERED"
	RoundAnswered     RoundState = "ANSWERED"
	RoundAcknowledged RoundState = "ACKNOWLEDGED" // pressed next after resolution
)

// Participant is a player's slot in a match.
type Participant struct {
	PlayerID     string     `json:"playerId"`
	DisplayName  string     `json:"displayName"`
	Score        int        `json:"score"`
	Ready        bool       `json:"ready"`
	Left         bool       `json:"left,omitempty"`
	Round        RoundState `json:"round"`
	Answered     int        `json:"answered"`
	Correct      int        `json:"correct"`
	MissedRounds int        `json:"missedRounds,omitempty"`
	JoinedAt     time.Time  `json:"joinedAt"`
}

// Round is the ephemeral state of the current question. It is replaced, never merged, on advance.
type Round struct {
	Index      int           `json:"index"`
	QuestionID string        `json:"questionId"`
	StartedAt  time.Time     `json:"startedAt"`
	TimeLimit  time.Duration `json:"timeLimit"`
	ScorerID   string        `json:"scorerId,omitempty"`
	Resolved   bool          `json:"resolved"`
	ResolvedAt time.Time     `json:"resolvedAt,omitempty"`
}

// Deadline is when the round resolves by timeout.
func (r Round) Deadline() time.Time {
	return r.StartedAt.Add(r.TimeLimit)
}

// MatchSpec holds creation parameters for a match.
type MatchSpec struct {
	Course            string
	Unit              string
	Career            string
	TargetPlayers     int
	QuestionTimeLimit time.Duration
	AdvanceGrace      time.Duration
	MaxMissedRounds   int
}

// Match is the shared quiz session.
type Match struct {
	ID                   string          `json:"id"`
	Course               string          `json:"course"`
	Unit                 string          `json:"unit"`
	Career               string          `json:"career"`
	TargetPlayers        int             `json:"targetPlayers"`
	QuestionIDs          []string        `json:"questionIds"`
	TimeLimits           []time.Duration `json:"timeLimits,omitempty"` // aligned with QuestionIDs, zero uses QuestionTimeLimit
	QuestionTimeLimit    time.Duration   `json:"questionTimeLimit"`
	AdvanceGrace         time.Duration   `json:"advanceGrace"`
	MaxMissedRounds      int             `json:"maxMissedRounds"`
	Participants         []Participant   `json:"participants"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	Status               MatchStatus     `json:"status"`
	Round                Round           `json:"round"`
	WinnerID             string          `json:"winnerId,omitempty"`
	Draw                 bool            `json:"draw,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	StartedAt            time.Time       `json:"startedAt,omitempty"`
	EndedAt              time.Time       `json:"endedAt,omitempty"`
	Version              int64           `json:"version"`
}

// NewMatch builds a WAITING match over the given questions.
func NewMatch(id string, spec MatchSpec, questions []Question, now time.Time) Match {
	target := spec.TargetPlayers
	if target < 1 {
		target = 2
	}
	limit := spec.QuestionTimeLimit
	if limit <= 0 {
		limit = DefaultQuestionTimeLimit
	}
	ids := make([]string, len(questions))
	limits := make([]time.Duration, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
		limits[i] = q.TimeLimit
	}
	return Match{
		ID:                id,
		Course:            spec.Course,
		Unit:              spec.Unit,
		Career:            spec.Career,
		TargetPlayers:     target,
		QuestionIDs:       ids,
		TimeLimits:        limits,
		QuestionTimeLimit: limit,
		AdvanceGrace:      spec.AdvanceGrace,
		MaxMissedRounds:   spec.MaxMissedRounds,
		Participants:      make([]Participant, 0, target),
		Status:            MatchWaiting,
		CreatedAt:         now.UTC(),
	}
}

// TotalQuestions is the number of rounds in the match.
func (m *Match) TotalQuestions() int {
	return len(m.QuestionIDs)
}

// Participant returns the slot for playerID, or nil.
func (m *Match) Participant(playerID string) *Participant {
	for i := range m.Participants {
		if m.Participants[i].PlayerID == playerID {
			return &m.Participants[i]
		}
	}
	return nil
}

// ActiveCount is the number of participants still gating progression.
func (m *Match) ActiveCount() int {
	n := 0
	for _, p := range m.Participants {
		if !p.Left {
			n++
		}
	}
	return n
}

// Scores returns playerID -> score for every participant.
func (m *Match) Scores() map[string]int {
	scores := make(map[string]int, len(m.Participants))
	for _, p := range m.Participants {
		scores[p.PlayerID] = p.Score
	}
	return scores
}

// Full reports whether the match reached its target player count.
func (m *Match) Full() bool {
	return len(m.Participants) >= m.TargetPlayers
}

// ReadyToStart reports whether the match is full and every participant is ready.
func (m *Match) ReadyToStart() bool {
	if len(m.Participants) != m.TargetPlayers {
		return false
	}
	for _, p := range m.Participants {
		if !p.Ready {
			return false
		}
	}
	return true
}

// Join appends a participant. Rejoining is a no-op.
func (m *Match) Join(playerID, displayName string, now time.Time) error {
	if strings.TrimSpace(playerID) == "" {
		return ErrInvalidPlayer
	}
	if m.Participant(playerID) != nil {
		return nil
	}
	if m.Status != MatchWaiting {
		return ErrMatchNotWaiting
	}
	if m.Full() {
		return ErrMatchFull
	}
	m.Participants = append(m.Participants, Participant{
		PlayerID:    playerID,
		DisplayName: displayName,
		Round:       RoundNotAnswered,
		JoinedAt:    now.UTC(),
	})
	return nil
}

// SetReady flips the ready flag and starts the match once everyone is ready.
// After the match started the call has no effect.
func (m *Match) SetReady(playerID string, ready bool, now time.Time) error {
	p := m.Participant(playerID)
	if p == nil {
		return ErrParticipantNotFound
	}
	if m.Status != MatchWaiting {
		return nil
	}
	p.Ready = ready
	m.tryStart(now)
	return nil
}

func (m *Match) tryStart(now time.Time) bool {
	if m.Status != MatchWaiting || !m.ReadyToStart() || len(m.QuestionIDs) == 0 {
		return false
	}
	m.Status = MatchActive
	m.StartedAt = now.UTC()
	m.CurrentQuestionIndex = 0
	m.startRound(0, now)
	return true
}

func (m *Match) startRound(index int, now time.Time) {
	limit := m.QuestionTimeLimit
	if index < len(m.TimeLimits) && m.TimeLimits[index] > 0 {
		limit = m.TimeLimits[index]
	}
	m.Round = Round{
		Index:      index,
		QuestionID: m.QuestionIDs[index],
		StartedAt:  now.UTC(),
		TimeLimit:  limit,
	}
	for i := range m.Participants {
		m.Participants[i].Round = RoundNotAnswered
	}
}

// SubmitAnswer records a player's answer to the current question.
// Only the first correct answer of a round scores.
func (m *Match) SubmitAnswer(playerID, questionID string, correct bool, now time.Time) (AnswerOutcome, error) {
	outcome := AnswerOutcome{QuestionID: questionID}
	if m.Status != MatchActive {
		return outcome, ErrInvalidRoundSubmission
	}
	p := m.Participant(playerID)
	if p == nil {
		return outcome, ErrParticipantNotFound
	}
	outcome.TotalScore = p.Score
	if p.Left {
		return outcome, ErrParticipantInactive
	}
	if questionID != m.Round.QuestionID {
		return outcome, ErrInvalidRoundSubmission
	}
	// a resend of this round's answer stays a duplicate after the round resolved
	if p.Round != RoundNotAnswered {
		return outcome, ErrDuplicateSubmission
	}
	if m.Round.Resolved {
		return outcome, ErrInvalidRoundSubmission
	}

	p.Round = RoundAnswered
	p.Answered++
	outcome.Correct = correct
	if correct {
		p.Correct++
		if m.Round.ScorerID == "" {
			m.Round.ScorerID = playerID
			p.Score++
			outcome.Scored = true
		}
	}
	outcome.TotalScore = p.Score

	if m.allActiveAnswered() {
		m.resolve(now)
	}
	return outcome, nil
}

// ResolveIfDue resolves the round when every active participant answered or the time limit elapsed.
func (m *Match) ResolveIfDue(now time.Time) bool {
	if m.Status != MatchActive || m.Round.Resolved {
		return false
	}
	if m.allActiveAnswered() || !now.Before(m.Round.Deadline()) {
		m.resolve(now)
		return true
	}
	return false
}

// ResolveRound resolves round index on timeout. Repeated calls fail with ErrRoundResolved.
func (m *Match) ResolveRound(index int, now time.Time) error {
	if m.Status != MatchActive || index != m.CurrentQuestionIndex {
		return ErrStaleRound
	}
	if m.Round.Resolved {
		return ErrRoundResolved
	}
	m.resolve(now)
	return nil
}

func (m *Match) resolve(now time.Time) {
	m.Round.Resolved = true
	m.Round.ResolvedAt = now.UTC()
}

// PressNext acknowledges the resolved round. The round advances once every active participant pressed.
func (m *Match) PressNext(playerID string, now time.Time) error {
	if m.Status != MatchActive {
		return ErrInvalidRoundSubmission
	}
	p := m.Participant(playerID)
	if p == nil {
		return ErrParticipantNotFound
	}
	if p.Left {
		return ErrParticipantInactive
	}
	if !m.Round.Resolved {
		return ErrRoundNotResolved
	}
	p.Round = RoundAcknowledged
	if m.allActiveAcknowledged() {
		m.advance(now)
	}
	return nil
}

// AdvanceRound forces round index forward after the grace period.
func (m *Match) AdvanceRound(index int, now time.Time) error {
	if m.Status != MatchActive || index != m.CurrentQuestionIndex {
		return ErrStaleRound
	}
	if !m.Round.Resolved {
		return ErrRoundNotResolved
	}
	m.advance(now)
	return nil
}

func (m *Match) advance(now time.Time) {
	for i := range m.Participants {
		p := &m.Participants[i]
		if p.Left {
			continue
		}
		if p.Round == RoundNotAnswered {
			p.MissedRounds++
			if m.MaxMissedRounds > 0 && p.MissedRounds >= m.MaxMissedRounds {
				p.Left = true
			}
		} else {
			p.MissedRounds = 0
		}
	}

	m.CurrentQuestionIndex++
	if m.CurrentQuestionIndex < len(m.QuestionIDs) && m.ActiveCount() > 0 {
		m.startRound(m.CurrentQuestionIndex, now)
		return
	}
	m.complete(now)
}

// Leave removes a participant before the start, or makes them inactive afterwards.
func (m *Match) Leave(playerID string, now time.Time) error {
	switch m.Status {
	case MatchCompleted:
		return nil
	case MatchWaiting:
		for i := range m.Participants {
			if m.Participants[i].PlayerID == playerID {
				m.Participants = append(m.Participants[:i], m.Participants[i+1:]...)
				return nil
			}
		}
		return ErrParticipantNotFound
	}

	p := m.Participant(playerID)
	if p == nil {
		return ErrParticipantNotFound
	}
	if p.Left {
		return nil
	}
	p.Left = true

	if m.ActiveCount() == 0 {
		m.complete(now)
		return nil
	}
	if !m.Round.Resolved && m.allActiveAnswered() {
		m.resolve(now)
	}
	if m.Round.Resolved && m.allActiveAcknowledged() {
		m.advance(now)
	}
	return nil
}

// complete finalizes the match. The winner needs a strict maximum among active
// participants (all participants when nobody is left); otherwise it is a draw.
func (m *Match) complete(now time.Time) {
	m.Status = MatchCompleted
	m.EndedAt = now.UTC()
	m.CurrentQuestionIndex = min(m.CurrentQuestionIndex, len(m.QuestionIDs))

	onlyActive := m.ActiveCount() > 0
	best, winner, tied := -1, "", false
	for _, p := range m.Participants {
		if onlyActive && p.Left {
			continue
		}
		switch {
		case p.Score > best:
			best, winner, tied = p.Score, p.PlayerID, false
		case p.Score == best:
			tied = true
		}
	}
	if tied {
		m.WinnerID = ""
		m.Draw = winner != ""
		return
	}
	m.WinnerID = winner
}

func (m *Match) allActiveAnswered() bool {
	for _, p := range m.Participants {
		if !p.Left && p.Round == RoundNotAnswered {
			return false
		}
	}
	return true
}

func (m *Match) allActiveAcknowledged() bool {
	for _, p := range m.Participants {
		if !p.Left && p.Round != RoundAcknowledged {
			return false
		}
	}
	return true
}

// Results returns one MatchResult per participant of a completed match.
func (m *Match) Results() []MatchResult {
	if m.Status != MatchCompleted {
		return nil
	}
	onlyActive := m.ActiveCount() > 0
	top := -1
	if m.Draw {
		for _, p := range m.Participants {
			if (!onlyActive || !p.Left) && p.Score > top {
				top = p.Score
			}
		}
	}
	results := make([]MatchResult, 0, len(m.Participants))
	for _, p := range m.Participants {
		outcome := OutcomeLoss
		switch {
		case p.PlayerID == m.WinnerID:
			outcome = OutcomeWin
		case m.Draw && (!onlyActive || !p.Left) && p.Score == top:
			outcome = OutcomeDraw
		}
		results = append(results, MatchResult{
			MatchID:           m.ID,
			PlayerID:          p.PlayerID,
			PlayerName:        p.DisplayName,
			Course:            m.Course,
			Outcome:           outcome,
			QuestionsAnswered: p.Answered,
			CorrectAnswers:    p.Correct,
			CompletedAt:       m.EndedAt,
		})
	}
	return results
}

// Clone returns a deep copy safe to hand to another goroutine.
func (m Match) Clone() Match {
	c := m
	c.QuestionIDs = append([]string(nil), m.QuestionIDs...)
	c.TimeLimits = append([]time.Duration(nil), m.TimeLimits...)
	c.Participants = append([]Participant(nil), m.Participants...)
	return c
}
