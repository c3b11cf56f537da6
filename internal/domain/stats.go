package domain

import "time"

// Outcome of a completed match for one player.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
	OutcomeDraw Outcome = "DRAW"
)

// Rank tiers derived from rank points.
const (
	RankBronze   = "Bronze"
	RankSilver   = "Silver"
	RankGold     = "Gold"
	RankPlatinum = "Platinum"
	RankDiamond  = "Diamond"
)

// Point awards per match outcome.
const (
	WinPoints   = 25
	LossPenalty = 10
)

var rankThresholds = []struct {
	min  int
	name string
}{
	{1000, RankDiamond},
	{750, RankPlatinum},
	{500, RankGold},
	{250, RankSilver},
}

// RankFor maps cumulative points to a tier.
func RankFor(points int) string {
	for _, t := range rankThresholds {
		if points >= t.min {
			return t.name
		}
	}
	return RankBronze
}

// PlayerStats is a player's aggregate record across matches.
type PlayerStats struct {
	PlayerID         string         `json:"playerId"`
	PlayerName       string         `json:"playerName"`
	TotalMatches     int            `json:"totalMatches"`
	Wins             int            `json:"wins"`
	Losses           int            `json:"losses"`
	Draws            int            `json:"draws"`
	TotalQuestions   int            `json:"totalQuestions"`
	CorrectAnswers   int            `json:"correctAnswers"`
	WinRate          float64        `json:"winRate"`
	Accuracy         float64        `json:"accuracy"`
	RankPoints       int            `json:"rankPoints"`
	Rank             string         `json:"rank"`
	Streak           int            `json:"streak"`
	BestStreak       int            `json:"bestStreak"`
	SubjectQuestions map[string]int `json:"subjectQuestions"`
	SubjectCorrect   map[string]int `json:"subjectCorrect"`
	LastPlayedAt     time.Time      `json:"lastPlayedAt"`
}

// NewPlayerStats returns the record of a player who has not played yet.
func NewPlayerStats(playerID, playerName string) PlayerStats {
	return PlayerStats{
		PlayerID:         playerID,
		PlayerName:       playerName,
		Rank:             RankBronze,
		SubjectQuestions: make(map[string]int),
		SubjectCorrect:   make(map[string]int),
	}
}

// SubjectAccuracy returns correct/answered for a course.
func (s PlayerStats) SubjectAccuracy(course string) float64 {
	total := s.SubjectQuestions[course]
	if total == 0 {
		return 0
	}
	return float64(s.SubjectCorrect[course]) / float64(total)
}

// RecordMatchResult folds one match into the aggregate.
// Idempotence is the caller's concern: apply it once per match and player.
func (s *PlayerStats) RecordMatchResult(r MatchResult, now time.Time) {
	if s.SubjectQuestions == nil {
		s.SubjectQuestions = make(map[string]int)
	}
	if s.SubjectCorrect == nil {
		s.SubjectCorrect = make(map[string]int)
	}
	if r.PlayerName != "" {
		s.PlayerName = r.PlayerName
	}

	s.TotalMatches++
	switch r.Outcome {
	case OutcomeWin:
		s.Wins++
		s.Streak++
		if s.Streak > s.BestStreak {
			s.BestStreak = s.Streak
		}
		s.RankPoints += WinPoints
	case OutcomeDraw:
		s.Draws++
		s.Streak = 0
	default:
		s.Losses++
		s.Streak = 0
		s.RankPoints -= LossPenalty
		if s.RankPoints < 0 {
			s.RankPoints = 0
		}
	}

	s.TotalQuestions += r.QuestionsAnswered
	s.CorrectAnswers += r.CorrectAnswers
	s.WinRate = float64(s.Wins) / float64(s.TotalMatches)
	if s.TotalQuestions > 0 {
		s.Accuracy = float64(s.CorrectAnswers) / float64(s.TotalQuestions)
	}

	s.SubjectQuestions[r.Course] += r.QuestionsAnswered
	s.SubjectCorrect[r.Course] += r.CorrectAnswers

	s.Rank = RankFor(s.RankPoints)
	s.LastPlayedAt = now.UTC()
}
