package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
	"nurseconnect-quiz-service/internal/infra/memory"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

var fundamentals = domain.PoolKey{Course: "Fundamentals", Unit: "U1", Career: "CNA"}

const (
	right = 1
	wrong = 0
)

type harness struct {
	coord   *app.Coordinator
	clock   *clockwork.FakeClock
	store   *memory.MatchStore
	stats   *app.StatsService
	archive *memory.MatchArchive
	bank    *app.QuestionBank
}

func newHarness(t *testing.T, cfg app.CoordinatorConfig) *harness {
	t.Helper()
	h := &harness{
		clock:   clockwork.NewFakeClockAt(t0),
		store:   memory.NewMatchStore(),
		archive: memory.NewMatchArchive(),
		bank:    app.NewQuestionBank(memory.NewStaticQuestionSource(nursingQuestions(12))),
	}
	h.stats = app.NewStatsServiceWithClock(memory.NewStatsRepository(), h.archive, h.clock)
	h.coord = app.NewCoordinator(h.store, h.bank, h.stats, cfg, app.WithClock(h.clock), app.WithArchive(h.archive))
	t.Cleanup(h.coord.Close)
	return h
}

func nursingQuestions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			ID:                 fmt.Sprintf("fund-%02d", i),
			Prompt:             "Which action comes first when a resident falls?",
			Options:            []string{"Call family", "Assess the resident", "Fill incident report", "Move the resident"},
			CorrectOptionIndex: right,
			Course:             fundamentals.Course,
			Unit:               fundamentals.Unit,
			Career:             fundamentals.Career,
		}
	}
	return qs
}

func (h *harness) activeMatch(t *testing.T, players ...string) domain.Match {
	t.Helper()
	ctx := context.Background()
	seats := make([]app.Seat, len(players))
	for i, p := range players {
		seats[i] = app.Seat{PlayerID: p, Name: "Player " + p}
	}
	m, err := h.coord.Create(ctx, app.MatchRequest{
		Course: fundamentals.Course, Unit: fundamentals.Unit, Career: fundamentals.Career,
		TargetPlayers: len(players), Seats: seats,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, p := range players {
		if m, err = h.coord.SetReady(ctx, m.ID, p, true); err != nil {
			t.Fatalf("ready %s: %v", p, err)
		}
	}
	if m.Status != domain.MatchActive {
		t.Fatalf("expected active match, got %s", m.Status)
	}
	return m
}

func (h *harness) answer(t *testing.T, m domain.Match, player string, option int) (domain.AnswerOutcome, domain.Match) {
	t.Helper()
	outcome, updated, err := h.coord.SubmitAnswer(context.Background(), m.ID, player, m.Round.QuestionID, option)
	if err != nil {
		t.Fatalf("answer %s: %v", player, err)
	}
	return outcome, updated
}

func (h *harness) next(t *testing.T, m domain.Match, player string) domain.Match {
	t.Helper()
	updated, err := h.coord.PressNext(context.Background(), m.ID, player)
	if err != nil {
		t.Fatalf("next %s: %v", player, err)
	}
	return updated
}

func (h *harness) flush(t *testing.T, id string) domain.Match {
	t.Helper()
	m, err := h.coord.Flush(context.Background(), id)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	return m
}

// waitFor flushes the match until cond holds. Timers fire on their own goroutines.
func (h *harness) waitFor(t *testing.T, id string, cond func(domain.Match) bool) domain.Match {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		m := h.flush(t, id)
		if cond(m) {
			return m
		}
		if time.Now().After(deadline) {
			t.Fatalf("match %s: condition not reached, idx=%d round=%+v", id, m.CurrentQuestionIndex, m.Round)
		}
		time.Sleep(time.Millisecond)
	}
}

func resolved(m domain.Match) bool { return m.Round.Resolved }

func TestCoordinatorPlaysMatchToCompletion(t *testing.T) {
	h := newHarness(t, app.CoordinatorConfig{})
	m := h.activeMatch(t, "a", "b")

	for round := 0; round < 10; round++ {
		aOption, bOption := right, wrong
		if round >= 7 {
			aOption, bOption = wrong, right
		}
		h.clock.Advance(2 * time.Second)
		_, m = h.answer(t, m, "a", aOption)
		h.clock.Advance(time.Second)
		_, m = h.answer(t, m, "b", bOption)
		if !m.Round.Resolved {
			t.Fatalf("round %d: expected resolution once both answered", round)
		}
		m = h.next(t, m, "a")
		m = h.next(t, m, "b")
	}

	if m.Status != domain.MatchCompleted || m.WinnerID != "a" || m.Draw {
		t.Fatalf("expected completed match won by a, got %s winner=%q draw=%v", m.Status, m.WinnerID, m.Draw)
	}
	if scores := m.Scores(); scores["a"] != 7 || scores["b"] != 3 {
		t.Fatalf("unexpected final scores %v", scores)
	}

	ctx := context.Background()
	winner, err := h.stats.Get(ctx, "a")
	if err != nil {
		t.Fatalf("stats a: %v", err)
	}
	if winner.Wins != 1 || winner.RankPoints != domain.WinPoints || winner.CorrectAnswers != 7 || winner.TotalQuestions != 10 {
		t.Fatalf("unexpected winner stats %+v", winner)
	}
	loser, err := h.stats.Get(ctx, "b")
	if err != nil {
		t.Fatalf("stats b: %v", err)
	}
	if loser.Losses != 1 || loser.RankPoints != 0 || loser.CorrectAnswers != 3 {
		t.Fatalf("unexpected loser stats %+v", loser)
	}
	history, err := h.stats.History(ctx, "b", 0)
	if err != nil || len(history) != 1 || history[0].ID != m.ID {
		t.Fatalf("expected archived match in history, got %v %v", history, err)
	}
}

func TestCoordinatorFirstCorrectAnswerScores(t *testing.T) {
	h := newHarness(t, app.CoordinatorConfig{})
	m := h.activeMatch(t, "a", "b")

	first, _ := h.answer(t, m, "a", right)
	second, m := h.answer(t, m, "b", right)
	if !first.Scored || second.Scored || !second.Correct {
		t.Fatalf("expected only the first correct answer to score, got %+v / %+v", first, second)
	}
	if m.Round.ScorerID != "a" || m.Scores()["b"] != 0 {
		t.Fatalf("unexpected round %+v scores %v", m.Round, m.Scores())
	}
}

func TestCoordinatorConcurrentCorrectAnswersScoreOnce(t *testing.T) {
	h := newHarness(t, app.CoordinatorConfig{})
	players := []string{"a", "b", "c", "d"}
	m := h.activeMatch(t, players...)

	var wg sync.WaitGroup
	outcomes := make([]domain.AnswerOutcome, len(players))
	errs := make([]error, len(players))
	for i, p := range players {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			outcomes[i], _, errs[i] = h.coord.SubmitAnswer(context.Background(), m.ID, p, m.Round.QuestionID, right)
		}(i, p)
	}
	wg.Wait()

	scored := 0
	for i, o := range outcomes {
		if errs[i] != nil {
			t.Fatalf("answer %s: %v", players[i], errs[i])
		}
		if o.Scored {
			scored++
		}
	}
	if scored != 1 {
		t.Fatalf("expected exactly one scorer, got %d", scored)
	}
	final, _ := h.coord.Get(context.Background(), m.ID)
	total := 0
	for _, s := range final.Scores() {
		total += s
	}
	if total != 1 || !final.Round.Resolved {
		t.Fatalf("expected one point and a resolved round, got %v resolved=%v", final.Scores(), final.Round.Resolved)
	}
}

func TestCoordinatorDuplicateSubmissionIsNoop(t *testing.T) {
	h := newHarness(t, app.CoordinatorConfig{})
	m := h.activeMatch(t, "a", "b")

	h.answer(t, m, "a", wrong)
	dup, after := h.answer(t, m, "a", right)
	if !dup.Duplicate || dup.Scored {
		t.Fatalf("expected ignored duplicate, got %+v", dup)
	}
	if after.Scores()["a"] != 0 || after.Participant("a").Answered != 1 {
		t.Fatalf("duplicate changed state: %+v", after.Participant("a"))
	}

	// b's answer resolves the round; a resend from either player is still a no-op
	_, resolvedMatch := h.answer(t, m, "b", right)
	if !resolvedMatch.Round.Resolved {
		t.Fatalf("expected round resolved after both answered")
	}
	for _, p := range []string{"a", "b"} {
		late, after := h.answer(t, m, p, right)
		if !late.Duplicate || late.Scored {
			t.Fatalf("expected resend from %s after resolution to be a duplicate, got %+v", p, late)
		}
		if after.Scores()["b"] != 1 || after.Participant(p).Answered != 1 {
			t.Fatalf("resend from %s changed state: %v %+v", p, after.Scores(), after.Participant(p))
		}
	}
}

func TestCoordinatorRejectsInvalidSubmissions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.CoordinatorConfig{})
	m := h.activeMatch(t, "a", "b")

	if _, _, err := h.coord.SubmitAnswer(ctx, m.ID, "a", "not-in-match", right); !errors.Is(err, domain.ErrInvalidRoundSubmission) {
		t.Fatalf("expected invalid round submission, got %v", err)
	}
	if _, _, err := h.coord.SubmitAnswer(ctx, m.ID, "a", m.Round.QuestionID, 9); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option not found, got %v", err)
	}
	if _, _, err := h.coord.SubmitAnswer(ctx, m.ID, "z", m.Round.QuestionID, right); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}
	other := m.QuestionIDs[1]
	if _, _, err := h.coord.SubmitAnswer(ctx, m.ID, "a", other, right); !errors.Is(err, domain.ErrInvalidRoundSubmission) {
		t.Fatalf("expected wrong-index answer to be rejected, got %v", err)
	}
	if _, err := h.coord.PressNext(ctx, m.ID, "a"); !errors.Is(err, domain.ErrRoundNotResolved) {
		t.Fatalf("expected next before resolution to fail, got %v", err)
	}
	if _, err := h.coord.Join(ctx, "missing", "a", "A"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected match not found, got %v", err)
	}
}

func TestCoordinatorJoinBeyondTargetFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.CoordinatorConfig{})
	m, err := h.coord.Create(ctx, app.MatchRequest{Course: fundamentals.Course, Unit: fundamentals.Unit, Career: fundamentals.Career,
		Seats: []app.Seat{{PlayerID: "a"}, {PlayerID: "b"}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.coord.Join(ctx, m.ID, "c", "Cam"); !errors.Is(err, domain.ErrMatchFull) {
		t.Fatalf("expected match full, got %v", err)
	}
	if again, err := h.coord.Join(ctx, m.ID, "a", "Ana"); err != nil || len(again.Participants) != 2 {
		t.Fatalf("expected idempotent rejoin, got %v %v", again.Participants, err)
	}
}

func TestCoordinatorTimeLimitResolvesRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.CoordinatorConfig{QuestionTimeLimit: 30 * time.Second})
	m := h.activeMatch(t, "a", "b")

	h.answer(t, m, "a", wrong)
	h.clock.Advance(29 * time.Second)
	if m = h.flush(t, m.ID); m.Round.Resolved {
		t.Fatalf("resolved before the time limit")
	}
	h.clock.Advance(time.Second)
	m = h.waitFor(t, m.ID, resolved)
	if !m.Round.ResolvedAt.Equal(t0.Add(30 * time.Second)) {
		t.Fatalf("expected timeout resolution at 30s, got %+v", m.Round)
	}

	if _, _, err := h.coord.SubmitAnswer(ctx, m.ID, "b", m.Round.QuestionID, right); !errors.Is(err, domain.ErrInvalidRoundSubmission) {
		t.Fatalf("expected late answer to be rejected, got %v", err)
	}
	m = h.next(t, m, "a")
	m = h.next(t, m, "b")
	if m.CurrentQuestionIndex != 1 || m.Round.Resolved {
		t.Fatalf("expected fresh round 1, got idx=%d %+v", m.CurrentQuestionIndex, m.Round)
	}
}

func TestCoordinatorForfeitsAbsentPlayer(t *testing.T) {
	h := newHarness(t, app.CoordinatorConfig{
		TotalQuestions:    4,
		QuestionTimeLimit: 30 * time.Second,
		AdvanceGrace:      15 * time.Second,
		MaxMissedRounds:   2,
	})
	m := h.activeMatch(t, "a", "b")

	for round := 0; round < 2; round++ {
		_, m = h.answer(t, m, "a", right)
		h.clock.Advance(30 * time.Second)
		m = h.waitFor(t, m.ID, resolved)
		m = h.next(t, m, "a")
		h.clock.Advance(15 * time.Second)
		want := round + 1
		m = h.waitFor(t, m.ID, func(m domain.Match) bool { return m.CurrentQuestionIndex == want })
	}
	if b := m.Participant("b"); !b.Left || b.MissedRounds != 2 {
		t.Fatalf("expected b forfeited after two missed rounds, got %+v", b)
	}

	for m.Status == domain.MatchActive {
		_, m = h.answer(t, m, "a", right)
		m = h.next(t, m, "a")
	}
	if m.WinnerID != "a" || m.Scores()["a"] != 4 {
		t.Fatalf("expected a to win 4-0, got winner=%q %v", m.WinnerID, m.Scores())
	}
}

func TestCoordinatorLeaveDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.CoordinatorConfig{TotalQuestions: 2})
	m := h.activeMatch(t, "a", "b")

	if _, err := h.coord.Leave(ctx, m.ID, "b"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	_, m = h.answer(t, m, "a", right)
	if !m.Round.Resolved {
		t.Fatalf("expected the only active player's answer to resolve the round")
	}
	m = h.next(t, m, "a")
	if m.CurrentQuestionIndex != 1 {
		t.Fatalf("expected advance with one active participant, got %d", m.CurrentQuestionIndex)
	}
	if _, _, err := h.coord.SubmitAnswer(ctx, m.ID, "b", m.Round.QuestionID, right); !errors.Is(err, domain.ErrParticipantInactive) {
		t.Fatalf("expected inactive participant error, got %v", err)
	}
}

func TestCoordinatorTieIsDraw(t *testing.T) {
	h := newHarness(t, app.CoordinatorConfig{TotalQuestions: 2})
	m := h.activeMatch(t, "a", "b")

	_, m = h.answer(t, m, "a", right)
	_, m = h.answer(t, m, "b", wrong)
	m = h.next(t, m, "a")
	m = h.next(t, m, "b")
	_, m = h.answer(t, m, "b", right)
	_, m = h.answer(t, m, "a", wrong)
	m = h.next(t, m, "a")
	m = h.next(t, m, "b")

	if m.Status != domain.MatchCompleted || !m.Draw || m.WinnerID != "" {
		t.Fatalf("expected draw, got status=%s draw=%v winner=%q", m.Status, m.Draw, m.WinnerID)
	}
	stats, err := h.stats.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Draws != 1 || stats.Wins != 0 || stats.Losses != 0 || stats.RankPoints != 0 {
		t.Fatalf("unexpected draw stats %+v", stats)
	}
}

func TestCoordinatorJoinOpenFillsExistingLobby(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.CoordinatorConfig{})

	lobby, err := h.coord.JoinOpen(ctx, fundamentals, 2, app.Seat{PlayerID: "host", Name: "Host"})
	if err != nil {
		t.Fatalf("join open host: %v", err)
	}
	if lobby.Status != domain.MatchWaiting || !lobby.Participant("host").Ready {
		t.Fatalf("expected waiting lobby with ready host, got %+v", lobby)
	}
	if _, ok, _ := h.coord.FindOpen(ctx, domain.PoolKey{Course: "Pharmacology", Unit: "U1", Career: "CNA"}, 2); ok {
		t.Fatalf("lobby leaked into another pool")
	}

	joined, err := h.coord.JoinOpen(ctx, fundamentals, 2, app.Seat{PlayerID: "guest", Name: "Guest"})
	if err != nil {
		t.Fatalf("join open guest: %v", err)
	}
	if joined.ID != lobby.ID || joined.Status != domain.MatchActive {
		t.Fatalf("expected guest in host lobby and match started, got %s %s", joined.ID, joined.Status)
	}
	if _, ok, _ := h.coord.FindOpen(ctx, fundamentals, 2); ok {
		t.Fatalf("started match still listed as open")
	}
}

func TestCoordinatorSubscribePushesSnapshots(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.CoordinatorConfig{})
	m := h.activeMatch(t, "a", "b")

	ch, cancel, err := h.coord.Subscribe(ctx, m.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-ch // current snapshot

	h.answer(t, m, "a", right)
	select {
	case update := <-ch:
		if update.Round.ScorerID != "a" {
			t.Fatalf("expected scorer a in pushed snapshot, got %+v", update.Round)
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot pushed")
	}
}

func TestCoordinatorRehydratesFromStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.CoordinatorConfig{})
	m, err := h.coord.Create(ctx, app.MatchRequest{Course: fundamentals.Course, Unit: fundamentals.Unit, Career: fundamentals.Career,
		Seats: []app.Seat{{PlayerID: "a"}, {PlayerID: "b"}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	other := app.NewCoordinator(h.store, h.bank, h.stats, app.CoordinatorConfig{}, app.WithClock(h.clock))
	defer other.Close()
	if _, err := other.SetReady(ctx, m.ID, "a", true); err != nil {
		t.Fatalf("ready a: %v", err)
	}
	started, err := h.coord.SetReady(ctx, m.ID, "b", true)
	if err != nil {
		t.Fatalf("ready b: %v", err)
	}
	if started.Status != domain.MatchActive {
		t.Fatalf("expected readiness from both processes to start the match, got %s", started.Status)
	}
}

func TestCoordinatorReapsCompletedMatches(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.CoordinatorConfig{TotalQuestions: 1})
	m, err := h.coord.Create(ctx, app.MatchRequest{Course: fundamentals.Course, Unit: fundamentals.Unit, Career: fundamentals.Career,
		TargetPlayers: 1, Seats: []app.Seat{{PlayerID: "solo", Ready: true}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.Status != domain.MatchActive {
		t.Fatalf("expected solo match to start at creation, got %s", m.Status)
	}
	_, m = h.answer(t, m, "solo", right)
	m = h.next(t, m, "solo")
	if m.Status != domain.MatchCompleted {
		t.Fatalf("expected completed, got %s", m.Status)
	}

	if n := h.coord.Reap(ctx, h.clock.Now().Add(-time.Minute)); n != 0 {
		t.Fatalf("reaped a fresh match")
	}
	h.clock.Advance(10 * time.Minute)
	if n := h.coord.Reap(ctx, h.clock.Now().Add(-5*time.Minute)); n != 1 {
		t.Fatalf("expected one reaped match, got %d", n)
	}
	if _, err := h.coord.Get(ctx, m.ID); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected reaped match to be gone, got %v", err)
	}
	if h.coord.Live() != 0 {
		t.Fatalf("expected no live actors, got %d", h.coord.Live())
	}
}

func TestCoordinatorClosedRejectsCommands(t *testing.T) {
	h := newHarness(t, app.CoordinatorConfig{})
	m := h.activeMatch(t, "a", "b")
	h.coord.Close()
	if _, err := h.coord.PressNext(context.Background(), m.ID, "a"); !errors.Is(err, domain.ErrCoordinatorClosed) {
		t.Fatalf("expected closed coordinator, got %v", err)
	}
}
