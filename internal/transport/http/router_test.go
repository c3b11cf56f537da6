package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
	"nurseconnect-quiz-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	archive := memory.NewMatchArchive()
	stats := app.NewStatsService(memory.NewStatsRepository(), archive)
	bank := app.NewQuestionBank(memory.NewStaticQuestionSource(sampleQuestions(3)))
	coord := app.NewCoordinator(memory.NewMatchStore(), bank, stats,
		app.CoordinatorConfig{TotalQuestions: 3, QuestionTimeLimit: time.Minute}, app.WithArchive(archive))
	queue := app.NewMatchmakingQueue(memory.NewTicketStore(), coord, app.QueueConfig{})

	server := httptest.NewServer(NewRouter(Services{Queue: queue, Coordinator: coord, Stats: stats}))
	t.Cleanup(func() {
		server.Close()
		coord.Close()
	})
	return server
}

func sampleQuestions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			ID:                 fmt.Sprintf("pharm-%d", i),
			Prompt:             "Which vital sign is checked before giving digoxin?",
			Options:            []string{"Blood pressure", "Apical pulse", "Temperature"},
			CorrectOptionIndex: 1,
			Course:             "Pharmacology",
			Unit:               "Cardiac",
			Career:             "LPN",
		}
	}
	return qs
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func queueBody(player string) map[string]any {
	return map[string]any{
		"playerId": player, "playerName": "Nurse " + player,
		"course": "Pharmacology", "unit": "Cardiac", "career": "LPN",
	}
}

func TestQueueToMatchOverREST(t *testing.T) {
	server := newTestServer(t)

	var a, b domain.Ticket
	if code := do(t, http.MethodPost, server.URL+"/queue", queueBody("a"), &a); code != http.StatusCreated {
		t.Fatalf("join a: %d", code)
	}
	if code := do(t, http.MethodPost, server.URL+"/queue", queueBody("b"), &b); code != http.StatusCreated {
		t.Fatalf("join b: %d", code)
	}
	if a.PreferredDifficulty != domain.DifficultyMedium {
		t.Fatalf("expected default difficulty, got %d", a.PreferredDifficulty)
	}

	var matched domain.Ticket
	if code := do(t, http.MethodPost, server.URL+"/queue/"+b.ID+"/match", nil, &matched); code != http.StatusOK {
		t.Fatalf("find match: %d", code)
	}
	if matched.Status != domain.TicketMatched || matched.MatchID == "" {
		t.Fatalf("expected matched ticket, got %+v", matched)
	}
	var partner domain.Ticket
	do(t, http.MethodGet, server.URL+"/queue/"+a.ID, nil, &partner)
	if partner.MatchID != matched.MatchID {
		t.Fatalf("partner in match %q, want %q", partner.MatchID, matched.MatchID)
	}

	matchURL := server.URL + "/matches/" + matched.MatchID
	var m domain.Match
	for _, p := range []string{"a", "b"} {
		if code := do(t, http.MethodPost, matchURL+"/ready", map[string]any{"playerId": p}, &m); code != http.StatusOK {
			t.Fatalf("ready %s: %d", p, code)
		}
	}
	if m.Status != domain.MatchActive {
		t.Fatalf("expected active match, got %s", m.Status)
	}

	var ans answerResponse
	code := do(t, http.MethodPost, matchURL+"/answer",
		map[string]any{"playerId": "a", "questionId": m.Round.QuestionID, "option": 1}, &ans)
	if code != http.StatusOK || !ans.Outcome.Scored || ans.Outcome.TotalScore != 1 {
		t.Fatalf("answer: %d %+v", code, ans.Outcome)
	}
	code = do(t, http.MethodPost, matchURL+"/answer",
		map[string]any{"playerId": "b", "questionId": "pharm-unknown", "option": 1}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown question, got %d", code)
	}

	if code := do(t, http.MethodPost, matchURL+"/leave", map[string]any{"playerId": "b"}, &m); code != http.StatusOK {
		t.Fatalf("leave: %d", code)
	}
	// a alone finishes the remaining rounds
	for i := 0; m.Status == domain.MatchActive; i++ {
		if i > 20 {
			t.Fatalf("match did not complete: %+v", m.Round)
		}
		if !m.Round.Resolved {
			do(t, http.MethodPost, matchURL+"/answer",
				map[string]any{"playerId": "a", "questionId": m.Round.QuestionID, "option": 1}, &ans)
			m = ans.Match
			continue
		}
		if code := do(t, http.MethodPost, matchURL+"/next", map[string]any{"playerId": "a"}, &m); code != http.StatusOK {
			t.Fatalf("next: %d", code)
		}
	}
	if m.Status != domain.MatchCompleted || m.WinnerID != "a" {
		t.Fatalf("expected a to win, got %s winner=%q", m.Status, m.WinnerID)
	}

	var stats domain.PlayerStats
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if do(t, http.MethodGet, server.URL+"/players/a/stats", nil, &stats) == http.StatusOK {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if stats.Wins != 1 || stats.RankPoints != domain.WinPoints {
		t.Fatalf("unexpected stats %+v", stats)
	}
	var history []domain.Match
	do(t, http.MethodGet, server.URL+"/players/b/matches", nil, &history)
	if len(history) != 1 || history[0].ID != matched.MatchID {
		t.Fatalf("expected archived match in b's history, got %d", len(history))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	server := newTestServer(t)

	bad := map[string]any{"playerId": "a", "course": "Pharmacology"}
	if code := do(t, http.MethodPost, server.URL+"/queue", bad, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid ticket, got %d", code)
	}
	if code := do(t, http.MethodGet, server.URL+"/matches/nope", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code := do(t, http.MethodDelete, server.URL+"/queue/nope", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown ticket, got %d", code)
	}
	if code := do(t, http.MethodGet, server.URL+"/players/ghost/stats", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown stats, got %d", code)
	}

	var lobby domain.Match
	body := map[string]any{"course": "Pharmacology", "unit": "Cardiac", "career": "LPN", "targetPlayers": 2, "playerId": "a"}
	if code := do(t, http.MethodPost, server.URL+"/matches", body, &lobby); code != http.StatusCreated {
		t.Fatalf("create lobby: %d", code)
	}
	join := func(p string) int {
		return do(t, http.MethodPost, server.URL+"/matches/"+lobby.ID+"/join", map[string]any{"playerId": p, "playerName": p}, nil)
	}
	if code := join(""); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a join without player id, got %d", code)
	}
	if code := join("b"); code != http.StatusOK {
		t.Fatalf("join b: %d", code)
	}
	if code := join("c"); code != http.StatusConflict {
		t.Fatalf("expected 409 for full lobby, got %d", code)
	}

	noQuestions := map[string]any{"course": "Surgery", "unit": "U1", "career": "RN", "playerId": "a"}
	if code := do(t, http.MethodPost, server.URL+"/matches", noQuestions, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without questions, got %d", code)
	}
}

func TestJoinOpenLobby(t *testing.T) {
	server := newTestServer(t)
	body := func(p string) map[string]any {
		return map[string]any{"course": "Pharmacology", "unit": "Cardiac", "career": "LPN", "targetPlayers": 3, "playerId": p}
	}
	var first, second domain.Match
	do(t, http.MethodPost, server.URL+"/matches/open", body("a"), &first)
	do(t, http.MethodPost, server.URL+"/matches/open", body("b"), &second)
	if first.ID == "" || first.ID != second.ID || len(second.Participants) != 2 {
		t.Fatalf("expected b to join a's lobby, got %q %q", first.ID, second.ID)
	}
}
