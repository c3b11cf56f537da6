package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

// longPollLimit caps how long GET /queue/{id}/wait holds a request.
const longPollLimit = 2 * time.Minute

type queueHandler struct {
	queue *app.MatchmakingQueue
}

type joinQueueRequest struct {
	PlayerID            string `json:"playerId"`
	PlayerName          string `json:"playerName"`
	Course              string `json:"course"`
	Unit                string `json:"unit"`
	Career              string `json:"career"`
	PreferredDifficulty int    `json:"preferredDifficulty"`
}

func (h *queueHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinQueueRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ticket, err := h.queue.Join(r.Context(), domain.Ticket{
		PlayerID:            req.PlayerID,
		PlayerName:          req.PlayerName,
		Course:              req.Course,
		Unit:                req.Unit,
		Career:              req.Career,
		PreferredDifficulty: req.PreferredDifficulty,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *queueHandler) Get(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.queue.Ticket(r.Context(), mux.Vars(r)["ticketId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *queueHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Leave(r.Context(), mux.Vars(r)["ticketId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *queueHandler) FindMatch(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.queue.FindMatch(r.Context(), mux.Vars(r)["ticketId"], 0)
	h.respond(w, ticket, err)
}

func (h *queueHandler) Wait(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), longPollLimit)
	defer cancel()
	ticket, err := h.queue.Await(ctx, mux.Vars(r)["ticketId"], 0)
	if errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	h.respond(w, ticket, err)
}

func (h *queueHandler) respond(w http.ResponseWriter, ticket domain.Ticket, err error) {
	if errors.Is(err, domain.ErrStaleTicket) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Ticket: &ticket})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

type matchHandler struct {
	coordinator *app.Coordinator
}

type lobbyRequest struct {
	Course        string `json:"course"`
	Unit          string `json:"unit"`
	Career        string `json:"career"`
	TargetPlayers int    `json:"targetPlayers"`
	PlayerID      string `json:"playerId"`
	PlayerName    string `json:"playerName"`
}

func (req lobbyRequest) pool() domain.PoolKey {
	return domain.PoolKey{Course: req.Course, Unit: req.Unit, Career: req.Career}
}

type playerRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Ready      *bool  `json:"ready,omitempty"`
}

type answerRequest struct {
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
	Option     int    `json:"option"`
}

type answerResponse struct {
	Outcome domain.AnswerOutcome `json:"outcome"`
	Match   domain.Match         `json:"match"`
}

func (h *matchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req lobbyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var seats []app.Seat
	if req.PlayerID != "" {
		seats = append(seats, app.Seat{PlayerID: req.PlayerID, Name: req.PlayerName, Ready: true})
	}
	m, err := h.coordinator.Create(r.Context(), app.MatchRequest{
		Course:        req.Course,
		Unit:          req.Unit,
		Career:        req.Career,
		TargetPlayers: req.TargetPlayers,
		Seats:         seats,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *matchHandler) JoinOpen(w http.ResponseWriter, r *http.Request) {
	var req lobbyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PlayerID == "" {
		writeError(w, errBadRequest)
		return
	}
	m, err := h.coordinator.JoinOpen(r.Context(), req.pool(), req.TargetPlayers,
		app.Seat{PlayerID: req.PlayerID, Name: req.PlayerName})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *matchHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.coordinator.Get(r.Context(), mux.Vars(r)["matchId"])
	h.respond(w, m, err)
}

func (h *matchHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PlayerID == "" {
		writeError(w, errBadRequest)
		return
	}
	m, err := h.coordinator.Join(r.Context(), mux.Vars(r)["matchId"], req.PlayerID, req.PlayerName)
	h.respond(w, m, err)
}

func (h *matchHandler) Ready(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ready := true
	if req.Ready != nil {
		ready = *req.Ready
	}
	m, err := h.coordinator.SetReady(r.Context(), mux.Vars(r)["matchId"], req.PlayerID, ready)
	h.respond(w, m, err)
}

func (h *matchHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	outcome, m, err := h.coordinator.SubmitAnswer(r.Context(), mux.Vars(r)["matchId"], req.PlayerID, req.QuestionID, req.Option)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Outcome: outcome, Match: m})
}

func (h *matchHandler) Next(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := h.coordinator.PressNext(r.Context(), mux.Vars(r)["matchId"], req.PlayerID)
	h.respond(w, m, err)
}

func (h *matchHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := h.coordinator.Leave(r.Context(), mux.Vars(r)["matchId"], req.PlayerID)
	h.respond(w, m, err)
}

func (h *matchHandler) respond(w http.ResponseWriter, m domain.Match, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type playerHandler struct {
	stats *app.StatsService
}

func (h *playerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Get(r.Context(), mux.Vars(r)["playerId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *playerHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	matches, err := h.stats.History(r.Context(), mux.Vars(r)["playerId"], limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if matches == nil {
		matches = []domain.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}
