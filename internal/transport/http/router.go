package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

// Services holds the use cases exposed over HTTP.
type Services struct {
	Queue       *app.MatchmakingQueue
	Coordinator *app.Coordinator
	Stats       *app.StatsService
}

// NewRouter wires the REST endpoints and the match websocket.
func NewRouter(s Services) http.Handler {
	r := mux.NewRouter()

	queue := &queueHandler{queue: s.Queue}
	matches := &matchHandler{coordinator: s.Coordinator}
	players := &playerHandler{stats: s.Stats}
	ws := NewWSHandler(s.Coordinator)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/queue", queue.Join).Methods(http.MethodPost)
	r.HandleFunc("/queue/{ticketId}", queue.Get).Methods(http.MethodGet)
	r.HandleFunc("/queue/{ticketId}", queue.Leave).Methods(http.MethodDelete)
	r.HandleFunc("/queue/{ticketId}/match", queue.FindMatch).Methods(http.MethodPost)
	r.HandleFunc("/queue/{ticketId}/wait", queue.Wait).Methods(http.MethodGet)

	r.HandleFunc("/matches", matches.Create).Methods(http.MethodPost)
	r.HandleFunc("/matches/open", matches.JoinOpen).Methods(http.MethodPost)
	r.HandleFunc("/matches/{matchId}", matches.Get).Methods(http.MethodGet)
	r.HandleFunc("/matches/{matchId}/join", matches.Join).Methods(http.MethodPost)
	r.HandleFunc("/matches/{matchId}/ready", matches.Ready).Methods(http.MethodPost)
	r.HandleFunc("/matches/{matchId}/answer", matches.Answer).Methods(http.MethodPost)
	r.HandleFunc("/matches/{matchId}/next", matches.Next).Methods(http.MethodPost)
	r.HandleFunc("/matches/{matchId}/leave", matches.Leave).Methods(http.MethodPost)

	r.HandleFunc("/players/{playerId}/stats", players.Stats).Methods(http.MethodGet)
	r.HandleFunc("/players/{playerId}/matches", players.History).Methods(http.MethodGet)

	r.HandleFunc("/ws/matches/{matchId}", ws.ServeWS).Methods(http.MethodGet)
	return r
}

type errorResponse struct {
	Error  string         `json:"error"`
	Ticket *domain.Ticket `json:"ticket,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

var errBadRequest = errors.New("invalid request body")

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMatchUnavailable), errors.Is(err, domain.ErrCoordinatorClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidTicket),
		errors.Is(err, domain.ErrInvalidPlayer),
		errors.Is(err, domain.ErrInvalidRoundSubmission),
		errors.Is(err, domain.ErrOptionNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTicketNotFound),
		errors.Is(err, domain.ErrMatchNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrStatsNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMatchFull),
		errors.Is(err, domain.ErrMatchNotWaiting),
		errors.Is(err, domain.ErrStaleTicket),
		errors.Is(err, domain.ErrParticipantInactive),
		errors.Is(err, domain.ErrRoundResolved),
		errors.Is(err, domain.ErrRoundNotResolved),
		errors.Is(err, domain.ErrStaleRound),
		errors.Is(err, domain.ErrDuplicateSubmission),
		errors.Is(err, domain.ErrConcurrentMutation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotEnoughQuestions):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
