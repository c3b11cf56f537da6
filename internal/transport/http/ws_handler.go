package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

type WSHandler struct {
	coordinator *app.Coordinator
	upgrader    websocket.Upgrader
}

func NewWSHandler(coordinator *app.Coordinator) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Option     int    `json:"option"`
}

type readyPayload struct {
	Ready *bool `json:"ready"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS streams match snapshots to a participant and accepts ready, answer, next and
// leave intents. A player who is not yet seated joins when a name is given.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchId"]
	playerID := r.URL.Query().Get("playerId")
	name := r.URL.Query().Get("name")
	if matchID == "" || playerID == "" {
		http.Error(w, "missing matchId or playerId", http.StatusBadRequest)
		return
	}

	m, err := h.coordinator.Get(r.Context(), matchID)
	if err != nil {
		writeError(w, err)
		return
	}
	if m.Participant(playerID) == nil {
		if name == "" {
			writeError(w, domain.ErrParticipantNotFound)
			return
		}
		if _, err := h.coordinator.Join(r.Context(), matchID, playerID, name); err != nil {
			writeError(w, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.coordinator.Subscribe(r.Context(), matchID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "match", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}
	fail := func(err error) {
		reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		ctx := r.Context()
		switch inbound.Type {
		case "ready":
			var payload readyPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					fail(errBadRequest)
					continue
				}
			}
			ready := payload.Ready == nil || *payload.Ready
			if _, err := h.coordinator.SetReady(ctx, matchID, playerID, ready); err != nil {
				fail(err)
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				fail(errBadRequest)
				continue
			}
			outcome, _, err := h.coordinator.SubmitAnswer(ctx, matchID, playerID, payload.QuestionID, payload.Option)
			if err != nil {
				fail(err)
				continue
			}
			reply(outboundMessage[any]{Type: "answerResult", Payload: outcome})
		case "next":
			if _, err := h.coordinator.PressNext(ctx, matchID, playerID); err != nil {
				fail(err)
			}
		case "leave":
			if _, err := h.coordinator.Leave(ctx, matchID, playerID); err != nil {
				fail(err)
			}
		default:
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
