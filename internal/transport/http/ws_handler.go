package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// WSHandler speaks the session event protocol over one websocket per
// connection. A connection may act as a host or as a player; privileged
// events must carry the host token issued at session creation.
type WSHandler struct {
	service  *app.SessionService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type createSessionPayload struct {
	QuizID  string      `json:"quizId"`
	Mode    domain.Mode `json:"mode"`
	ScopeID string      `json:"scopeId"`
}

type joinPayload struct {
	PIN         string `json:"pin"`
	DisplayName string `json:"displayName"`
	StudentID   string `json:"studentId"` // persistent identity; empty selects the ephemeral path
}

type joinedPayload struct {
	PIN         string `json:"pin"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

type hostActionPayload struct {
	PIN       string `json:"pin"`
	HostToken string `json:"hostToken"`
	Duration  int    `json:"duration,omitempty"` // seconds, start-session only
}

type submitAnswerPayload struct {
	PIN           string `json:"pin"`
	QuestionIndex int    `json:"questionIndex"`
	OptionIndex   int    `json:"optionIndex"`
	Text          string `json:"text"`
}

type pinPayload struct {
	PIN string `json:"pin"`
}

type visibilityPayload struct {
	PIN     string `json:"pin"`
	Visible bool   `json:"visible"`
}

// connState is the per-connection protocol state. It is touched only from
// the read loop, so it needs no lock.
type connState struct {
	connID   string
	pin      string
	playerID string
	host     bool

	cancelSub func()
	pumpDone  chan struct{}
}

// ServeWS upgrades the request and runs the event loop for one connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	state := &connState{connID: uuid.NewString()}
	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Error("ws write error", "err", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, state, send, closeSignals, writerDone, inbound)
	}

	if state.pin != "" && state.playerID != "" && !state.host {
		h.service.Disconnect(state.pin, state.playerID)
	}
	close(closeSignals)
	h.detach(state)
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, state *connState, send chan outboundMessage[any], closeSignals, writerDead chan struct{}, inbound inboundMessage) {
	ctx := r.Context()
	switch inbound.Type {
	case "create-session":
		var payload createSessionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid create-session payload")
			return
		}
		created, err := h.service.CreateSession(ctx, payload.QuizID, payload.Mode, payload.ScopeID)
		if err != nil {
			send <- errMsg(err.Error())
			return
		}
		state.pin = created.PIN
		state.host = true
		h.attach(state, send, closeSignals, writerDead, created.PIN, true, "")
		send <- outboundMessage[any]{Type: "session-created", Payload: created}

	case "join":
		var payload joinPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid join payload")
			return
		}
		playerID := state.connID
		var err error
		if payload.StudentID != "" {
			playerID = payload.StudentID
			_, err = h.service.JoinPersistent(ctx, payload.PIN, playerID, payload.DisplayName)
		} else {
			_, err = h.service.JoinEphemeral(ctx, payload.PIN, playerID, payload.DisplayName)
		}
		if err != nil {
			send <- errMsg(err.Error())
			return
		}
		state.pin = payload.PIN
		state.playerID = playerID
		state.host = false
		h.attach(state, send, closeSignals, writerDead, payload.PIN, false, playerID)
		send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{
			PIN:         payload.PIN,
			PlayerID:    playerID,
			DisplayName: payload.DisplayName,
		}}
		// Late persistent joiners missed the start broadcast; replay the
		// current state so they get the question list immediately.
		if status, err := h.service.PlayerStatus(ctx, payload.PIN, playerID); err == nil && status.Status == domain.StatusActive {
			send <- outboundMessage[any]{Type: "player-status", Payload: status}
		}

	case "start-session":
		var payload hostActionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid start-session payload")
			return
		}
		duration := time.Duration(payload.Duration) * time.Second
		if err := h.service.Start(ctx, payload.PIN, payload.HostToken, duration); err != nil {
			send <- errMsg(err.Error())
		}

	case "advance-question":
		var payload hostActionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid advance-question payload")
			return
		}
		if err := h.service.Advance(ctx, payload.PIN, payload.HostToken); err != nil {
			send <- errMsg(err.Error())
		}

	case "end-session":
		var payload hostActionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid end-session payload")
			return
		}
		if err := h.service.EndEarly(ctx, payload.PIN, payload.HostToken); err != nil {
			send <- errMsg(err.Error())
		}

	case "submit-answer":
		var payload submitAnswerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid submit-answer payload")
			return
		}
		ack, err := h.service.SubmitAnswer(ctx, payload.PIN, state.playerID, domain.AnswerSubmission{
			QuestionIndex: payload.QuestionIndex,
			OptionIndex:   payload.OptionIndex,
			Text:          payload.Text,
		})
		if err != nil {
			send <- errMsg(err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "answer-received", Payload: ack}

	case "finish-attempt":
		var payload pinPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid finish-attempt payload")
			return
		}
		review, err := h.service.FinishAttempt(ctx, payload.PIN, state.playerID)
		if err != nil {
			send <- errMsg(err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "attempt-review", Payload: review}

	case "visibility":
		var payload visibilityPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid visibility payload")
			return
		}
		if err := h.service.ReportVisibility(ctx, payload.PIN, state.playerID, payload.Visible); err != nil {
			send <- errMsg(err.Error())
		}

	case "host-get-status":
		var payload hostActionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid host-get-status payload")
			return
		}
		status, err := h.service.HostStatus(ctx, payload.PIN, payload.HostToken)
		if err != nil {
			send <- errMsg(err.Error())
			return
		}
		state.pin = payload.PIN
		state.host = true
		h.attach(state, send, closeSignals, writerDead, payload.PIN, true, "")
		send <- outboundMessage[any]{Type: "host-status", Payload: status}

	case "player-get-status":
		var payload joinPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid player-get-status payload")
			return
		}
		playerID := state.playerID
		if payload.StudentID != "" {
			playerID = payload.StudentID
		}
		status, err := h.service.PlayerStatus(ctx, payload.PIN, playerID)
		if err != nil {
			send <- errMsg(err.Error())
			return
		}
		state.pin = payload.PIN
		state.playerID = playerID
		state.host = false
		h.attach(state, send, closeSignals, writerDead, payload.PIN, false, playerID)
		send <- outboundMessage[any]{Type: "player-status", Payload: status}

	default:
		send <- errMsg("unsupported message type")
	}
}

// attach re-subscribes the connection to a session's broadcast stream,
// dropping any previous subscription first. Resync therefore never
// duplicates events for the same connection. The pump also watches the
// writer's done channel: if the writer exits on a write error the pump
// must not block on a full send buffer, or detach would hang on it.
func (h *WSHandler) attach(state *connState, send chan outboundMessage[any], closeSignals, writerDead chan struct{}, pin string, host bool, playerID string) {
	h.detach(state)

	updates, cancel, err := h.service.Subscribe(context.Background(), pin, host, playerID)
	if err != nil {
		send <- errMsg(err.Error())
		return
	}
	state.cancelSub = cancel
	state.pumpDone = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		for {
			select {
			case event, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: event.Type, Payload: event.Payload}:
				case <-closeSignals:
					return
				case <-writerDead:
					return
				}
			case <-closeSignals:
				return
			case <-writerDead:
				return
			}
		}
	}(state.pumpDone)
}

func (h *WSHandler) detach(state *connState) {
	if state.cancelSub == nil {
		return
	}
	state.cancelSub()
	<-state.pumpDone
	state.cancelSub = nil
	state.pumpDone = nil
}

func errMsg(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}
