package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tournament-service/internal/app"
	"tournament-service/internal/domain"
)

// Connection roles. Auth and cookie handling live upstream; the role only
// decides which audiences a socket hears and which actions it may send.
const (
	rolePlayer     = "player"
	roleModerator  = "moderator"
	roleDashboard  = "dashboard"
	roleProjection = "projection"
)

type WSHandler struct {
	service  *app.TournamentService
	hub      *Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(service *app.TournamentService, hub *Hub, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	PlayerID    string `json:"userId"`
	DisplayName string `json:"name"`
	Avatar      string `json:"avatar"`
}

type submitAnswerPayload struct {
	QuestionUID     string `json:"questionUid"`
	Selection       []int  `json:"answerSelection"`
	ClientTimestamp int64  `json:"clientTimestamp"` // unix millis
}

type setQuestionPayload struct {
	Index     int     `json:"index"`
	TargetUID string  `json:"targetUid"`
	Duration  float64 `json:"duration"`
	QuizID    string  `json:"quizId"`
}

type setTimerPayload struct {
	TimeLeft    float64 `json:"timeLeft"`
	ForceActive bool    `json:"forceActive"`
}

type pausePayload struct {
	RemainingTime *float64 `json:"remainingTimeOverride"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// tournament engine. Players and moderators attach to a session code;
// dashboards and projections attach to a quiz id.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	quizID := r.URL.Query().Get("quizId")
	role := r.URL.Query().Get("role")
	if role == "" {
		role = rolePlayer
	}

	switch role {
	case rolePlayer, roleModerator:
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
	case roleDashboard, roleProjection:
		if quizID == "" {
			http.Error(w, "missing quizId", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	events := h.hub.Register(connID)
	defer h.hub.Unregister(connID)

	switch role {
	case rolePlayer, roleModerator:
		h.hub.Subscribe(connID, scopeSession, code)
	case roleDashboard:
		h.hub.Subscribe(connID, scopeDashboard, quizID)
	case roleProjection:
		h.hub.Subscribe(connID, scopeProjection, quizID)
	}

	// The ack doubles as a subscription barrier: once a client reads it, every
	// later broadcast is guaranteed to reach this socket.
	switch role {
	case rolePlayer:
		playerID := r.URL.Query().Get("userId")
		name := r.URL.Query().Get("name")
		if playerID == "" || name == "" {
			_ = conn.WriteJSON(domain.Event{Type: "error", Payload: errorPayload{Message: "missing userId or name"}})
			return
		}
		joined, err := h.service.Join(r.Context(), code, connID, playerID, name, r.URL.Query().Get("avatar"))
		if err != nil {
			_ = conn.WriteJSON(domain.Event{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		defer h.service.Leave(context.Background(), code, connID)
		h.hub.ToConnection(connID, domain.Event{Type: "joined", Payload: joined})
	default:
		h.hub.ToConnection(connID, domain.Event{Type: "ready", Payload: nil})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for event := range events {
			if err := conn.WriteJSON(event); err != nil {
				h.log.Debug().Err(err).Str("conn", connID).Msg("ws write error")
				return
			}
		}
	}()

	h.readLoop(r.Context(), conn, connID, code, role)
	// Unregister closes the event channel so the writer goroutine exits;
	// the deferred call above then no-ops.
	h.hub.Unregister(connID)
	<-writerDone
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, connID, code, role string) {
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		switch inbound.Type {
		case "join":
			// Re-join on an open socket refreshes identity (display name or
			// avatar change) without a reconnect.
			var payload joinPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.PlayerID == "" || payload.DisplayName == "" {
				h.hub.ToConnection(connID, domain.Event{Type: "error", Payload: errorPayload{Message: "invalid join payload"}})
				continue
			}
			joined, err := h.service.Join(ctx, code, connID, payload.PlayerID, payload.DisplayName, payload.Avatar)
			if err != nil {
				h.hub.ToConnection(connID, domain.Event{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			h.hub.ToConnection(connID, domain.Event{Type: "joined", Payload: joined})

		case "submit_answer":
			var payload submitAnswerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.hub.ToConnection(connID, domain.Event{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			h.service.SubmitAnswer(ctx, code, connID, domain.AnswerSubmission{
				QuestionUID: payload.QuestionUID,
				Selection:   payload.Selection,
				ClientTime:  time.UnixMilli(payload.ClientTimestamp),
			})

		case "set_question":
			if !h.requireModerator(connID, role) {
				continue
			}
			var payload setQuestionPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.hub.ToConnection(connID, domain.Event{Type: "error", Payload: errorPayload{Message: "invalid set_question payload"}})
				continue
			}
			if err := h.service.SetQuestion(ctx, code, app.SetQuestionRequest{
				Index:            payload.Index,
				TargetUID:        payload.TargetUID,
				DurationOverride: payload.Duration,
				LinkedQuizID:     payload.QuizID,
			}); err != nil {
				h.hub.ToConnection(connID, domain.Event{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}

		case "set_timer":
			if !h.requireModerator(connID, role) {
				continue
			}
			var payload setTimerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.hub.ToConnection(connID, domain.Event{Type: "error", Payload: errorPayload{Message: "invalid set_timer payload"}})
				continue
			}
			if err := h.service.SetTimer(ctx, code, payload.TimeLeft, payload.ForceActive); err != nil {
				h.hub.ToConnection(connID, domain.Event{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}

		case "pause":
			if !h.requireModerator(connID, role) {
				continue
			}
			var payload pausePayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					h.hub.ToConnection(connID, domain.Event{Type: "error", Payload: errorPayload{Message: "invalid pause payload"}})
					continue
				}
			}
			if err := h.service.Pause(ctx, code, payload.RemainingTime); err != nil {
				h.hub.ToConnection(connID, domain.Event{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}

		case "force_end":
			if !h.requireModerator(connID, role) {
				continue
			}
			h.service.ForceEnd(ctx, code)

		default:
			h.hub.ToConnection(connID, domain.Event{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}
}

func (h *WSHandler) requireModerator(connID, role string) bool {
	if role == roleModerator {
		return true
	}
	h.hub.ToConnection(connID, domain.Event{Type: "error", Payload: errorPayload{Message: "moderator action not allowed"}})
	return false
}
