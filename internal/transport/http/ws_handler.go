package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	"challenge-service/internal/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Subscriber hands out broadcast group subscriptions. memory.Hub implements it.
type Subscriber interface {
	Subscribe(groups ...string) (<-chan domain.Envelope, func())
}

type WSHandler struct {
	service  *app.ChallengeService
	hub      Subscriber
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(service *app.ChallengeService, hub Subscriber, logger *zap.Logger, allowedOrigins []string) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		hub:     hub,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Choice     string `json:"choice"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS upgrades a participant's connection, subscribes it to the challenge
// and user groups and accepts ready and answer messages.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	challengeID := r.URL.Query().Get("challengeId")
	userID := r.URL.Query().Get("userId")
	if challengeID == "" || userID == "" {
		http.Error(w, "missing challengeId or userId", http.StatusBadRequest)
		return
	}

	view, err := h.service.Get(r.Context(), challengeID)
	if err != nil {
		http.Error(w, err.Error(), StatusFor(domain.KindOf(err)))
		return
	}
	if !view.Challenge.IsParticipant(userID) {
		http.Error(w, domain.ErrNotParticipant.Error(), http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	metrics.WebsocketConnections.Inc()
	defer metrics.WebsocketConnections.Dec()

	updates, cancel := h.hub.Subscribe(domain.ChallengeGroup(challengeID), domain.UserGroup(userID))
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.String("challenge_id", challengeID), zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		dedup := newUpdateDeduper()
		for {
			select {
			case env, ok := <-updates:
				if !ok {
					return
				}
				if dedup.seen(env) {
					continue
				}
				select {
				case send <- outboundMessage{Type: env.Type, Payload: env.Payload}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// emit gives up once the writer is gone so the read loop never blocks on a dead connection.
	emit := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}
	emit(outboundMessage{Type: domain.EventChallengeUpdate, Payload: view})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "ready":
			if _, err := h.service.Ready(r.Context(), challengeID, userID); err != nil {
				emit(errorMessage(err))
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
				emit(outboundMessage{Type: domain.EventError, Payload: domain.ErrorPayload{Detail: "invalid answer payload"}})
				continue
			}
			if _, err := h.service.SubmitAnswer(r.Context(), challengeID, userID, payload.QuestionID, payload.Choice); err != nil {
				emit(errorMessage(err))
			}
		default:
			emit(outboundMessage{Type: domain.EventError, Payload: domain.ErrorPayload{Detail: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// updateDeduper drops a challenge.update that already reached the socket
// through its other subscribed group.
type updateDeduper struct {
	last map[string][]byte
}

func newUpdateDeduper() *updateDeduper {
	return &updateDeduper{last: make(map[string][]byte)}
}

func (d *updateDeduper) seen(env domain.Envelope) bool {
	if env.Type != domain.EventChallengeUpdate {
		return false
	}
	body, err := json.Marshal(env.Payload)
	if err != nil {
		return false
	}
	for group, prev := range d.last {
		if group != env.Group && bytes.Equal(prev, body) {
			delete(d.last, group)
			return true
		}
	}
	d.last[env.Group] = body
	return false
}

func errorMessage(err error) outboundMessage {
	detail := err.Error()
	if domain.KindOf(err) == domain.KindInternal {
		detail = "internal error"
	}
	return outboundMessage{Type: domain.EventError, Payload: domain.ErrorPayload{Detail: detail}}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
