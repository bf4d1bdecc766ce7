package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/examguard/examguard-backend/internal/bus"
	"github.com/examguard/examguard-backend/internal/config"
	"github.com/examguard/examguard-backend/internal/middleware"
	"github.com/examguard/examguard-backend/internal/model"
	"github.com/examguard/examguard-backend/internal/service"
	ws "github.com/examguard/examguard-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the live proctoring chat socket.
type WSHandler struct {
	bus      *bus.Bus
	proctor  *service.ProctorService
	attempts *service.AttemptService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(b *bus.Bus, proctor *service.ProctorService, attempts *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		bus:      b,
		proctor:  proctor,
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptChatStream godoc
// WS /ws/v1/attempts/:attempt_id/chat?token=...
// Upgrades to WebSocket for live two-way proctoring chat. Incoming
// messages go through the same block check as the HTTP send path;
// outgoing messages fan out over the attempt's pubsub channel, so a
// student tab and a proctor dashboard see the same stream.
func (h *WSHandler) AttemptChatStream(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	// Visibility check before upgrading; the service enforces owner-or-staff.
	if _, err := h.attempts.Get(c.Request.Context(), p, attemptID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "attempt not accessible"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", p.ID).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("Chat participant connected")

	// All writes go through one serialized writer; the pubsub fan-out
	// and the read loop's replies would otherwise race on the socket.
	writer := ws.NewWriter(conn)

	reqCtx := c.Request.Context()
	pubsub := h.bus.Subscribe(reqCtx, config.CacheKey.AttemptChatChannel(attemptID.String()))
	defer pubsub.Close()

	// Fan incoming pubsub traffic out to this socket.
	go func() {
		for redisMsg := range pubsub.Channel() {
			h.forward(writer, []byte(redisMsg.Payload))
		}
	}()

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionSend:
			if strings.TrimSpace(msg.Body) == "" {
				writer.WriteError("body is required")
				continue
			}
			if _, err := h.proctor.SendMessage(reqCtx, p, attemptID, msg.Body); err != nil {
				writer.WriteError(err.Error())
			}
		case ws.ActionPing:
			writer.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			writer.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

// forward translates one pubsub payload into a typed socket event.
// Chat messages and block notifications share the channel.
func (h *WSHandler) forward(writer *ws.Writer, payload []byte) {
	var blocked struct {
		Type    string `json:"type"`
		Blocked bool   `json:"blocked"`
	}
	if err := json.Unmarshal(payload, &blocked); err == nil && blocked.Type == "chat_blocked" {
		writer.WriteTyped(ws.ChatBlockedResponse{Event: ws.EventChatBlocked, Blocked: blocked.Blocked})
		return
	}

	var msg model.ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.log.Warn().Err(err).Msg("Dropping malformed pubsub payload")
		return
	}
	writer.WriteTyped(ws.MessageResponse{Event: ws.EventMessage, Message: &msg})
}
