package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"program-chat-service/internal/auth"
	"program-chat-service/internal/entitlements"
	"program-chat-service/internal/models"
	"program-chat-service/internal/observability"
	"program-chat-service/internal/repositories"
)

// ChatWebSocketHandler upgrades live-tail connections. A new client gets the
// current tail window as one snapshot event, then appended messages as they
// arrive.
type ChatWebSocketHandler struct {
	hub           *Hub
	chatRepo      repositories.ChatRepository
	messageRepo   repositories.MessageRepository
	verifier      auth.Verifier
	gate          entitlements.Gate
	liveTailLimit int
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, verifier auth.Verifier, gate entitlements.Gate, liveTailLimit int) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		hub:           hub,
		chatRepo:      chatRepo,
		messageRepo:   messageRepo,
		verifier:      verifier,
		gate:          gate,
		liveTailLimit: liveTailLimit,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle validates identity and membership, upgrades the connection and
// registers the client.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	chatID := c.Param("chat_id")
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	ctx, span := otel.Tracer("program-chat-service/ws").Start(c.Request.Context(), "ws.handshake", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	email, err := h.validateToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for chat"})
		return
	}
	if !chat.HasMember(email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for chat"})
		return
	}
	allowed, err := h.gate.MayAccess(c.Request.Context(), email, chat.ProgramID)
	if err != nil || !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for chat"})
		return
	}

	// Buffer broadcasts while the tail loads; PromoteSubscription later swaps
	// the buffer for the live connection atomically, so a message appended
	// between the tail query and registration is never lost.
	sub := h.hub.Subscribe(chatID)
	defer sub.Cancel()

	tail, err := h.messageRepo.LiveTail(c.Request.Context(), chatID, h.liveTailLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		Email:       email,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	if err := conn.WriteJSON(models.ChatEvent{Type: "snapshot", Messages: tail}); err != nil {
		conn.Close()
		return
	}

	seen := make(map[int64]struct{}, len(tail))
	for _, msg := range tail {
		seen[msg.ID] = struct{}{}
	}

	h.hub.PromoteSubscription(sub, conn, info)
	for _, msg := range sub.Drain() {
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		if err := conn.WriteJSON(models.ChatEvent{Type: "message", Message: &msg}); err != nil {
			h.hub.RemoveChatClient(chatID, conn)
			conn.Close()
			return
		}
	}
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	observability.PublishWSEvent(ctx, chatID, info.ConnID, email, "ws_connect", "")

	// Keep connection alive and clean up on close.
	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveChatClient(chatID, conn)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			observability.PublishWSEvent(ctx, chatID, info.ConnID, email, "ws_disconnect", closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
					observability.PublishWSEvent(ctx, chatID, info.ConnID, email, "ws_error", closeReason)
				}
				return
			}
		}
	}()
}

func (h *ChatWebSocketHandler) validateToken(ctx context.Context, header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return h.verifier.VerifyToken(ctx, parts[1])
	}
	return "", fmt.Errorf("invalid token")
}
