package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"program-chat-service/internal/entitlements"
	"program-chat-service/internal/errkind"
	"program-chat-service/internal/feed"
	"program-chat-service/internal/middleware"
	"program-chat-service/internal/models"
	"program-chat-service/internal/observability"
	"program-chat-service/internal/repositories"
	"program-chat-service/internal/telemetry"
	"program-chat-service/internal/ws"
)

// Options carry the feed tuning shared by message listing and the assembled
// feed view.
type Options struct {
	LiveTailLimit int
	PageSize      int
}

// ChatHandler manages chat endpoints.
type ChatHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	gate        entitlements.Gate
	hub         *ws.Hub
	resolver    feed.URLResolver
	previews    feed.PreviewFetcher
	audit       *telemetry.AuditEmitter
	opts        Options
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, gate entitlements.Gate, hub *ws.Hub, resolver feed.URLResolver, previews feed.PreviewFetcher, audit *telemetry.AuditEmitter, opts Options) *ChatHandler {
	if opts.LiveTailLimit <= 0 {
		opts.LiveTailLimit = 50
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 30
	}
	return &ChatHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		gate:        gate,
		hub:         hub,
		resolver:    resolver,
		previews:    previews,
		audit:       audit,
		opts:        opts,
	}
}

// ListChats returns the chats the authenticated user is a member of.
func (h *ChatHandler) ListChats(c *gin.Context) {
	email := c.GetString(middleware.UserEmailKey)

	chats, err := h.chatRepo.ListChatsForUser(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// CreateChat opens a program conversation. The purchase gate decides whether
// the requester may chat about this program at all; the member list is fixed
// at creation.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		Users        []string `json:"users" binding:"required"`
		ProgramID    string   `json:"program_id" binding:"required"`
		ProgramTitle string   `json:"program_title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := c.GetString(middleware.UserEmailKey)

	allowed, err := h.gate.MayAccess(c.Request.Context(), email, req.ProgramID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to check entitlement"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "program not purchased"})
		return
	}

	members := append([]string{email}, req.Users...)
	chat, err := h.chatRepo.CreateChat(c.Request.Context(), members, req.ProgramID, req.ProgramTitle)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	h.audit.Emit(c.Request.Context(), "chat_create", req.ProgramID, requestIDFromContext(c), email, chat.ID)
	c.JSON(http.StatusCreated, chat)
}

// GetChatMessages returns a window of the chat's log. Without a boundary it
// is the live tail; with ?before=<message id> it pages backward from that
// fixed point, which stays safe against concurrent appends at the live end.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chat, _, ok := h.requireMembership(c)
	if !ok {
		return
	}

	var msgs []models.Message
	var err error
	if beforeID, hasBefore := parseBefore(c); hasBefore {
		msgs, err = h.messageRepo.LoadOlder(c.Request.Context(), chat.ID, beforeID, parseLimit(c, h.opts.PageSize))
	} else {
		msgs, err = h.messageRepo.LiveTail(c.Request.Context(), chat.ID, parseLimit(c, h.opts.LiveTailLimit))
	}
	if err != nil {
		// A boundary id outside this chat is a bad request target, not
		// exhausted history.
		if errors.Is(err, errkind.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown pagination boundary"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "exhausted": len(msgs) == 0})
}

// GetChatFeed returns the assembled viewer feed: the merged window grouped by
// calendar day, sender side classified, media resolved to viewable URLs and
// link previews attached where available.
func (h *ChatHandler) GetChatFeed(c *gin.Context) {
	chat, email, ok := h.requireMembership(c)
	if !ok {
		return
	}

	// Subscribe before loading so appends racing the tail query still land
	// in the assembled window.
	sub := h.hub.Subscribe(chat.ID)
	defer sub.Cancel()

	controller := feed.NewController(chat, email, h.messageRepo, h, h.resolver, h.previews, feed.Options{
		LiveTailLimit: h.opts.LiveTailLimit,
		PageSize:      h.opts.PageSize,
	})
	if err := controller.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load feed"})
		return
	}
	for _, msg := range sub.Drain() {
		controller.ApplyLive(msg)
	}

	c.JSON(http.StatusOK, gin.H{
		"sections":  controller.DaySections(c.Request.Context()),
		"exhausted": controller.Exhausted(),
	})
}

// PostChatMessage appends one message and broadcasts it to live viewers.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	chat, email, ok := h.requireMembership(c)
	if !ok {
		return
	}

	var req struct {
		Text  string        `json:"text"`
		Link  string        `json:"link"`
		Media *models.Media `json:"media"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload := models.Payload{Link: req.Link, Media: req.Media}
	if req.Text != "" && req.Link == "" && req.Media == nil {
		// Composer input: a bare URL typed into the text box becomes a link.
		payload = models.ClassifyText(req.Text)
	} else {
		payload.Text = req.Text
	}

	msg, err := h.Send(c.Request.Context(), chat.ID, email, payload)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "message_send", payloadKind(payload), requestIDFromContext(c), email, chat.ID)
	c.JSON(http.StatusCreated, msg)
}

// Send appends a validated payload, refreshes the chat preview and fans the
// new message out to live viewers. It backs both the HTTP handler and the
// feed controller's composer.
func (h *ChatHandler) Send(ctx context.Context, chatID, senderEmail string, payload models.Payload) (models.Message, error) {
	msg, err := h.messageRepo.Append(ctx, chatID, senderEmail, payload)
	if err != nil {
		return models.Message{}, err
	}

	// Preview maintenance is best-effort; the message is already stored.
	_ = h.chatRepo.TouchLastMessage(ctx, chatID, payload.Preview())
	observability.IncMessageAppended(payloadKind(payload))

	h.hub.BroadcastMessage(chatID, msg)
	return msg, nil
}

func (h *ChatHandler) requireMembership(c *gin.Context) (models.Chat, string, bool) {
	chatID := c.Param("chat_id")
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return models.Chat{}, "", false
	}

	email := c.GetString(middleware.UserEmailKey)
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return models.Chat{}, "", false
	}
	if !chat.HasMember(email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return models.Chat{}, "", false
	}
	return chat, email, true
}

func payloadKind(p models.Payload) string {
	switch {
	case p.Link != "":
		return "link"
	case p.Media != nil:
		return p.Media.Type
	default:
		return "text"
	}
}

// respondError maps the failure taxonomy onto distinct user-visible causes:
// permission problems name the membership rule, validation problems name the
// payload, transient problems get a generic retry prompt.
func respondError(c *gin.Context, err error) {
	status := errkind.HTTPStatus(err)
	msg := "request failed, please retry"
	switch status {
	case http.StatusForbidden:
		msg = "not allowed: you are not a member of this chat"
	case http.StatusBadRequest:
		msg = "invalid message payload"
	case http.StatusNotFound:
		msg = "not found"
	}
	c.JSON(status, gin.H{"error": msg})
}
