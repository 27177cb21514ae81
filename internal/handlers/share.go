package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"program-chat-service/internal/models"
	"program-chat-service/internal/observability"
	"program-chat-service/internal/share"
	"program-chat-service/internal/telemetry"
)

// ShareHandler ingests OS share payloads against a chat.
type ShareHandler struct {
	chats    *ChatHandler
	ingestor *share.Ingestor
	pending  *share.PendingShare
	audit    *telemetry.AuditEmitter
}

// NewShareHandler builds a ShareHandler.
func NewShareHandler(chats *ChatHandler, ingestor *share.Ingestor, pending *share.PendingShare, audit *telemetry.AuditEmitter) *ShareHandler {
	return &ShareHandler{chats: chats, ingestor: ingestor, pending: pending, audit: audit}
}

// ShareToChat normalizes a share payload into message appends. Sub-item
// failures are reported per item; appended siblings are never rolled back.
// Any share still pending from before the chat context existed is drained
// first.
func (h *ShareHandler) ShareToChat(c *gin.Context) {
	chat, email, ok := h.chats.requireMembership(c)
	if !ok {
		return
	}

	var item models.ShareItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var results []share.Result
	if buffered, had := h.pending.Take(); had {
		results = append(results, h.ingestor.Ingest(c.Request.Context(), chat, email, buffered)...)
	}
	results = append(results, h.ingestor.Ingest(c.Request.Context(), chat, email, item)...)

	for _, r := range results {
		if r.Err != "" {
			observability.IncShareItem("error")
		} else {
			observability.IncShareItem("ok")
		}
	}

	h.audit.Emit(c.Request.Context(), "share_ingest", item.MimeType, requestIDFromContext(c), email, chat.ID)
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"partial": share.Failed(results),
	})
}

// BufferShare stores a share that arrived before the client had a chat
// bound. The buffer holds one item, last wins.
func (h *ShareHandler) BufferShare(c *gin.Context) {
	var item models.ShareItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.pending.Put(item)
	c.Status(http.StatusAccepted)
}
