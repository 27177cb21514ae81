package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"program-chat-service/internal/blob"
	"program-chat-service/internal/feed"
	"program-chat-service/internal/middleware"
	"program-chat-service/internal/models"
	"program-chat-service/internal/observability"
	"program-chat-service/internal/repositories"
)

const maxUploadBytes = 50 << 20
const maxFilenameLen = 255

// MediaHandler serves uploads and signed-URL resolution.
type MediaHandler struct {
	chatRepo repositories.ChatRepository
	chats    *ChatHandler
	uploader blob.Uploader
	resolver feed.URLResolver
}

// NewMediaHandler builds a MediaHandler.
func NewMediaHandler(chatRepo repositories.ChatRepository, chats *ChatHandler, uploader blob.Uploader, resolver feed.URLResolver) *MediaHandler {
	return &MediaHandler{chatRepo: chatRepo, chats: chats, uploader: uploader, resolver: resolver}
}

// UploadMedia receives one multipart file, writes it into object storage
// under the chat's namespace and appends the referencing media message. The
// message stores only the storage path; viewers resolve URLs lazily.
func (h *MediaHandler) UploadMedia(c *gin.Context) {
	chat, email, ok := h.chats.requireMembership(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	if header.Size <= 0 || header.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds limit or invalid"})
		return
	}

	name := sanitizeFilename(header.Filename)
	mime := header.Header.Get("Content-Type")
	mediaType := mediaTypeForMime(mime)

	path, err := h.uploader.Upload(c.Request.Context(), file, header.Size, mime, chat.ID, email)
	if err != nil {
		observability.IncMediaUpload("error")
		respondError(c, err)
		return
	}
	observability.IncMediaUpload("ok")

	payload := models.Payload{Media: &models.Media{
		Type:        mediaType,
		StoragePath: path,
		Name:        name,
		Mime:        mime,
	}}

	msg, err := h.chats.Send(c.Request.Context(), chat.ID, email, payload)
	if err != nil {
		// The upload stays; no message references it, the action failed as a
		// whole and the client may retry.
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// ResolveMediaURL turns a stored media path into a short-lived viewable URL.
// Membership is checked against the chat encoded in the path; the external
// mediator re-checks it independently. An empty url in the response means
// "media temporarily unavailable" and is not an error.
func (h *MediaHandler) ResolveMediaURL(c *gin.Context) {
	var req struct {
		StoragePath string `json:"storage_path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chatID := blob.ChatIDFromPath(req.StoragePath)
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "storage path outside media root"})
		return
	}

	email := c.GetString(middleware.UserEmailKey)
	member, err := h.chatRepo.IsMember(c.Request.Context(), chatID, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	url := h.resolver.Resolve(c.Request.Context(), req.StoragePath)
	if url == "" {
		observability.IncSignedURLResolution("unavailable")
	} else {
		observability.IncSignedURLResolution("ok")
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func mediaTypeForMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MediaImage
	case strings.HasPrefix(mime, "video/"):
		return models.MediaVideo
	default:
		return models.MediaFile
	}
}

// sanitizeFilename keeps only a bounded base name, discarding any directory
// components a client might smuggle in.
func sanitizeFilename(raw string) string {
	name := filepath.Base(strings.TrimSpace(raw))
	if name == "" || name == "." || strings.Contains(name, "..") {
		name = "file"
	}
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}
	return name
}
