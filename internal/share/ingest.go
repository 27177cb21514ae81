// Package share normalizes operating-system share payloads into the same
// message-append contract used by manual sending.
package share

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"program-chat-service/internal/blob"
	"program-chat-service/internal/models"
)

// Appender is the append contract shares feed into. Wiring the full send path
// here (rather than the bare repository) keeps shared messages on the same
// broadcast and preview-refresh route as typed ones.
type Appender interface {
	Append(ctx context.Context, chatID, senderEmail string, payload models.Payload) (models.Message, error)
}

// AppendFunc adapts a function to the Appender contract.
type AppendFunc func(ctx context.Context, chatID, senderEmail string, payload models.Payload) (models.Message, error)

func (f AppendFunc) Append(ctx context.Context, chatID, senderEmail string, payload models.Payload) (models.Message, error) {
	return f(ctx, chatID, senderEmail, payload)
}

// ContentOpener turns a share item's data URI into readable bytes. The
// platform layer either provides this capability or doesn't; absence is a
// startup decision, not a per-call check.
type ContentOpener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, int64, error)
}

// Result reports the outcome of one normalized sub-item.
type Result struct {
	Appended bool   `json:"appended"`
	Kind     string `json:"kind,omitempty"`
	Err      string `json:"error,omitempty"`
}

// Ingestor fans share payloads into uploads and message appends.
type Ingestor struct {
	messages Appender
	uploader blob.Uploader
	opener   ContentOpener
}

// NewIngestor builds an Ingestor. opener may be nil when the deployment has
// no way to dereference content URIs; media items then fail per-item.
func NewIngestor(messages Appender, uploader blob.Uploader, opener ContentOpener) *Ingestor {
	return &Ingestor{messages: messages, uploader: uploader, opener: opener}
}

// Ingest normalizes one share item against a chat for an authenticated
// sender. Bundles recurse in order; a sub-item's failure is recorded and the
// remaining sub-items still run. Without a bound sender and chat the call is
// a no-op.
func (in *Ingestor) Ingest(ctx context.Context, chat models.Chat, senderEmail string, item models.ShareItem) []Result {
	if chat.ID == "" || models.NormalizeEmail(senderEmail) == "" {
		return nil
	}

	// Bundles take precedence only when sub-items exist; a bundle wrapper
	// with inline data still goes through the single-item branches.
	if len(item.Items) > 0 {
		results := make([]Result, 0, len(item.Items))
		for _, sub := range item.Items {
			results = append(results, in.Ingest(ctx, chat, senderEmail, sub)...)
		}
		return results
	}

	res := in.ingestOne(ctx, chat, senderEmail, item)
	if res.Err != "" {
		log.Printf("share item failed chat=%s kind=%s: %s", chat.ID, res.Kind, res.Err)
	}
	if !res.Appended && res.Err == "" {
		// Empty item, nothing to report.
		return nil
	}
	return []Result{res}
}

func (in *Ingestor) ingestOne(ctx context.Context, chat models.Chat, senderEmail string, item models.ShareItem) Result {
	mime := strings.ToLower(strings.TrimSpace(item.MimeType))
	data := strings.TrimSpace(item.Data)

	switch {
	case strings.HasPrefix(mime, "text/"), mime == "":
		if data == "" {
			return Result{}
		}
		payload := models.ClassifyText(data)
		kind := "text"
		if payload.Link != "" {
			kind = "link"
		}
		return in.append(ctx, chat, senderEmail, payload, kind)

	case strings.HasPrefix(mime, "image/") && data != "":
		return in.uploadAndAppend(ctx, chat, senderEmail, item, models.MediaImage)

	case strings.HasPrefix(mime, "video/") && data != "":
		return in.uploadAndAppend(ctx, chat, senderEmail, item, models.MediaVideo)

	case data != "":
		return in.uploadAndAppend(ctx, chat, senderEmail, item, models.MediaFile)

	default:
		return Result{}
	}
}

func (in *Ingestor) uploadAndAppend(ctx context.Context, chat models.Chat, senderEmail string, item models.ShareItem, mediaType string) Result {
	if in.opener == nil {
		return Result{Kind: mediaType, Err: "shared content cannot be opened on this deployment"}
	}

	rc, size, err := in.opener.Open(ctx, item.Data)
	if err != nil {
		return Result{Kind: mediaType, Err: fmt.Sprintf("open shared content: %v", err)}
	}
	defer rc.Close()

	sender := models.NormalizeEmail(senderEmail)
	path, err := in.uploader.Upload(ctx, rc, size, item.MimeType, chat.ID, sender)
	if err != nil {
		return Result{Kind: mediaType, Err: fmt.Sprintf("upload: %v", err)}
	}

	payload := models.Payload{Media: &models.Media{
		Type:        mediaType,
		StoragePath: path,
		Name:        baseName(item.Data),
		Mime:        item.MimeType,
	}}
	return in.append(ctx, chat, senderEmail, payload, mediaType)
}

func (in *Ingestor) append(ctx context.Context, chat models.Chat, senderEmail string, payload models.Payload, kind string) Result {
	if _, err := in.messages.Append(ctx, chat.ID, senderEmail, payload); err != nil {
		return Result{Kind: kind, Err: err.Error()}
	}
	return Result{Appended: true, Kind: kind}
}

// Failed reports whether any sub-item failed; the caller surfaces this as a
// partial failure without rolling back appended siblings.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Err != "" {
			return true
		}
	}
	return false
}

func baseName(uri string) string {
	uri = strings.TrimRight(uri, "/")
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		uri = uri[i+1:]
	}
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	return uri
}
