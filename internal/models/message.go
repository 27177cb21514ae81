package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Media payload kinds.
const (
	MediaImage = "image"
	MediaVideo = "video"
	MediaFile  = "file"
)

// exactURLPattern matches input whose entire trimmed content is a single
// http(s) URL. A URL embedded in longer text does not match.
var exactURLPattern = regexp.MustCompile(`^https?://\S+$`)

// Media references an uploaded object. Messages store only the storage path;
// viewable URLs are resolved lazily because signed URLs expire.
type Media struct {
	Type        string `db:"media_type" json:"type"`
	StoragePath string `db:"storage_path" json:"storage_path"`
	Name        string `db:"media_name" json:"name"`
	Mime        string `db:"media_mime" json:"mime"`
}

// Message is one record in a chat's ordered log. Exactly one of Text, Link
// and Media is set. Messages are immutable once appended.
type Message struct {
	ID          int64     `db:"id" json:"id"`
	ChatID      string    `db:"chat_id" json:"chat_id"`
	SenderEmail string    `db:"sender_email" json:"sender_email"`
	Text        string    `db:"text" json:"text,omitempty"`
	Link        string    `db:"link" json:"link,omitempty"`
	Media       *Media    `db:"-" json:"media,omitempty"`
	Timestamp   time.Time `db:"created_at" json:"timestamp"`
}

// Payload is the one-of body of a message before it is appended.
type Payload struct {
	Text  string
	Link  string
	Media *Media
}

var (
	ErrEmptyPayload     = errors.New("message payload is empty")
	ErrAmbiguousPayload = errors.New("message payload must carry exactly one kind")
)

// Validate enforces payload exclusivity: exactly one of text, link, media.
func (p Payload) Validate() error {
	kinds := 0
	if strings.TrimSpace(p.Text) != "" {
		kinds++
	}
	if p.Link != "" {
		kinds++
	}
	if p.Media != nil {
		kinds++
	}
	switch {
	case kinds == 0:
		return ErrEmptyPayload
	case kinds > 1:
		return ErrAmbiguousPayload
	}
	if p.Media != nil {
		switch p.Media.Type {
		case MediaImage, MediaVideo, MediaFile:
		default:
			return errors.New("unknown media type " + p.Media.Type)
		}
		if p.Media.StoragePath == "" {
			return errors.New("media payload missing storage path")
		}
	}
	return nil
}

// Preview returns the short last-message string shown in chat lists.
func (p Payload) Preview() string {
	switch {
	case p.Link != "":
		return p.Link
	case p.Media != nil:
		switch p.Media.Type {
		case MediaImage:
			return "[photo]"
		case MediaVideo:
			return "[video]"
		default:
			return "[file]"
		}
	default:
		return strings.TrimSpace(p.Text)
	}
}

// ClassifyText builds a payload from composer input: input that is exactly
// one bare URL becomes a link, anything else stays text.
func ClassifyText(input string) Payload {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Payload{}
	}
	if IsBareURL(trimmed) {
		return Payload{Link: trimmed}
	}
	return Payload{Text: trimmed}
}

// IsBareURL reports whether the trimmed string is a single http(s) URL and
// nothing else.
func IsBareURL(s string) bool {
	return exactURLPattern.MatchString(strings.TrimSpace(s))
}

// ChatEvent is broadcasted through websockets.
type ChatEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	// Messages carries the initial tail snapshot on connect.
	Messages []Message `json:"messages,omitempty"`
}
