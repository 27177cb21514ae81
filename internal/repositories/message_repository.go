package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"program-chat-service/internal/errkind"
	"program-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines the per-chat ordered message log. Records are
// append-only: no edit or delete operations exist.
type MessageRepository interface {
	Append(ctx context.Context, chatID, senderEmail string, payload models.Payload) (models.Message, error)
	LiveTail(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	LoadOlder(ctx context.Context, chatID string, beforeID int64, pageSize int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// messageRow is the flat scan target; Media is folded in afterwards.
type messageRow struct {
	models.Message
	MediaType   string `db:"media_type"`
	StoragePath string `db:"storage_path"`
	MediaName   string `db:"media_name"`
	MediaMime   string `db:"media_mime"`
}

func (row messageRow) toMessage() models.Message {
	msg := row.Message
	if row.MediaType != "" {
		msg.Media = &models.Media{
			Type:        row.MediaType,
			StoragePath: row.StoragePath,
			Name:        row.MediaName,
			Mime:        row.MediaMime,
		}
	}
	return msg
}

const messageColumns = `id, chat_id, sender_email, text, link, media_type, storage_path, media_name, media_mime, created_at`

// Append stores one record with a server-assigned timestamp. The payload must
// carry exactly one kind; violations classify as validation errors.
func (r *MessageRepo) Append(ctx context.Context, chatID, senderEmail string, payload models.Payload) (models.Message, error) {
	if err := payload.Validate(); err != nil {
		return models.Message{}, errkind.Validation(err)
	}
	sender := models.NormalizeEmail(senderEmail)
	if sender == "" {
		return models.Message{}, errkind.Validation(errors.New("missing sender"))
	}

	media := models.Media{}
	if payload.Media != nil {
		media = *payload.Media
	}

	var row messageRow
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_email, text, link, media_type, storage_path, media_name, media_mime)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         RETURNING `+messageColumns,
		chatID, sender, payload.Text, payload.Link, media.Type, media.StoragePath, media.Name, media.Mime).
		StructScan(&row)
	if err != nil {
		return models.Message{}, errkind.Transient(fmt.Errorf("insert message: %w", err))
	}
	return row.toMessage(), nil
}

// LiveTail returns the most recent limit messages in ascending order.
func (r *MessageRepo) LiveTail(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+messageColumns+` FROM (
             SELECT `+messageColumns+` FROM messages
             WHERE chat_id=$1
             ORDER BY created_at DESC, id DESC
             LIMIT $2
         ) tail ORDER BY created_at ASC, id ASC`,
		chatID, limit)
	if err != nil {
		return nil, err
	}
	return toMessages(rows), nil
}

// LoadOlder returns up to pageSize messages strictly older than the boundary
// message, ascending. The boundary must belong to the chat; a boundary id
// that does not classifies as not-found rather than as exhausted history.
// The boundary is fixed, so repeated calls neither skip nor duplicate
// records while new messages land at the live end. An empty result means
// history is exhausted.
func (r *MessageRepo) LoadOlder(ctx context.Context, chatID string, beforeID int64, pageSize int) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+messageColumns+` FROM (
             SELECT m.id, m.chat_id, m.sender_email, m.text, m.link, m.media_type, m.storage_path, m.media_name, m.media_mime, m.created_at
             FROM messages m, messages b
             WHERE b.id=$2 AND b.chat_id=$1 AND m.chat_id=$1
               AND (m.created_at, m.id) < (b.created_at, b.id)
             ORDER BY m.created_at DESC, m.id DESC
             LIMIT $3
         ) page ORDER BY created_at ASC, id ASC`,
		chatID, beforeID, pageSize)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM messages WHERE id=$1 AND chat_id=$2)`,
			beforeID, chatID); err != nil {
			return nil, err
		}
		if !exists {
			return nil, errkind.NotFound(fmt.Errorf("pagination boundary %d: %w", beforeID, ErrMessageNotFound))
		}
	}
	return toMessages(rows), nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toMessage(), nil
}

func toMessages(rows []messageRow) []models.Message {
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toMessage())
	}
	return msgs
}
