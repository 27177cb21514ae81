package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"program-chat-service/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat persistence. Membership is immutable after
// creation; there are no add/remove member operations.
type ChatRepository interface {
	CreateChat(ctx context.Context, users []string, programID, programTitle string) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	IsMember(ctx context.Context, chatID, email string) (bool, error)
	ListChatsForUser(ctx context.Context, email string) ([]models.Chat, error)
	TouchLastMessage(ctx context.Context, chatID, preview string) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateChat stores a chat with a normalized, fixed member list.
func (r *ChatRepo) CreateChat(ctx context.Context, users []string, programID, programTitle string) (models.Chat, error) {
	members := models.NormalizeEmails(users)
	if len(members) < 2 {
		return models.Chat{}, errors.New("chat needs at least two members")
	}
	if programID == "" {
		return models.Chat{}, errors.New("chat needs a program")
	}

	chat := models.Chat{ID: uuid.NewString()}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO chats (id, users, program_id, program_title)
         VALUES ($1, $2, $3, $4)
         RETURNING id, users, program_id, program_title, last_message, created_at`,
		chat.ID, pq.StringArray(members), programID, programTitle).
		Scan(&chat.ID, &chat.Users, &chat.ProgramID, &chat.ProgramTitle, &chat.LastMessage, &chat.CreatedAt)
	if err != nil {
		return models.Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT id, users, program_id, program_title, last_message, created_at FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// IsMember checks whether the email belongs to the chat's member list.
func (r *ChatRepo) IsMember(ctx context.Context, chatID, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1 AND $2 = ANY(users))`,
		chatID, models.NormalizeEmail(email))
	return exists, err
}

// ListChatsForUser returns the chats the email is a member of, newest first.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, email string) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats,
		`SELECT id, users, program_id, program_title, last_message, created_at
         FROM chats WHERE $1 = ANY(users) ORDER BY created_at DESC`,
		models.NormalizeEmail(email))
	return chats, err
}

// TouchLastMessage updates the chat-list preview string.
func (r *ChatRepo) TouchLastMessage(ctx context.Context, chatID, preview string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET last_message=$2 WHERE id=$1`, chatID, preview)
	return err
}
