package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"program-chat-service/internal/blob"
	"program-chat-service/internal/entitlements"
	"program-chat-service/internal/models"
	"program-chat-service/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateChat(ctx context.Context, users []string, programID, programTitle string) (models.Chat, error) {
	args := m.Called(ctx, users, programID, programTitle)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) IsMember(ctx context.Context, chatID, email string) (bool, error) {
	args := m.Called(ctx, chatID, email)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) ListChatsForUser(ctx context.Context, email string) ([]models.Chat, error) {
	args := m.Called(ctx, email)
	var list []models.Chat
	if val := args.Get(0); val != nil {
		list = val.([]models.Chat)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) TouchLastMessage(ctx context.Context, chatID, preview string) error {
	args := m.Called(ctx, chatID, preview)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, chatID, senderEmail string, payload models.Payload) (models.Message, error) {
	args := m.Called(ctx, chatID, senderEmail, payload)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) LiveTail(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) LoadOlder(ctx context.Context, chatID string, beforeID int64, pageSize int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, beforeID, pageSize)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type GateMock struct {
	mock.Mock
}

func (m *GateMock) MayAccess(ctx context.Context, email, programID string) (bool, error) {
	args := m.Called(ctx, email, programID)
	return args.Bool(0), args.Error(1)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, r io.Reader, size int64, mime, chatID, uploaderID string) (string, error) {
	args := m.Called(ctx, r, size, mime, chatID, uploaderID)
	return args.String(0), args.Error(1)
}

func (m *UploaderMock) PresignGet(ctx context.Context, storagePath string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, storagePath, ttl)
	return args.String(0), args.Error(1)
}

type ResolverMock struct {
	mock.Mock
}

func (m *ResolverMock) Resolve(ctx context.Context, storagePath string) string {
	args := m.Called(ctx, storagePath)
	return args.String(0)
}

func (m *ResolverMock) Invalidate(storagePath string) {
	m.Called(storagePath)
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ entitlements.Gate = (*GateMock)(nil)
var _ blob.Uploader = (*UploaderMock)(nil)
