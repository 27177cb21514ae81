package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"program-chat-service/internal/errkind"
	"program-chat-service/internal/middleware"
	"program-chat-service/internal/mocks"
	"program-chat-service/internal/models"
	"program-chat-service/internal/repositories"
	"program-chat-service/internal/ws"
)

type chatFixture struct {
	chatRepo *mocks.ChatRepositoryMock
	msgRepo  *mocks.MessageRepositoryMock
	gate     *mocks.GateMock
	hub      *ws.Hub
	handler  *ChatHandler
	router   *gin.Engine
}

func newChatFixture(t *testing.T, email string) *chatFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &chatFixture{
		chatRepo: new(mocks.ChatRepositoryMock),
		msgRepo:  new(mocks.MessageRepositoryMock),
		gate:     new(mocks.GateMock),
		hub:      ws.NewHub(),
	}
	f.handler = NewChatHandler(f.chatRepo, f.msgRepo, f.gate, f.hub, nil, nil, nil, Options{LiveTailLimit: 5, PageSize: 2})

	f.router = gin.New()
	f.router.Use(func(c *gin.Context) {
		c.Set(middleware.UserEmailKey, email)
		c.Next()
	})
	f.router.GET("/chats", f.handler.ListChats)
	f.router.POST("/chats", f.handler.CreateChat)
	f.router.GET("/chats/:chat_id/messages", f.handler.GetChatMessages)
	f.router.GET("/chats/:chat_id/feed", f.handler.GetChatFeed)
	f.router.POST("/chats/:chat_id/messages", f.handler.PostChatMessage)
	return f
}

func (f *chatFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

var memberChat = models.Chat{ID: "c1", Users: []string{"me@x.com", "them@x.com"}, ProgramID: "p1"}

func day(d int) time.Time {
	return time.Date(2026, 8, d, 12, 0, 0, 0, time.UTC)
}

func TestListChats(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.chatRepo.On("ListChatsForUser", mock.Anything, "me@x.com").
		Return([]models.Chat{memberChat}, nil).Once()

	w := f.do(http.MethodGet, "/chats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Chats []models.Chat `json:"chats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Chats, 1)
	assert.Equal(t, "c1", resp.Chats[0].ID)
	f.chatRepo.AssertExpectations(t)
}

func TestCreateChatRequiresEntitlement(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.gate.On("MayAccess", mock.Anything, "me@x.com", "p1").Return(false, nil).Once()

	w := f.do(http.MethodPost, "/chats", gin.H{"users": []string{"them@x.com"}, "program_id": "p1"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.chatRepo.AssertNotCalled(t, "CreateChat")
	f.gate.AssertExpectations(t)
}

func TestCreateChatIncludesRequester(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.gate.On("MayAccess", mock.Anything, "me@x.com", "p1").Return(true, nil).Once()
	f.chatRepo.On("CreateChat", mock.Anything, []string{"me@x.com", "them@x.com"}, "p1", "Program One").
		Return(memberChat, nil).Once()

	w := f.do(http.MethodPost, "/chats", gin.H{
		"users":         []string{"them@x.com"},
		"program_id":    "p1",
		"program_title": "Program One",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	f.chatRepo.AssertExpectations(t)
}

func TestGetChatMessagesLiveTail(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat, nil).Once()
	f.msgRepo.On("LiveTail", mock.Anything, "c1", 5).
		Return([]models.Message{{ID: 1, ChatID: "c1", Text: "hi"}}, nil).Once()

	w := f.do(http.MethodGet, "/chats/c1/messages", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Messages  []models.Message `json:"messages"`
		Exhausted bool             `json:"exhausted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 1)
	assert.False(t, resp.Exhausted)
	f.msgRepo.AssertExpectations(t)
}

func TestGetChatMessagesBeforePagesBackward(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat, nil).Once()
	f.msgRepo.On("LoadOlder", mock.Anything, "c1", int64(40), 2).
		Return([]models.Message{}, nil).Once()

	w := f.do(http.MethodGet, "/chats/c1/messages?before=40", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Exhausted bool `json:"exhausted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Exhausted)
	f.msgRepo.AssertExpectations(t)
}

func TestGetChatMessagesUnknownBoundary(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat, nil).Once()
	f.msgRepo.On("LoadOlder", mock.Anything, "c1", int64(999), 2).
		Return([]models.Message(nil), errkind.NotFound(repositories.ErrMessageNotFound)).Once()

	w := f.do(http.MethodGet, "/chats/c1/messages?before=999", nil)

	// A boundary outside this chat is not the same as exhausted history.
	assert.Equal(t, http.StatusNotFound, w.Code)
	f.msgRepo.AssertExpectations(t)
}

func TestGetChatMessagesRejectsNonMember(t *testing.T) {
	f := newChatFixture(t, "stranger@x.com")
	f.chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat, nil).Once()

	w := f.do(http.MethodGet, "/chats/c1/messages", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.msgRepo.AssertNotCalled(t, "LiveTail")
}

func TestGetChatMessagesUnknownChat(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.chatRepo.On("GetChat", mock.Anything, "nope").
		Return(models.Chat{}, repositories.ErrChatNotFound).Once()

	w := f.do(http.MethodGet, "/chats/nope/messages", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetChatFeedGroupsByDay(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat, nil).Once()
	f.msgRepo.On("LiveTail", mock.Anything, "c1", 5).
		Return([]models.Message{
			{ID: 1, ChatID: "c1", SenderEmail: "them@x.com", Text: "a", Timestamp: day(1)},
			{ID: 2, ChatID: "c1", SenderEmail: "me@x.com", Text: "b", Timestamp: day(2)},
		}, nil).Once()

	w := f.do(http.MethodGet, "/chats/c1/feed", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Sections []struct {
			Entries []struct {
				Mine bool `json:"mine"`
			} `json:"entries"`
		} `json:"sections"`
		Exhausted bool `json:"exhausted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Sections, 2)
	assert.False(t, resp.Sections[0].Entries[0].Mine)
	assert.True(t, resp.Sections[1].Entries[0].Mine)
}

func TestGetChatFeedIncludesAppendsRacingTheLoad(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat, nil).Once()
	f.msgRepo.On("LiveTail", mock.Anything, "c1", 5).
		Run(func(mock.Arguments) {
			// An append lands while the tail query runs; the feed subscription
			// buffers it so the assembled window still carries it.
			f.hub.BroadcastMessage("c1", models.Message{
				ID: 3, ChatID: "c1", SenderEmail: "them@x.com", Text: "racing", Timestamp: day(1).Add(time.Hour),
			})
		}).
		Return([]models.Message{
			{ID: 1, ChatID: "c1", SenderEmail: "them@x.com", Text: "a", Timestamp: day(1)},
			{ID: 2, ChatID: "c1", SenderEmail: "me@x.com", Text: "b", Timestamp: day(1).Add(time.Minute)},
		}, nil).Once()

	w := f.do(http.MethodGet, "/chats/c1/feed", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Sections []struct {
			Entries []struct {
				Message models.Message `json:"message"`
			} `json:"entries"`
		} `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Sections, 1)
	require.Len(t, resp.Sections[0].Entries, 3)
	assert.EqualValues(t, 3, resp.Sections[0].Entries[2].Message.ID)
}

func TestPostChatMessageText(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat, nil).Once()
	f.msgRepo.On("Append", mock.Anything, "c1", "me@x.com", models.Payload{Text: "hello"}).
		Return(models.Message{ID: 1, ChatID: "c1", Text: "hello"}, nil).Once()
	f.chatRepo.On("TouchLastMessage", mock.Anything, "c1", "hello").Return(nil).Once()

	w := f.do(http.MethodPost, "/chats/c1/messages", gin.H{"text": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	f.msgRepo.AssertExpectations(t)
	f.chatRepo.AssertExpectations(t)
}

func TestPostChatMessageClassifiesBareURL(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat, nil).Once()
	f.msgRepo.On("Append", mock.Anything, "c1", "me@x.com", models.Payload{Link: "https://example.com/a"}).
		Return(models.Message{ID: 1, ChatID: "c1", Link: "https://example.com/a"}, nil).Once()
	f.chatRepo.On("TouchLastMessage", mock.Anything, "c1", mock.Anything).Return(nil).Once()

	w := f.do(http.MethodPost, "/chats/c1/messages", gin.H{"text": "https://example.com/a"})

	assert.Equal(t, http.StatusCreated, w.Code)
	f.msgRepo.AssertExpectations(t)
}

func TestPostChatMessageValidationFailure(t *testing.T) {
	f := newChatFixture(t, "me@x.com")
	f.chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat, nil).Once()
	f.msgRepo.On("Append", mock.Anything, "c1", "me@x.com", mock.Anything).
		Return(models.Message{}, errkind.Validation(models.ErrEmptyPayload)).Once()

	w := f.do(http.MethodPost, "/chats/c1/messages", gin.H{"text": ""})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostChatMessageNonMember(t *testing.T) {
	f := newChatFixture(t, "stranger@x.com")
	f.chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat, nil).Once()

	w := f.do(http.MethodPost, "/chats/c1/messages", gin.H{"text": "hi"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.msgRepo.AssertNotCalled(t, "Append")
}
