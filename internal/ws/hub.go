package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"program-chat-service/internal/models"
	"program-chat-service/internal/observability"
)

// Hub maintains active websocket rooms and in-process live subscriptions,
// one room per chat.
type Hub struct {
	chatRooms    map[string]map[*websocket.Conn]bool
	chatConnInfo map[string]map[*websocket.Conn]ConnInfo
	subscribers  map[string]map[*Subscription]bool
	mu           sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		chatRooms:    make(map[string]map[*websocket.Conn]bool),
		chatConnInfo: make(map[string]map[*websocket.Conn]ConnInfo),
		subscribers:  make(map[string]map[*Subscription]bool),
	}
}

// AddChatClient registers a websocket connection to a chat room.
func (h *Hub) AddChatClient(chatID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addClientLocked(chatID, conn, info)
}

func (h *Hub) addClientLocked(chatID string, conn *websocket.Conn, info ConnInfo) {
	if _, ok := h.chatRooms[chatID]; !ok {
		h.chatRooms[chatID] = make(map[*websocket.Conn]bool)
	}
	h.chatRooms[chatID][conn] = true
	if _, ok := h.chatConnInfo[chatID]; !ok {
		h.chatConnInfo[chatID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.chatConnInfo[chatID][conn] = info
}

// RemoveChatClient removes a chat websocket connection.
func (h *Hub) RemoveChatClient(chatID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.chatRooms[chatID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.chatRooms, chatID)
		}
	}
	if infos, ok := h.chatConnInfo[chatID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.chatConnInfo, chatID)
		}
	}
}

// BroadcastMessage delivers an appended message to every live viewer of the
// chat: remote websocket clients and in-process subscriptions.
func (h *Hub) BroadcastMessage(chatID string, msg models.Message) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.chatRooms[chatID]))
	for conn := range h.chatRooms[chatID] {
		conns = append(conns, conn)
	}
	subs := make([]*Subscription, 0, len(h.subscribers[chatID]))
	for sub := range h.subscribers[chatID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	event := models.ChatEvent{Type: "message", Message: &msg}
	payload, _ := json.Marshal(event)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.RemoveChatClient(chatID, conn)
			observability.IncWSEvent("ws_error")
		}
	}

	for _, sub := range subs {
		sub.deliver(msg)
	}
}

// Subscribe opens an in-process live subscription on the chat. The handle's
// channel carries appended messages until Cancel.
func (h *Hub) Subscribe(chatID string) *Subscription {
	sub := &Subscription{
		hub:    h,
		chatID: chatID,
		ch:     make(chan models.Message, 16),
	}
	h.mu.Lock()
	if _, ok := h.subscribers[chatID]; !ok {
		h.subscribers[chatID] = make(map[*Subscription]bool)
	}
	h.subscribers[chatID][sub] = true
	h.mu.Unlock()
	return sub
}

// PromoteSubscription swaps an in-process subscription for a websocket
// registration in one critical section. Every broadcast lands on exactly one
// of the two: before the swap it is buffered on the subscription, after it is
// written to the connection. Callers drain the subscription's buffer after
// promoting so nothing between snapshot and live is lost.
func (h *Hub) PromoteSubscription(sub *Subscription, conn *websocket.Conn, info ConnInfo) {
	chatID := sub.chatID
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[chatID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subscribers, chatID)
		}
	}
	h.addClientLocked(chatID, conn, info)
}

// Drain returns the messages buffered on the subscription without blocking.
func (s *Subscription) Drain() []models.Message {
	var msgs []models.Message
	for {
		select {
		case msg, ok := <-s.ch:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[sub.chatID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subscribers, sub.chatID)
		}
	}
}

// Subscription is a cancellable live-tail handle. Teardown is explicit and
// idempotent.
type Subscription struct {
	hub    *Hub
	chatID string
	ch     chan models.Message
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

// C is the stream of appended messages.
func (s *Subscription) C() <-chan models.Message {
	return s.ch
}

// Cancel stops delivery and releases the hub slot. Safe to call repeatedly.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *Subscription) deliver(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
		// A stalled consumer drops deliveries rather than blocking the hub;
		// it recovers by reloading the tail.
	}
}
