package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handle is one open persistent connection belonging to a user (one per
// tab/device). A user may hold several handles at once; presence is true
// while at least one is open.
type Handle struct {
	ID       string
	UserID   uuid.UUID
	Name     string
	OpenedAt time.Time

	Mutex  sync.RWMutex
	Socket *websocket.Conn
	Events chan Event
	closed bool
}

func NewHandle(userID uuid.UUID, name string, sendBuffer int) *Handle {
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	return &Handle{
		ID:       uuid.New().String(),
		UserID:   userID,
		Name:     name,
		OpenedAt: time.Now().UTC(),
		Events:   make(chan Event, sendBuffer),
	}
}

// Enqueue offers an event to the handle's outbound queue without blocking.
// It reports false when the handle is closed or its buffer is full; the
// caller treats that as a failed send and runs the disconnect path.
func (h *Handle) Enqueue(event Event) bool {
	h.Mutex.RLock()
	defer h.Mutex.RUnlock()
	if h.closed {
		return false
	}
	select {
	case h.Events <- event:
		return true
	default:
		return false
	}
}

// Close marks the handle closed, stops the writer and closes the socket.
// Safe to call more than once.
func (h *Handle) Close() {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.Events)
	if h.Socket != nil {
		h.Socket.Close()
	}
}

func (h *Handle) Closed() bool {
	h.Mutex.RLock()
	defer h.Mutex.RUnlock()
	return h.closed
}
