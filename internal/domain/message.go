package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single chat message. Immutable once created: the relay hands
// it to the store and pushes it to the recipient, nothing mutates it after.
type Message struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewMessage(senderID, receiverID uuid.UUID, text, image string) *Message {
	return &Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		CreatedAt:  time.Now().UTC(),
	}
}
