package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/chirpchat/chirp/internal/repository"
	"github.com/chirpchat/chirp/lib/logger/sl"
	"github.com/google/uuid"
)

var (
	ErrEmptyMessage   = errors.New("message requires text or image")
	ErrMessageTooLong = errors.New("message is too long")
)

const maxMessageLength = 4000

// MessageService relays chat messages: it always hands the message to the
// store, and additionally pushes it to every open handle of the recipient
// when they are online (store-and-forward for offline recipients).
type MessageService struct {
	messages repository.MessageRepository
	registry *Registry
	log      *slog.Logger
}

func NewMessageService(messages repository.MessageRepository, registry *Registry, log *slog.Logger) *MessageService {
	if log == nil {
		log = slog.Default()
	}
	return &MessageService{
		messages: messages,
		registry: registry,
		log:      log,
	}
}

// Send persists the message and relays it to the recipient's handles.
// A persistence failure is returned to the sender; a failed real-time push
// is silent, the recipient fetches history on next load.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID uuid.UUID, text, image string) (*domain.Message, error) {
	const op = "service.message.send"
	log := s.log.With(
		slog.String("op", op),
		slog.String("sender_id", senderID.String()),
		slog.String("receiver_id", receiverID.String()),
	)

	if senderID == uuid.Nil || receiverID == uuid.Nil {
		return nil, errors.New("sender and receiver are required")
	}

	text = strings.TrimSpace(text)
	if text == "" && image == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, ErrMessageTooLong
	}

	message := domain.NewMessage(senderID, receiverID, text, image)

	if err := s.messages.Save(ctx, message); err != nil {
		log.Error("failed to persist message", sl.Err(err))
		return nil, err
	}

	event := domain.Event{
		Type:    domain.EventNewMessage,
		Message: message,
	}
	for _, handle := range s.registry.HandlesFor(receiverID) {
		if !handle.Enqueue(event) {
			log.Debug("dropping message push", slog.String("handle_id", handle.ID))
		}
	}

	log.Info("message relayed", slog.String("message_id", message.ID.String()))
	return message, nil
}

func (s *MessageService) History(ctx context.Context, userA, userB uuid.UUID) ([]*domain.Message, error) {
	return s.messages.History(ctx, userA, userB)
}
