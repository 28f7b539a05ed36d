package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/chirpchat/chirp/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingMessageRepo struct{}

func (failingMessageRepo) Save(context.Context, *domain.Message) error {
	return errors.New("store unavailable")
}

func (failingMessageRepo) History(context.Context, uuid.UUID, uuid.UUID) ([]*domain.Message, error) {
	return nil, errors.New("store unavailable")
}

func TestMessageService_RelaysToEveryRecipientHandle(t *testing.T) {
	r := NewRegistry(testLogger())
	svc := NewMessageService(repository.NewInMemoryMessageRepository(), r, testLogger())

	sender := uuid.New()
	receiver := uuid.New()
	tab1 := newHandle(receiver)
	tab2 := newHandle(receiver)
	r.Register(tab1)
	r.Register(tab2)

	msg, err := svc.Send(context.Background(), sender, receiver, "hello", "")
	require.NoError(t, err)
	require.NotNil(t, msg)

	for _, h := range []*domain.Handle{tab1, tab2} {
		events := drainEvents(h)
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventNewMessage, events[0].Type)
		require.NotNil(t, events[0].Message)
		assert.Equal(t, msg.ID, events[0].Message.ID)
		assert.Equal(t, "hello", events[0].Message.Text)
	}
}

func TestMessageService_OfflineRecipientStillPersistsOnce(t *testing.T) {
	r := NewRegistry(testLogger())
	repo := repository.NewInMemoryMessageRepository()
	svc := NewMessageService(repo, r, testLogger())

	sender := uuid.New()
	receiver := uuid.New()

	msg, err := svc.Send(context.Background(), sender, receiver, "catch up later", "")
	require.NoError(t, err)

	history, err := repo.History(context.Background(), sender, receiver)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}

func TestMessageService_PersistenceFailureReportedToSender(t *testing.T) {
	r := NewRegistry(testLogger())
	svc := NewMessageService(failingMessageRepo{}, r, testLogger())

	receiver := uuid.New()
	h := newHandle(receiver)
	r.Register(h)

	_, err := svc.Send(context.Background(), uuid.New(), receiver, "hello", "")
	require.Error(t, err)

	assert.Empty(t, drainEvents(h), "nothing pushed when persistence fails")
}

func TestMessageService_Validation(t *testing.T) {
	svc := NewMessageService(repository.NewInMemoryMessageRepository(), NewRegistry(testLogger()), testLogger())
	sender := uuid.New()
	receiver := uuid.New()

	_, err := svc.Send(context.Background(), sender, receiver, "   ", "")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Send(context.Background(), sender, receiver, strings.Repeat("x", maxMessageLength+1), "")
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = svc.Send(context.Background(), sender, receiver, "", "data:image/png;base64,xyz")
	assert.NoError(t, err, "image-only message is valid")

	_, err = svc.Send(context.Background(), uuid.Nil, receiver, "hi", "")
	assert.Error(t, err)
}

func TestMessageService_SameSenderSameRecipientOrderPreserved(t *testing.T) {
	r := NewRegistry(testLogger())
	svc := NewMessageService(repository.NewInMemoryMessageRepository(), r, testLogger())

	sender := uuid.New()
	receiver := uuid.New()
	h := domain.NewHandle(receiver, "tab", 32)
	r.Register(h)

	want := []string{"one", "two", "three", "four"}
	for _, text := range want {
		_, err := svc.Send(context.Background(), sender, receiver, text, "")
		require.NoError(t, err)
	}

	events := drainEvents(h)
	require.Len(t, events, len(want))
	for i, ev := range events {
		assert.Equal(t, want[i], ev.Message.Text)
	}
}
