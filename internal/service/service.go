package service

import (
	"context"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/google/uuid"
)

type CallInteractor interface {
	Initiate(ctx context.Context, callerID, calleeID uuid.UUID) (*domain.Call, error)
	Accept(calleeID, callID uuid.UUID) error
	Reject(calleeID, callID uuid.UUID) error
	RelaySignal(from uuid.UUID, envelope domain.Event)
	Connected(userID, callID uuid.UUID)
	End(userID, callID uuid.UUID)
	HandleDisconnect(userID uuid.UUID)
}

type MessageInteractor interface {
	Send(ctx context.Context, senderID, receiverID uuid.UUID, text, image string) (*domain.Message, error)
	History(ctx context.Context, userA, userB uuid.UUID) ([]*domain.Message, error)
}

type UserInteractor interface {
	CreateUser(ctx context.Context, name string, email string) (*domain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	EnsureUser(ctx context.Context, user *domain.User) error
}
