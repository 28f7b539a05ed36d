package repository

import (
	"context"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/google/uuid"
)

type MessageRepository interface {
	Save(ctx context.Context, message *domain.Message) error
	// History returns every message exchanged between the two users,
	// oldest first.
	History(ctx context.Context, userA, userB uuid.UUID) ([]*domain.Message, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}
