package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/chirpchat/chirp/internal/repository"
	"github.com/google/uuid"
)

type UserService struct {
	users repository.UserRepository
	log   *slog.Logger
}

func NewUserService(users repository.UserRepository, log *slog.Logger) *UserService {
	return &UserService{users: users, log: log}
}

func (s *UserService) CreateUser(ctx context.Context, name string, email string) (*domain.User, error) {
	const op = "service.user.create"
	log := s.log.With(slog.String("op", op))

	if name == "" {
		log.Error("no name provided")
		return nil, errors.New("name is required")
	}
	user := domain.NewUser(name, email)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) UpdateUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return errors.New("user is required")
	}
	user.UpdatedAt = time.Now().UTC()
	return s.users.Update(ctx, user)
}

// EnsureUser creates the user when absent and refreshes it otherwise. Used
// at connection handshake so guest identities survive into the user store.
func (s *UserService) EnsureUser(ctx context.Context, user *domain.User) error {
	const op = "service.user.ensure"
	log := s.log.With(slog.String("op", op), slog.String("user_id", user.ID.String()))

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = time.Now().UTC()

	_, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Info("user not found, creating new one")
			return s.users.Create(ctx, user)
		}
		return err
	}

	return s.users.Update(ctx, user)
}
