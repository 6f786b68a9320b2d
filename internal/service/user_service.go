package service

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"orbitdrive/internal/domain"
	"orbitdrive/internal/queue"
	"orbitdrive/internal/repository"
)

// ErrUnauthorized — неверные учетные данные
var ErrUnauthorized = errors.New("unauthorized")

// UserStore — операции хранилища метаданных, нужные сервису пользователей
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type UserService struct {
	users UserStore
	jobs  queue.Queue
}

func NewUserService(users UserStore, jobs queue.Queue) *UserService {
	return &UserService{
		users: users,
		jobs:  jobs,
	}
}

// Register создает пользователя и ставит приветственное задание в очередь
func (s *UserService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrValidation)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: missing password", ErrValidation)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hashPassword(password),
	}

	err := s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, fmt.Errorf("%w: already exist", ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetryable, err)
	}

	payload, err := json.Marshal(domain.WelcomeJob{UserID: user.ID.String()})
	if err == nil {
		err = s.jobs.Enqueue(ctx, domain.LaneWelcomes, payload)
	}
	// Регистрация не зависит от доступности очереди
	if err != nil {
		log.Printf("[Users] failed to enqueue welcome job for %s: %v", user.ID, err)
	}

	return user, nil
}

// Authenticate проверяет пару email/пароль
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	if user.PasswordHash != hashPassword(password) {
		return nil, ErrUnauthorized
	}

	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

func hashPassword(password string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(password)))
}
