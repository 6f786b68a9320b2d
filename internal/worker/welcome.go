package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"orbitdrive/internal/domain"
	"orbitdrive/internal/queue"
	"orbitdrive/internal/repository"
)

// UserStore — срез хранилища метаданных, нужный приветственному обработчику
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Notifier выполняет приветственный побочный эффект. Должен быть безопасен
// для повторного вызова по одному и тому же адресу.
type Notifier interface {
	SendWelcome(ctx context.Context, email string) error
}

// WelcomeWorker обрабатывает задания ленты welcomes
type WelcomeWorker struct {
	users    UserStore
	notifier Notifier
}

func NewWelcomeWorker(users UserStore, notifier Notifier) *WelcomeWorker {
	return &WelcomeWorker{
		users:    users,
		notifier: notifier,
	}
}

func (w *WelcomeWorker) Handle(ctx context.Context, d queue.Delivery) error {
	var job domain.WelcomeJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return Permanentf("malformed job payload: %v", err)
	}

	if job.UserID == "" {
		return Permanentf("missing userId")
	}

	userID, err := uuid.Parse(job.UserID)
	if err != nil {
		return Permanentf("invalid userId %q: %v", job.UserID, err)
	}

	user, err := w.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return Permanentf("user %s not found", job.UserID)
	}
	if err != nil {
		return fmt.Errorf("failed to get user %s: %w", job.UserID, err)
	}

	if err := w.notifier.SendWelcome(ctx, user.Email); err != nil {
		return fmt.Errorf("failed to send welcome to %s: %w", user.Email, err)
	}

	return nil
}
