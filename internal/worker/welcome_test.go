package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"orbitdrive/internal/domain"
	"orbitdrive/internal/queue"
	"orbitdrive/internal/repository"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*domain.User)}
}

func (s *fakeUserStore) add(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *fakeNotifier) SendWelcome(ctx context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, email)
	return nil
}

func (n *fakeNotifier) sentTo() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func welcomeDelivery(t *testing.T, userID string) queue.Delivery {
	t.Helper()
	body, err := json.Marshal(domain.WelcomeJob{UserID: userID})
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return queue.Delivery{Body: body, EnqueuedAt: time.Now()}
}

func TestWelcomeWorkerNotifiesUser(t *testing.T) {
	users := newFakeUserStore()
	user := &domain.User{ID: uuid.New(), Email: "bob@example.com"}
	users.add(user)

	notifier := &fakeNotifier{}
	w := NewWelcomeWorker(users, notifier)

	if err := w.Handle(context.Background(), welcomeDelivery(t, user.ID.String())); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	sent := notifier.sentTo()
	if len(sent) != 1 || sent[0] != "bob@example.com" {
		t.Fatalf("expected one welcome to bob@example.com, got %v", sent)
	}
}

func TestWelcomeWorkerUnknownUserDropped(t *testing.T) {
	users := newFakeUserStore()
	notifier := &fakeNotifier{}
	w := NewWelcomeWorker(users, notifier)

	err := w.Handle(context.Background(), welcomeDelivery(t, uuid.NewString()))
	if !IsPermanent(err) {
		t.Fatalf("unknown user must be permanent, got %v", err)
	}
	if len(notifier.sentTo()) != 0 {
		t.Fatal("no side effect expected for unknown user")
	}
}

func TestWelcomeWorkerMalformedJob(t *testing.T) {
	users := newFakeUserStore()
	notifier := &fakeNotifier{}
	w := NewWelcomeWorker(users, notifier)

	for _, body := range [][]byte{[]byte("{{"), []byte(`{}`), []byte(`{"userId":"nope"}`)} {
		err := w.Handle(context.Background(), queue.Delivery{Body: body, EnqueuedAt: time.Now()})
		if !IsPermanent(err) {
			t.Fatalf("body %q: expected permanent error, got %v", body, err)
		}
	}
	if len(notifier.sentTo()) != 0 {
		t.Fatal("no side effect expected for malformed jobs")
	}
}

func TestWelcomeWorkerNotifierFailureIsRetryable(t *testing.T) {
	users := newFakeUserStore()
	user := &domain.User{ID: uuid.New(), Email: "bob@example.com"}
	users.add(user)

	notifier := &fakeNotifier{err: fmt.Errorf("smtp down")}
	w := NewWelcomeWorker(users, notifier)

	err := w.Handle(context.Background(), welcomeDelivery(t, user.ID.String()))
	if err == nil || IsPermanent(err) {
		t.Fatalf("notifier failure must be retryable, got %v", err)
	}
}
