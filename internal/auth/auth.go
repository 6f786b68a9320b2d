package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	tokenTTL  = 24 * time.Hour
	keyPrefix = "auth_"
)

// ErrUnauthorized возвращается при отсутствующем или истекшем токене
var ErrUnauthorized = errors.New("unauthorized")

// TokenStore хранит сессионные токены в Redis с TTL
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// CreateToken выдает новый токен для пользователя
func (s *TokenStore) CreateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	token := uuid.NewString()

	err := s.client.Set(ctx, keyPrefix+token, userID.String(), tokenTTL).Err()
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}

	return token, nil
}

// ResolveToken возвращает пользователя по токену
func (s *TokenStore) ResolveToken(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrUnauthorized
	}

	val, err := s.client.Get(ctx, keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrUnauthorized
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up token: %w", err)
	}

	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt token mapping: %w", err)
	}

	return userID, nil
}

// DeleteToken отзывает токен
func (s *TokenStore) DeleteToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrUnauthorized
	}

	deleted, err := s.client.Del(ctx, keyPrefix+token).Result()
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if deleted == 0 {
		return ErrUnauthorized
	}

	return nil
}

// VerifyRequest извлекает пользователя из заголовка X-Token запроса
func (s *TokenStore) VerifyRequest(r *http.Request) (uuid.UUID, error) {
	return s.ResolveToken(r.Context(), r.Header.Get("X-Token"))
}

// Ping проверяет доступность хранилища токенов
func (s *TokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
