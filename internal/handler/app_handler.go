package handler

import (
	"context"
	"net/http"

	"orbitdrive/internal/auth"
	"orbitdrive/internal/repository"
)

// Pinger проверяет доступность зависимости
type Pinger interface {
	PingContext(ctx context.Context) error
}

// AppHandler отдает служебные эндпоинты /status и /stats
type AppHandler struct {
	db     Pinger
	tokens *auth.TokenStore
	users  *repository.UserRepository
	files  *repository.FileRepository
}

func NewAppHandler(db Pinger, tokens *auth.TokenStore, users *repository.UserRepository, files *repository.FileRepository) *AppHandler {
	return &AppHandler{
		db:     db,
		tokens: tokens,
		users:  users,
		files:  files,
	}
}

// Status обрабатывает GET /status
func (h *AppHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	respondJSON(w, http.StatusOK, map[string]bool{
		"redis": h.tokens.Ping(ctx) == nil,
		"db":    h.db.PingContext(ctx) == nil,
	})
}

// Stats обрабатывает GET /stats
func (h *AppHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.users.Count(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	files, err := h.files.Count(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{
		"users": users,
		"files": files,
	})
}
