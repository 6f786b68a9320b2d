package handler

import (
	"net/http"

	"orbitdrive/internal/auth"
	"orbitdrive/internal/service"
)

type AuthHandler struct {
	users  *service.UserService
	tokens *auth.TokenStore
}

func NewAuthHandler(users *service.UserService, tokens *auth.TokenStore) *AuthHandler {
	return &AuthHandler{
		users:  users,
		tokens: tokens,
	}
}

// Connect обрабатывает GET /connect: Basic-авторизация обменивается на токен
func (h *AuthHandler) Connect(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.users.Authenticate(r.Context(), email, password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	token, err := h.tokens.CreateToken(r.Context(), user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Disconnect обрабатывает GET /disconnect: токен отзывается
func (h *AuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.DeleteToken(r.Context(), r.Header.Get("X-Token")); err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
