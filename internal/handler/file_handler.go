package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"orbitdrive/internal/auth"
	"orbitdrive/internal/domain"
	"orbitdrive/internal/service"
)

type FileHandler struct {
	files  *service.FileService
	tokens *auth.TokenStore
}

func NewFileHandler(files *service.FileService, tokens *auth.TokenStore) *FileHandler {
	return &FileHandler{
		files:  files,
		tokens: tokens,
	}
}

// uploadRequest — тело запроса POST /files
type uploadRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Data     string `json:"data"` // base64
	ParentID string `json:"parentId"`
	IsPublic bool   `json:"isPublic"`
}

// Upload обрабатывает POST /files
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := h.tokens.VerifyRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var data []byte
	if req.Data != "" {
		data, err = base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid base64 data")
			return
		}
	}

	parentID, err := parseParentID(req.ParentID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid parentId")
		return
	}

	file, err := h.files.Upload(r.Context(), domain.FileUpload{
		Name:     req.Name,
		Kind:     req.Type,
		Data:     data,
		ParentID: parentID,
		IsPublic: req.IsPublic,
		OwnerID:  userID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, file)
}

// Show обрабатывает GET /files/{id}
func (h *FileHandler) Show(w http.ResponseWriter, r *http.Request) {
	userID, err := h.tokens.VerifyRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	fileID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}

	file, err := h.files.Get(r.Context(), fileID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, file)
}

// Index обрабатывает GET /files?parentId=&page=
func (h *FileHandler) Index(w http.ResponseWriter, r *http.Request) {
	userID, err := h.tokens.VerifyRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	parentID, err := parseParentID(r.URL.Query().Get("parentId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid parentId")
		return
	}

	page := 0
	if p := r.URL.Query().Get("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil || page < 0 {
			page = 0
		}
	}

	files, err := h.files.List(r.Context(), userID, parentID, page)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, files)
}

// Publish обрабатывает PUT /files/{id}/publish
func (h *FileHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.setVisibility(w, r, true)
}

// Unpublish обрабатывает PUT /files/{id}/unpublish
func (h *FileHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	h.setVisibility(w, r, false)
}

func (h *FileHandler) setVisibility(w http.ResponseWriter, r *http.Request, public bool) {
	userID, err := h.tokens.VerifyRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	fileID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}

	file, err := h.files.SetVisibility(r.Context(), fileID, userID, public)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, file)
}

// Download обрабатывает GET /files/{id}/data?size=.
// Токен не обязателен: публичные файлы доступны анонимно.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}

	var requesterID *uuid.UUID
	if userID, err := h.tokens.VerifyRequest(r); err == nil {
		requesterID = &userID
	}

	size := 0
	if sz := r.URL.Query().Get("size"); sz != "" {
		size, err = strconv.Atoi(sz)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid size")
			return
		}
	}

	download, err := h.files.Download(r.Context(), fileID, requesterID, size)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", download.MIMEType)
	w.WriteHeader(http.StatusOK)
	w.Write(download.Data)
}

// parseParentID разбирает идентификатор родительской папки.
// Пустая строка и "0" означают корень.
func parseParentID(raw string) (*uuid.UUID, error) {
	if raw == "" || raw == "0" {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
