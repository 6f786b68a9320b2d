package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"path/filepath"

	"github.com/google/uuid"

	"orbitdrive/internal/domain"
	"orbitdrive/internal/queue"
	"orbitdrive/internal/repository"
	"orbitdrive/internal/service/s3"
)

// Определение пользовательских ошибок
var (
	// ErrValidation — запрос отклонен до каких-либо записей
	ErrValidation = errors.New("validation failed")
	// ErrNotFound — запись отсутствует или недоступна вызывающему
	ErrNotFound = errors.New("not found")
	// ErrRetryable — временный сбой, клиенту следует повторить запрос
	ErrRetryable = errors.New("temporarily unavailable")
)

// Допустимые размеры миниатюр при скачивании; 0 — оригинал
var downloadSizes = map[int]bool{0: true, 100: true, 250: true, 500: true}

// FileStore — операции хранилища метаданных, нужные файловому сервису
type FileStore interface {
	Create(ctx context.Context, file *domain.File) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error)
	ListByParent(ctx context.Context, ownerID uuid.UUID, parentID *uuid.UUID, page int) ([]domain.File, error)
	SetPublic(ctx context.Context, id uuid.UUID, public bool) error
}

// FileService реализует загрузку, просмотр и скачивание файлов
type FileService struct {
	files FileStore
	blobs s3.Storage
	jobs  queue.Queue
}

func NewFileService(files FileStore, blobs s3.Storage, jobs queue.Queue) *FileService {
	return &FileService{
		files: files,
		blobs: blobs,
		jobs:  jobs,
	}
}

// Upload сохраняет файл и ставит задание на миниатюры, если это изображение.
// Порядок фиксированный: сначала байты, затем метаданные, затем очередь —
// запись метаданных никогда не ссылается на отсутствующие байты.
func (s *FileService) Upload(ctx context.Context, up domain.FileUpload) (*domain.File, error) {
	if up.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrValidation)
	}
	if !domain.ValidKind(up.Kind) {
		return nil, fmt.Errorf("%w: missing or invalid type", ErrValidation)
	}
	if up.Kind != domain.KindFolder && len(up.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrValidation)
	}

	// Родитель, если указан, должен существовать и быть папкой
	if up.ParentID != nil {
		parent, err := s.files.GetByID(ctx, *up.ParentID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: parent not found", ErrValidation)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check parent: %w", err)
		}
		if parent.Kind != domain.KindFolder {
			return nil, fmt.Errorf("%w: parent is not a folder", ErrValidation)
		}
	}

	file := &domain.File{
		ID:       uuid.New(),
		OwnerID:  up.OwnerID,
		Name:     up.Name,
		Kind:     up.Kind,
		IsPublic: up.IsPublic,
		ParentID: up.ParentID,
	}

	// Папка не несет содержимого — только запись метаданных
	if up.Kind == domain.KindFolder {
		if err := s.files.Create(ctx, file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRetryable, err)
		}
		return file, nil
	}

	key := fmt.Sprintf("files/%s/%s", up.OwnerID, file.ID)
	if err := s.blobs.UploadBytes(key, up.Data); err != nil {
		return nil, fmt.Errorf("%w: failed to store file data: %v", ErrRetryable, err)
	}
	file.StoragePath = &key

	// Байты записаны, но записи о них нет — загрузку нужно повторить
	if err := s.files.Create(ctx, file); err != nil {
		return nil, fmt.Errorf("%w: file bytes stored but metadata insert failed, retry the upload: %v", ErrRetryable, err)
	}

	if up.Kind == domain.KindImage {
		payload, err := json.Marshal(domain.ThumbnailJob{
			FileID: file.ID.String(),
			UserID: file.OwnerID.String(),
		})
		if err == nil {
			err = s.jobs.Enqueue(ctx, domain.LaneThumbnails, payload)
		}
		// Постановка в очередь — fire-and-forget: сбой не виден загрузившему
		if err != nil {
			log.Printf("[Files] failed to enqueue thumbnail job for %s: %v", file.ID, err)
		}
	}

	return file, nil
}

// Get возвращает файл, если он принадлежит запрашивающему
func (s *FileService) Get(ctx context.Context, id, requesterID uuid.UUID) (*domain.File, error) {
	file, err := s.files.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if file.OwnerID != requesterID {
		return nil, ErrNotFound
	}

	return file, nil
}

// List возвращает страницу файлов пользователя в указанной папке
func (s *FileService) List(ctx context.Context, ownerID uuid.UUID, parentID *uuid.UUID, page int) ([]domain.File, error) {
	if parentID != nil {
		parent, err := s.files.GetByID(ctx, *parentID)
		if errors.Is(err, repository.ErrNotFound) {
			return []domain.File{}, nil
		}
		if err != nil {
			return nil, err
		}
		if parent.Kind != domain.KindFolder {
			return []domain.File{}, nil
		}
	}

	return s.files.ListByParent(ctx, ownerID, parentID, page)
}

// SetVisibility публикует или скрывает файл владельца
func (s *FileService) SetVisibility(ctx context.Context, id, requesterID uuid.UUID, public bool) (*domain.File, error) {
	file, err := s.Get(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}

	if err := s.files.SetPublic(ctx, file.ID, public); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	file.IsPublic = public
	return file, nil
}

// Download отдает содержимое файла. size=0 — оригинал, иначе вариант
// соответствующей ширины. requesterID == nil — анонимный запрос.
// Отсутствующий вариант неотличим для клиента от несуществующего файла.
func (s *FileService) Download(ctx context.Context, id uuid.UUID, requesterID *uuid.UUID, size int) (*domain.FileDownload, error) {
	if !downloadSizes[size] {
		return nil, fmt.Errorf("%w: unsupported size %d", ErrValidation, size)
	}

	file, err := s.files.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !file.IsPublic && (requesterID == nil || *requesterID != file.OwnerID) {
		return nil, ErrNotFound
	}

	if file.Kind == domain.KindFolder {
		return nil, fmt.Errorf("%w: a folder doesn't have content", ErrValidation)
	}
	if file.StoragePath == nil {
		return nil, ErrNotFound
	}

	key := *file.StoragePath
	if size != 0 {
		key = fmt.Sprintf("%s_%d", key, size)
	}

	obj, err := s.blobs.GetObject(ctx, key)
	if errors.Is(err, s3.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetryable, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetryable, err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(file.Name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return &domain.FileDownload{
		Data:     data,
		MIMEType: mimeType,
	}, nil
}
