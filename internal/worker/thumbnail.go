package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"orbitdrive/internal/domain"
	"orbitdrive/internal/preview"
	"orbitdrive/internal/queue"
	"orbitdrive/internal/repository"
	"orbitdrive/internal/service/s3"
)

// notVisibleGrace — окно, в течение которого отсутствие записи о файле
// считается временным: постановка в очередь могла обогнать фиксацию
// метаданных.
const notVisibleGrace = 30 * time.Second

// FileStore — срез хранилища метаданных, нужный обработчику миниатюр
type FileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error)
}

// ThumbnailWorker строит миниатюры загруженных изображений
type ThumbnailWorker struct {
	files  FileStore
	blobs  s3.Storage
	resize preview.Resizer
}

func NewThumbnailWorker(files FileStore, blobs s3.Storage, resize preview.Resizer) *ThumbnailWorker {
	return &ThumbnailWorker{
		files:  files,
		blobs:  blobs,
		resize: resize,
	}
}

// Handle обрабатывает одно задание ленты thumbnails. Обработка идемпотентна:
// варианты пишутся по детерминированным ключам с перезаписью, поэтому
// повторная доставка того же задания безопасна.
func (w *ThumbnailWorker) Handle(ctx context.Context, d queue.Delivery) error {
	var job domain.ThumbnailJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return Permanentf("malformed job payload: %v", err)
	}

	if job.FileID == "" {
		return Permanentf("missing fileId")
	}
	if job.UserID == "" {
		return Permanentf("missing userId")
	}

	fileID, err := uuid.Parse(job.FileID)
	if err != nil {
		return Permanentf("invalid fileId %q: %v", job.FileID, err)
	}
	userID, err := uuid.Parse(job.UserID)
	if err != nil {
		return Permanentf("invalid userId %q: %v", job.UserID, err)
	}

	file, err := w.files.GetByID(ctx, fileID)
	if errors.Is(err, repository.ErrNotFound) {
		// Свежее задание могло обогнать запись метаданных
		if time.Since(d.EnqueuedAt) < notVisibleGrace {
			return fmt.Errorf("file %s not yet visible", job.FileID)
		}
		return Permanentf("file %s not found", job.FileID)
	}
	if err != nil {
		return fmt.Errorf("failed to get file %s: %w", job.FileID, err)
	}

	// Защита от устаревших и поддельных заданий
	if file.OwnerID != userID {
		return Permanentf("file %s is not owned by user %s", job.FileID, job.UserID)
	}
	if file.StoragePath == nil {
		return Permanentf("file %s has no storage path", job.FileID)
	}

	obj, err := w.blobs.GetObject(ctx, *file.StoragePath)
	if errors.Is(err, s3.ErrObjectNotFound) {
		return Permanentf("original bytes missing for file %s", job.FileID)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch original for file %s: %w", job.FileID, err)
	}

	data, err := io.ReadAll(obj)
	obj.Close()
	if err != nil {
		return fmt.Errorf("failed to read original for file %s: %w", job.FileID, err)
	}

	// Каждая ширина — независимая единица работы: сбой одной не
	// отменяет остальные
	var stored, storeFailures int
	for _, width := range domain.ThumbnailWidths {
		resized, err := w.resize.Resize(data, width)
		if err != nil {
			log.Printf("[Worker] thumbnail %dpx for file %s: %v", width, file.ID, err)
			continue
		}

		key := fmt.Sprintf("%s_%d", *file.StoragePath, width)
		if err := w.blobs.UploadBytes(key, resized); err != nil {
			log.Printf("[Worker] failed to store %dpx thumbnail for file %s: %v", width, file.ID, err)
			storeFailures++
			continue
		}
		stored++
	}

	// Частичный результат лучше бесконечных повторов необрабатываемой
	// картинки, но полный отказ хранилища стоит повторить
	if stored == 0 && storeFailures > 0 {
		return fmt.Errorf("failed to store any thumbnail variant for file %s", file.ID)
	}

	return nil
}
