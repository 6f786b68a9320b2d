package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"orbitdrive/internal/domain"
	"orbitdrive/internal/queue"
	"orbitdrive/internal/service"
)

// Сквозной сценарий: загрузка изображения ставит задание, обработчик
// строит все варианты миниатюр по ключам оригинала.
func TestUploadToThumbnailPipeline(t *testing.T) {
	files := newFakeFileStore()
	blobs := newFakeStorage()
	q := queue.NewMemoryQueue(time.Minute)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileService := service.NewFileService(files, blobs, q)

	owner := uuid.New()
	file, err := fileService.Upload(ctx, domain.FileUpload{
		Name:     "cat.png",
		Kind:     domain.KindImage,
		Data:     []byte("png-bytes"),
		IsPublic: false,
		OwnerID:  owner,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if file.StoragePath == nil {
		t.Fatal("uploaded image must have a storage path")
	}

	thumbWorker := NewThumbnailWorker(files, blobs, &fakeResizer{})
	w := New(q, domain.LaneThumbnails, thumbWorker.Handle)
	go w.Run(ctx)

	for _, width := range domain.ThumbnailWidths {
		key := fmt.Sprintf("%s_%d", *file.StoragePath, width)
		waitFor(t, func() bool {
			_, ok := blobs.get(key)
			return ok
		})
	}

	// Оригинал на месте, очередь пуста
	if _, ok := blobs.get(*file.StoragePath); !ok {
		t.Fatal("original bytes must remain in place")
	}
	waitFor(t, func() bool { return q.Len(domain.LaneThumbnails) == 0 })
	if dead := q.DeadLetters(domain.LaneThumbnails); len(dead) != 0 {
		t.Fatalf("expected no dead letters, got %d", len(dead))
	}
}
