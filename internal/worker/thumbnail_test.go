package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"orbitdrive/internal/domain"
	"orbitdrive/internal/queue"
	"orbitdrive/internal/repository"
	"orbitdrive/internal/service/s3"
)

// fakeFileStore — хранилище метаданных в памяти. Реализует срезы,
// нужные и обработчикам, и файловому сервису.
type fakeFileStore struct {
	mu    sync.Mutex
	files map[uuid.UUID]*domain.File
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: make(map[uuid.UUID]*domain.File)}
}

func (s *fakeFileStore) Create(ctx context.Context, file *domain.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *file
	s.files[file.ID] = &copied
	return nil
}

func (s *fakeFileStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *file
	return &copied, nil
}

func (s *fakeFileStore) ListByParent(ctx context.Context, ownerID uuid.UUID, parentID *uuid.UUID, page int) ([]domain.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.File
	for _, f := range s.files {
		if f.OwnerID != ownerID {
			continue
		}
		if (parentID == nil) != (f.ParentID == nil) {
			continue
		}
		if parentID != nil && *f.ParentID != *parentID {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

func (s *fakeFileStore) SetPublic(ctx context.Context, id uuid.UUID, public bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[id]
	if !ok {
		return repository.ErrNotFound
	}
	file.IsPublic = public
	return nil
}

// fakeStorage — блоб-хранилище в памяти
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) UploadBytes(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[key] = copied
	return nil
}

func (s *fakeStorage) GetObject(ctx context.Context, key string) (s3.S3Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", s3.ErrObjectNotFound, key)
	}
	return &fakeObject{ReadCloser: io.NopCloser(bytes.NewReader(data)), length: int64(len(data))}, nil
}

func (s *fakeStorage) ObjectExists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStorage) DeleteObject(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

func (s *fakeStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type fakeObject struct {
	io.ReadCloser
	length int64
}

func (o *fakeObject) ContentLength() int64 { return o.length }
func (o *fakeObject) ContentType() string  { return "application/octet-stream" }

// fakeResizer помечает результат шириной, чтобы проверять содержимое вариантов
type fakeResizer struct {
	failWidths map[int]bool
}

func (r *fakeResizer) Resize(data []byte, width int) ([]byte, error) {
	if r.failWidths[width] {
		return nil, fmt.Errorf("unsupported image codec")
	}
	return []byte(fmt.Sprintf("thumb-%d:%s", width, data)), nil
}

func thumbnailDelivery(t *testing.T, fileID, userID string, enqueuedAt time.Time) queue.Delivery {
	t.Helper()
	body, err := json.Marshal(domain.ThumbnailJob{FileID: fileID, UserID: userID})
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return queue.Delivery{Body: body, EnqueuedAt: enqueuedAt}
}

func storedImage(t *testing.T, files *fakeFileStore, blobs *fakeStorage, owner uuid.UUID, data []byte) *domain.File {
	t.Helper()
	path := fmt.Sprintf("files/%s/%s", owner, uuid.New())
	if err := blobs.UploadBytes(path, data); err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	file := &domain.File{
		ID:          uuid.New(),
		OwnerID:     owner,
		Name:        "cat.png",
		Kind:        domain.KindImage,
		StoragePath: &path,
	}
	if err := files.Create(context.Background(), file); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	return file
}

func TestThumbnailWorkerCreatesAllVariants(t *testing.T) {
	files := newFakeFileStore()
	blobs := newFakeStorage()
	owner := uuid.New()
	original := []byte("png-bytes")
	file := storedImage(t, files, blobs, owner, original)

	w := NewThumbnailWorker(files, blobs, &fakeResizer{})

	d := thumbnailDelivery(t, file.ID.String(), owner.String(), time.Now())
	if err := w.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	for _, width := range domain.ThumbnailWidths {
		key := fmt.Sprintf("%s_%d", *file.StoragePath, width)
		data, ok := blobs.get(key)
		if !ok {
			t.Fatalf("missing variant %s", key)
		}
		want := fmt.Sprintf("thumb-%d:%s", width, original)
		if string(data) != want {
			t.Fatalf("variant %s: got %q, want %q", key, data, want)
		}
	}
}

func TestThumbnailWorkerIsIdempotent(t *testing.T) {
	files := newFakeFileStore()
	blobs := newFakeStorage()
	owner := uuid.New()
	file := storedImage(t, files, blobs, owner, []byte("png-bytes"))

	w := NewThumbnailWorker(files, blobs, &fakeResizer{})
	d := thumbnailDelivery(t, file.ID.String(), owner.String(), time.Now())

	if err := w.Handle(context.Background(), d); err != nil {
		t.Fatalf("first run: %v", err)
	}

	var firstRun [][]byte
	for _, width := range domain.ThumbnailWidths {
		data, _ := blobs.get(fmt.Sprintf("%s_%d", *file.StoragePath, width))
		firstRun = append(firstRun, data)
	}

	// Повторная доставка того же задания — частый случай at-least-once
	if err := w.Handle(context.Background(), d); err != nil {
		t.Fatalf("second run: %v", err)
	}

	for i, width := range domain.ThumbnailWidths {
		data, _ := blobs.get(fmt.Sprintf("%s_%d", *file.StoragePath, width))
		if !bytes.Equal(data, firstRun[i]) {
			t.Fatalf("variant %d changed between runs", width)
		}
	}
}

func TestThumbnailWorkerMalformedJob(t *testing.T) {
	files := newFakeFileStore()
	blobs := newFakeStorage()
	w := NewThumbnailWorker(files, blobs, &fakeResizer{})

	cases := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("{{")},
		{"missing fileId", []byte(`{"userId":"` + uuid.NewString() + `"}`)},
		{"missing userId", []byte(`{"fileId":"` + uuid.NewString() + `"}`)},
		{"bad fileId", []byte(`{"fileId":"nope","userId":"` + uuid.NewString() + `"}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := w.Handle(context.Background(), queue.Delivery{Body: tc.body, EnqueuedAt: time.Now()})
			if !IsPermanent(err) {
				t.Fatalf("expected permanent error, got %v", err)
			}
			if n := blobs.count(); n != 0 {
				t.Fatalf("malformed job must not write blobs, got %d", n)
			}
		})
	}
}

func TestThumbnailWorkerUnknownFile(t *testing.T) {
	files := newFakeFileStore()
	blobs := newFakeStorage()
	w := NewThumbnailWorker(files, blobs, &fakeResizer{})

	// Свежее задание могло обогнать запись метаданных — повторяем
	fresh := thumbnailDelivery(t, uuid.NewString(), uuid.NewString(), time.Now())
	err := w.Handle(context.Background(), fresh)
	if err == nil || IsPermanent(err) {
		t.Fatalf("fresh unknown file must be retryable, got %v", err)
	}

	// Старое задание на несуществующий файл повторять бессмысленно
	stale := thumbnailDelivery(t, uuid.NewString(), uuid.NewString(), time.Now().Add(-time.Minute))
	err = w.Handle(context.Background(), stale)
	if !IsPermanent(err) {
		t.Fatalf("stale unknown file must be permanent, got %v", err)
	}

	if n := blobs.count(); n != 0 {
		t.Fatalf("unknown file must not write blobs, got %d", n)
	}
}

func TestThumbnailWorkerOwnerMismatch(t *testing.T) {
	files := newFakeFileStore()
	blobs := newFakeStorage()
	owner := uuid.New()
	file := storedImage(t, files, blobs, owner, []byte("png-bytes"))
	before := blobs.count()

	w := NewThumbnailWorker(files, blobs, &fakeResizer{})

	d := thumbnailDelivery(t, file.ID.String(), uuid.NewString(), time.Now())
	err := w.Handle(context.Background(), d)
	if !IsPermanent(err) {
		t.Fatalf("owner mismatch must be permanent, got %v", err)
	}
	if blobs.count() != before {
		t.Fatal("owner mismatch must not write blobs")
	}
}

func TestThumbnailWorkerPartialWidthFailure(t *testing.T) {
	files := newFakeFileStore()
	blobs := newFakeStorage()
	owner := uuid.New()
	file := storedImage(t, files, blobs, owner, []byte("png-bytes"))

	w := NewThumbnailWorker(files, blobs, &fakeResizer{failWidths: map[int]bool{250: true}})

	d := thumbnailDelivery(t, file.ID.String(), owner.String(), time.Now())
	if err := w.Handle(context.Background(), d); err != nil {
		t.Fatalf("partial failure must still succeed, got %v", err)
	}

	if _, ok := blobs.get(*file.StoragePath + "_500"); !ok {
		t.Fatal("missing 500px variant")
	}
	if _, ok := blobs.get(*file.StoragePath + "_100"); !ok {
		t.Fatal("missing 100px variant")
	}
	if _, ok := blobs.get(*file.StoragePath + "_250"); ok {
		t.Fatal("250px variant must be absent")
	}
}

func TestThumbnailWorkerRetriesWhenStorageDown(t *testing.T) {
	files := newFakeFileStore()
	blobs := newFakeStorage()
	owner := uuid.New()
	file := storedImage(t, files, blobs, owner, []byte("png-bytes"))

	blobs.mu.Lock()
	blobs.putErr = fmt.Errorf("storage unavailable")
	blobs.mu.Unlock()

	w := NewThumbnailWorker(files, blobs, &fakeResizer{})

	d := thumbnailDelivery(t, file.ID.String(), owner.String(), time.Now())
	err := w.Handle(context.Background(), d)
	if err == nil || IsPermanent(err) {
		t.Fatalf("total storage failure must be retryable, got %v", err)
	}
}
