package domain

import (
	"time"

	"github.com/google/uuid"
)

// Виды файлов, принимаемые при загрузке
const (
	KindFolder = "folder"
	KindFile   = "file"
	KindImage  = "image"
)

// ValidKind проверяет, что вид файла поддерживается
func ValidKind(kind string) bool {
	switch kind {
	case KindFolder, KindFile, KindImage:
		return true
	}
	return false
}

type File struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	OwnerID     uuid.UUID  `json:"user_id" db:"owner_id"`
	Name        string     `json:"name" db:"name"`
	Kind        string     `json:"type" db:"kind"`
	IsPublic    bool       `json:"is_public" db:"is_public"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty" db:"parent_id"` // nil — корень
	StoragePath *string    `json:"-" db:"storage_path"`                // у папок всегда nil
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// FileUpload представляет проверенный запрос на загрузку файла
type FileUpload struct {
	Name     string
	Kind     string
	Data     []byte
	ParentID *uuid.UUID
	IsPublic bool
	OwnerID  uuid.UUID
}

// FileDownload представляет содержимое файла для скачивания
type FileDownload struct {
	Data     []byte
	MIMEType string
}
