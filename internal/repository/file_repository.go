package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"orbitdrive/internal/domain"
)

// ErrNotFound возвращается при отсутствии записи
var ErrNotFound = errors.New("record not found")

// Количество записей на страницу при выборке содержимого папки
const pageSize = 20

type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, file *domain.File) error {
	query := `
        INSERT INTO files (id, owner_id, name, kind, is_public, parent_id, storage_path)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		file.ID,
		file.OwnerID,
		file.Name,
		file.Kind,
		file.IsPublic,
		file.ParentID,
		file.StoragePath,
	).Scan(&file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	var file domain.File
	query := `SELECT * FROM files WHERE id = $1`

	err := r.db.GetContext(ctx, &file, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return &file, nil
}

// ListByParent возвращает страницу файлов пользователя внутри указанной папки.
// parentID == nil означает корень.
func (r *FileRepository) ListByParent(ctx context.Context, ownerID uuid.UUID, parentID *uuid.UUID, page int) ([]domain.File, error) {
	if page < 0 {
		page = 0
	}

	var files []domain.File
	var err error

	if parentID == nil {
		query := `
            SELECT * FROM files
            WHERE owner_id = $1 AND parent_id IS NULL
            ORDER BY created_at
            LIMIT $2 OFFSET $3`
		err = r.db.SelectContext(ctx, &files, query, ownerID, pageSize, page*pageSize)
	} else {
		query := `
            SELECT * FROM files
            WHERE owner_id = $1 AND parent_id = $2
            ORDER BY created_at
            LIMIT $3 OFFSET $4`
		err = r.db.SelectContext(ctx, &files, query, ownerID, *parentID, pageSize, page*pageSize)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	if files == nil {
		files = []domain.File{}
	}
	return files, nil
}

// SetPublic атомарно переключает видимость файла
func (r *FileRepository) SetPublic(ctx context.Context, id uuid.UUID, public bool) error {
	query := `
        UPDATE files
        SET is_public = $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, public, id)
	if err != nil {
		return fmt.Errorf("failed to update file visibility: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *FileRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM files`)
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}
