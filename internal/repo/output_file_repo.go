package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Excerpta/internal/domain"
)

// uniqueViolation — код PostgreSQL для конфликта уникальности.
const uniqueViolation = "23505"

// outputFileColumns — столбцы таблицы output_files.
const outputFileColumns = `id, order_id, format, mime_type, file_extension,
	storage_path, public_identifier, created_at`

// OutputFileStore — доступ к файлам результата.
//
// Таблица несёт уникальный индекс (order_id, format): попытка создать
// второй файл для той же пары возвращает ErrAlreadyExists, на чём
// строится идемпотентность материализации по формату.
type OutputFileStore interface {
	// Create сохраняет запись о файле результата.
	Create(ctx context.Context, file *domain.OutputFile) error

	// ExistsForFormat проверяет, есть ли уже файл для пары (order, format).
	ExistsForFormat(ctx context.Context, orderID uuid.UUID, format string) (bool, error)

	// GetByPublicID возвращает файл по публичному идентификатору.
	GetByPublicID(ctx context.Context, publicID uuid.UUID) (*domain.OutputFile, error)

	// ListByOrder возвращает файлы заказа.
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.OutputFile, error)
}

// OutputFileRepo — реализация OutputFileStore поверх pgx.
type OutputFileRepo struct {
	pool *pgxpool.Pool
}

// NewOutputFileRepo создаёт новый OutputFileRepo.
func NewOutputFileRepo(pool *pgxpool.Pool) *OutputFileRepo {
	return &OutputFileRepo{pool: pool}
}

// Create сохраняет запись о файле результата.
func (r *OutputFileRepo) Create(ctx context.Context, file *domain.OutputFile) error {
	query := `
		INSERT INTO output_files
			(id, order_id, format, mime_type, file_extension, storage_path, public_identifier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		file.ID,
		file.OrderID,
		file.Format,
		file.MimeType,
		file.FileExtension,
		file.StoragePath,
		file.PublicIdentifier,
		file.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert output file: %w", err)
	}
	return nil
}

// ExistsForFormat проверяет наличие файла для пары (order, format).
func (r *OutputFileRepo) ExistsForFormat(ctx context.Context, orderID uuid.UUID, format string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM output_files WHERE order_id = $1 AND format = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, orderID, format).Scan(&exists); err != nil {
		return false, fmt.Errorf("check output file: %w", err)
	}
	return exists, nil
}

// GetByPublicID возвращает файл по публичному идентификатору.
func (r *OutputFileRepo) GetByPublicID(ctx context.Context, publicID uuid.UUID) (*domain.OutputFile, error) {
	query := `SELECT ` + outputFileColumns + ` FROM output_files WHERE public_identifier = $1`
	return scanOutputFile(r.pool.QueryRow(ctx, query, publicID))
}

// ListByOrder возвращает файлы заказа.
func (r *OutputFileRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.OutputFile, error) {
	query := `SELECT ` + outputFileColumns + ` FROM output_files WHERE order_id = $1 ORDER BY format`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list output files: %w", err)
	}
	defer rows.Close()

	var files []domain.OutputFile
	for rows.Next() {
		file, err := scanOutputFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

// scanOutputFile сканирует одну строку в OutputFile.
func scanOutputFile(row pgx.Row) (*domain.OutputFile, error) {
	var file domain.OutputFile
	err := row.Scan(
		&file.ID,
		&file.OrderID,
		&file.Format,
		&file.MimeType,
		&file.FileExtension,
		&file.StoragePath,
		&file.PublicIdentifier,
		&file.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan output file: %w", err)
	}
	return &file, nil
}
