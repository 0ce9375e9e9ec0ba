package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Excerpta/internal/domain"
)

// orderColumns — список столбцов таблицы extraction_orders для SELECT-запросов.
const orderColumns = `id, orderer_id, formats, options, west, south, east, north, polyfile,
	process_id, progress_url, state, download_status, error, created_at, updated_at`

// OrderStore — доступ к extraction orders.
//
// Все мутации состояния — атомарные guarded UPDATE'ы: проверка текущего
// состояния и запись нового выполняются одним запросом, поэтому
// конкурирующие вызовы (submitter, harvester, callback) не могут
// провести заказ назад по таблице переходов.
type OrderStore interface {
	// Create сохраняет новый заказ.
	Create(ctx context.Context, order *domain.ExtractionOrder) error

	// GetByID возвращает заказ по ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionOrder, error)

	// GetByProcessID возвращает заказ по идентификатору job конвертационного сервиса.
	GetByProcessID(ctx context.Context, processID string) (*domain.ExtractionOrder, error)

	// ListByOrderer возвращает заказы пользователя, новые первыми.
	ListByOrderer(ctx context.Context, ordererID uuid.UUID, limit, offset int) ([]domain.ExtractionOrder, error)

	// ListUnsubmitted возвращает заказы, для которых job ещё не отправлен.
	ListUnsubmitted(ctx context.Context, limit int) ([]domain.ExtractionOrder, error)

	// MarkSubmitted фиксирует успешную отправку job: выставляет process_id,
	// progress_url и state=QUEUED. Выполняется только если process_id ещё
	// не выставлен — однажды записанный process_id не перезаписывается.
	MarkSubmitted(ctx context.Context, id uuid.UUID, processID, progressURL string) error

	// TransitionState переводит заказ в состояние next, если переход допустим
	// по таблице состояний. Возвращает true, если строка действительно
	// перешла (false — заказ уже был в next или в терминальном состоянии).
	TransitionState(ctx context.Context, id uuid.UUID, next domain.OrderState, errMsg string) (bool, error)

	// TryStartDownload атомарно переводит download_status UNKNOWN → DOWNLOADING.
	// Возвращает false, если загрузка уже идёт или уже завершена.
	TryStartDownload(ctx context.Context, id uuid.UUID) (bool, error)

	// SetDownloadStatus выставляет download_status (AVAILABLE или откат в UNKNOWN).
	SetDownloadStatus(ctx context.Context, id uuid.UUID, status domain.DownloadStatus) error
}

// transitionSources — из каких состояний допустим переход в данное.
// Инверсия таблицы domain.OrderState; guarded UPDATE использует её
// как условие WHERE.
var transitionSources = map[domain.OrderState][]string{
	domain.OrderStateQueued:     {string(domain.OrderStateUnsubmitted)},
	domain.OrderStateProcessing: {string(domain.OrderStateQueued)},
	domain.OrderStateFinished:   {string(domain.OrderStateQueued), string(domain.OrderStateProcessing)},
	domain.OrderStateFailed:     {string(domain.OrderStateUnsubmitted), string(domain.OrderStateQueued), string(domain.OrderStateProcessing)},
	domain.OrderStateAborted:    {string(domain.OrderStateUnsubmitted), string(domain.OrderStateQueued), string(domain.OrderStateProcessing)},
}

// OrderRepo — реализация OrderStore поверх pgx.
type OrderRepo struct {
	pool *pgxpool.Pool
}

// NewOrderRepo создаёт новый OrderRepo.
func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create сохраняет новый заказ.
func (r *OrderRepo) Create(ctx context.Context, order *domain.ExtractionOrder) error {
	optionsJSON, err := json.Marshal(order.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	query := `
		INSERT INTO extraction_orders
			(id, orderer_id, formats, options, west, south, east, north, polyfile,
			 state, download_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.pool.Exec(ctx, query,
		order.ID,
		order.OrdererID,
		order.Formats,
		optionsJSON,
		order.Geometry.West,
		order.Geometry.South,
		order.Geometry.East,
		order.Geometry.North,
		nullString(order.Geometry.Polyfile),
		order.State,
		order.DownloadStatus,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID возвращает заказ по ID.
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM extraction_orders WHERE id = $1`
	return scanOrder(r.pool.QueryRow(ctx, query, id))
}

// GetByProcessID возвращает заказ по идентификатору job.
func (r *OrderRepo) GetByProcessID(ctx context.Context, processID string) (*domain.ExtractionOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM extraction_orders WHERE process_id = $1`
	return scanOrder(r.pool.QueryRow(ctx, query, processID))
}

// ListByOrderer возвращает заказы пользователя.
func (r *OrderRepo) ListByOrderer(ctx context.Context, ordererID uuid.UUID, limit, offset int) ([]domain.ExtractionOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM extraction_orders
		WHERE orderer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, ordererID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListUnsubmitted возвращает заказы без отправленного job.
func (r *OrderRepo) ListUnsubmitted(ctx context.Context, limit int) ([]domain.ExtractionOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM extraction_orders
		WHERE state = 'UNSUBMITTED'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsubmitted orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// MarkSubmitted фиксирует успешную отправку job.
func (r *OrderRepo) MarkSubmitted(ctx context.Context, id uuid.UUID, processID, progressURL string) error {
	query := `
		UPDATE extraction_orders
		SET process_id = $2, progress_url = $3, state = 'QUEUED', updated_at = now()
		WHERE id = $1 AND process_id IS NULL AND state = 'UNSUBMITTED'
	`
	result, err := r.pool.Exec(ctx, query, id, processID, progressURL)
	if err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// TransitionState переводит заказ в состояние next через guarded UPDATE.
func (r *OrderRepo) TransitionState(ctx context.Context, id uuid.UUID, next domain.OrderState, errMsg string) (bool, error) {
	sources, ok := transitionSources[next]
	if !ok {
		return false, fmt.Errorf("%w: no transition into %s", ErrInvalidState, next)
	}

	query := `
		UPDATE extraction_orders
		SET state = $2, error = $3, updated_at = now()
		WHERE id = $1 AND state = ANY($4)
	`
	result, err := r.pool.Exec(ctx, query, id, next, nullString(errMsg), sources)
	if err != nil {
		return false, fmt.Errorf("transition to %s: %w", next, err)
	}
	return result.RowsAffected() > 0, nil
}

// TryStartDownload атомарно начинает загрузку результатов.
func (r *OrderRepo) TryStartDownload(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE extraction_orders
		SET download_status = 'DOWNLOADING', updated_at = now()
		WHERE id = $1 AND download_status = 'UNKNOWN'
	`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("start download: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// SetDownloadStatus выставляет download_status.
func (r *OrderRepo) SetDownloadStatus(ctx context.Context, id uuid.UUID, status domain.DownloadStatus) error {
	query := `
		UPDATE extraction_orders
		SET download_status = $2, updated_at = now()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("set download status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// scanOrder сканирует одну строку в ExtractionOrder.
func scanOrder(row pgx.Row) (*domain.ExtractionOrder, error) {
	var order domain.ExtractionOrder
	var optionsJSON []byte
	var polyfile, processID, progressURL, orderError *string

	err := row.Scan(
		&order.ID,
		&order.OrdererID,
		&order.Formats,
		&optionsJSON,
		&order.Geometry.West,
		&order.Geometry.South,
		&order.Geometry.East,
		&order.Geometry.North,
		&polyfile,
		&processID,
		&progressURL,
		&order.State,
		&order.DownloadStatus,
		&orderError,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if optionsJSON != nil {
		if err := json.Unmarshal(optionsJSON, &order.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	if polyfile != nil {
		order.Geometry.Polyfile = *polyfile
	}
	order.ProcessID = processID
	order.ProgressURL = progressURL
	if orderError != nil {
		order.Error = *orderError
	}

	return &order, nil
}

// collectOrders сканирует все строки результата.
func collectOrders(rows pgx.Rows) ([]domain.ExtractionOrder, error) {
	var orders []domain.ExtractionOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
