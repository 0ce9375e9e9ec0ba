package api

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/domain"
	"github.com/shaiso/Excerpta/internal/mq"
	"github.com/shaiso/Excerpta/internal/repo"
)

// Reconciler сверяет один заказ с конвертационным сервисом.
type Reconciler interface {
	ReconcileOrder(ctx context.Context, orderID uuid.UUID) (*domain.ExtractionOrder, error)
}

// SyncSubmitter отправляет заказ в конвертационный сервис синхронно.
type SyncSubmitter interface {
	SubmitOrder(ctx context.Context, orderID uuid.UUID) error
}

// Estimator оценивает размеры результата до отправки заказа.
type Estimator interface {
	EstimatedFileSize(ctx context.Context, west, south, east, north float64) (int64, error)
	FormatSizeEstimation(ctx context.Context, estimatedPbfSize int64, detailLevel int) (map[string]int64, error)
}

// FileStorage отдаёт сохранённые файлы результатов.
type FileStorage interface {
	Open(path string) (io.ReadCloser, error)
}

// Handler — главный обработчик API с зависимостями.
//
// Отправка заказа идёт одним из двух путей: через publisher
// (event-driven, ошибки отправки разруливает Submitter-сервис) или
// через syncSubmitter (ошибка отправки возвращается клиенту сразу).
// Если задан publisher, он имеет приоритет.
type Handler struct {
	orders        repo.OrderStore
	orderers      repo.OrdererStore
	files         repo.OutputFileStore
	notifications repo.NotificationStore
	storage       FileStorage
	publisher     *mq.Publisher
	syncSubmitter SyncSubmitter
	reconciler    Reconciler
	estimator     Estimator
	logger        *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orders        repo.OrderStore
	Orderers      repo.OrdererStore
	Files         repo.OutputFileStore
	Notifications repo.NotificationStore
	Storage       FileStorage
	Publisher     *mq.Publisher
	SyncSubmitter SyncSubmitter
	Reconciler    Reconciler
	Estimator     Estimator
	Logger        *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orders:        cfg.Orders,
		orderers:      cfg.Orderers,
		files:         cfg.Files,
		notifications: cfg.Notifications,
		storage:       cfg.Storage,
		publisher:     cfg.Publisher,
		syncSubmitter: cfg.SyncSubmitter,
		reconciler:    cfg.Reconciler,
		estimator:     cfg.Estimator,
		logger:        logger,
	}
}
