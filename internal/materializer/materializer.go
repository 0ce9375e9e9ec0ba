package materializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/conversion"
	"github.com/shaiso/Excerpta/internal/domain"
	"github.com/shaiso/Excerpta/internal/repo"
	"github.com/shaiso/Excerpta/internal/telemetry"
)

// Downloader скачивает артефакт результата по URL.
type Downloader interface {
	DownloadResult(ctx context.Context, resultURL string) ([]byte, error)
}

// Storage сохраняет байты артефакта и возвращает storage path.
type Storage interface {
	Save(fileName string, data []byte) (string, error)
}

// OrderDownloadStore — часть OrderStore, нужная материализатору.
type OrderDownloadStore interface {
	TryStartDownload(ctx context.Context, id uuid.UUID) (bool, error)
	SetDownloadStatus(ctx context.Context, id uuid.UUID, status domain.DownloadStatus) error
}

// Materializer скачивает результаты job и создаёт OutputFiles.
type Materializer struct {
	orders     OrderDownloadStore
	files      repo.OutputFileStore
	downloader Downloader
	storage    Storage
	logger     *slog.Logger
}

// Config — конфигурация Materializer.
type Config struct {
	Orders     OrderDownloadStore
	Files      repo.OutputFileStore
	Downloader Downloader
	Storage    Storage
	Logger     *slog.Logger
}

// New создаёт Materializer.
func New(cfg Config) *Materializer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{
		orders:     cfg.Orders,
		files:      cfg.Files,
		downloader: cfg.Downloader,
		storage:    cfg.Storage,
		logger:     logger,
	}
}

// Materialize скачивает готовые форматы snapshot'а и создаёт OutputFiles.
//
// Полностью пропускается, если download_status != UNKNOWN: либо загрузка
// уже идёт в параллельном вызове, либо всё уже скачано. Это и есть
// гарантия «не более одной конкурентной материализации» — перекрывающиеся
// проходы harvester'а не скачивают одно и то же дважды.
//
// Если хотя бы один формат не готов или не скачался, результат —
// ErrPartialDownload: download_status откатывается в UNKNOWN, при этом
// успешно сохранённые форматы не удаляются — повторная попытка их
// пропустит по уникальности (order, format).
func (m *Materializer) Materialize(ctx context.Context, order *domain.ExtractionOrder, snapshot *conversion.JobStatusSnapshot) error {
	started, err := m.orders.TryStartDownload(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("start download for order %s: %w", order.ID, err)
	}
	if !started {
		m.logger.Debug("download already in progress or finished, skipping",
			"order_id", order.ID,
		)
		return nil
	}

	success := true
	for _, format := range snapshot.GISFormats {
		if format.Progress != conversion.ProgressSuccessful {
			m.logger.Debug("format not ready yet",
				"order_id", order.ID,
				"format", format.Format,
				"progress", format.Progress,
			)
			success = false
			continue
		}

		if err := m.downloadFormat(ctx, order, format); err != nil {
			m.logger.Warn("format download failed",
				"order_id", order.ID,
				"format", format.Format,
				"error", err,
			)
			telemetry.Downloads.WithLabelValues("failure").Inc()
			success = false
		}
	}

	if !success {
		if err := m.orders.SetDownloadStatus(ctx, order.ID, domain.DownloadStatusUnknown); err != nil {
			return fmt.Errorf("revert download status: %w", err)
		}
		return ErrPartialDownload
	}

	if err := m.orders.SetDownloadStatus(ctx, order.ID, domain.DownloadStatusAvailable); err != nil {
		return fmt.Errorf("finish download: %w", err)
	}

	m.logger.Info("all result files materialized",
		"order_id", order.ID,
		"formats", len(snapshot.GISFormats),
	)
	return nil
}

// downloadFormat скачивает и сохраняет один формат.
// Идемпотентен: если OutputFile для пары (order, format) уже есть,
// ничего не делает.
func (m *Materializer) downloadFormat(ctx context.Context, order *domain.ExtractionOrder, format conversion.FormatResult) error {
	exists, err := m.files.ExistsForFormat(ctx, order.ID, format.Format)
	if err != nil {
		return fmt.Errorf("check existing output file: %w", err)
	}
	if exists {
		m.logger.Debug("output file already materialized, skipping",
			"order_id", order.ID,
			"format", format.Format,
		)
		return nil
	}

	data, err := m.downloader.DownloadResult(ctx, format.ResultURL)
	if err != nil {
		return fmt.Errorf("download %s: %w", format.Format, err)
	}

	file := domain.NewOutputFile(order.ID, format.Format)
	path, err := m.storage.Save(file.FileName(), data)
	if err != nil {
		return fmt.Errorf("store %s: %w", format.Format, err)
	}
	file.StoragePath = path

	if err := m.files.Create(ctx, file); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			// Конкурирующий проход успел первым — это не ошибка.
			m.logger.Debug("output file created concurrently",
				"order_id", order.ID,
				"format", format.Format,
			)
			return nil
		}
		return fmt.Errorf("create output file record: %w", err)
	}

	telemetry.Downloads.WithLabelValues("success").Inc()

	m.logger.Info("result file materialized",
		"order_id", order.ID,
		"format", format.Format,
		"size_bytes", len(data),
		"public_id", file.PublicIdentifier,
	)
	return nil
}
