package harvester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/conversion"
	"github.com/shaiso/Excerpta/internal/domain"
	"github.com/shaiso/Excerpta/internal/jobqueue"
	"github.com/shaiso/Excerpta/internal/repo"
	"github.com/shaiso/Excerpta/internal/telemetry"
)

// OrderStore — часть repo.OrderStore, нужная harvester'у.
type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionOrder, error)
	GetByProcessID(ctx context.Context, processID string) (*domain.ExtractionOrder, error)
	TransitionState(ctx context.Context, id uuid.UUID, next domain.OrderState, errMsg string) (bool, error)
}

// OrdererDirectory отдаёт пользователя-заказчика для уведомлений.
type OrdererDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Orderer, error)
}

// ConversionClient — часть клиента конвертационного сервиса,
// нужная harvester'у.
type ConversionClient interface {
	JobStatus(ctx context.Context, order *domain.ExtractionOrder) (*conversion.JobStatusSnapshot, error)
	EstimatedFileSize(ctx context.Context, west, south, east, north float64) (int64, error)
}

// ResultMaterializer скачивает результаты завершённого job.
type ResultMaterializer interface {
	Materialize(ctx context.Context, order *domain.ExtractionOrder, snapshot *conversion.JobStatusSnapshot) error
}

// UserNotifier доставляет уведомление пользователю.
type UserNotifier interface {
	Notify(ctx context.Context, user domain.Orderer, level domain.NotificationLevel, message string, viaEmail bool) error
}

// Harvester сверяет незавершённые заказы с внешним сервисом.
type Harvester struct {
	orders       OrderStore
	orderers     OrdererDirectory
	queues       []jobqueue.Queue
	client       ConversionClient
	materializer ResultMaterializer
	notifier     UserNotifier
	logger       *slog.Logger
}

// Config — конфигурация Harvester. Queues перечисляются в порядке
// приоритета: job ищется в первой очереди, где он числится.
type Config struct {
	Orders       OrderStore
	Orderers     OrdererDirectory
	Queues       []jobqueue.Queue
	Client       ConversionClient
	Materializer ResultMaterializer
	Notifier     UserNotifier
	Logger       *slog.Logger
}

// New создаёт Harvester.
func New(cfg Config) *Harvester {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Harvester{
		orders:       cfg.Orders,
		orderers:     cfg.Orderers,
		queues:       cfg.Queues,
		client:       cfg.Client,
		materializer: cfg.Materializer,
		notifier:     cfg.Notifier,
		logger:       logger,
	}
}

// Tick выполняет один проход реконсилиации по всем очередям.
//
// Ошибка одного job не прерывает проход: она логируется, считается
// в метрике и обход продолжается со следующего job. Возвращается
// только ошибка перечисления registry — без списка jobs проход
// не имеет смысла.
func (h *Harvester) Tick(ctx context.Context) error {
	telemetry.HarvestTicks.Inc()

	ids, err := h.listJobIDs(ctx)
	if err != nil {
		return fmt.Errorf("list job ids: %w", err)
	}
	telemetry.InFlightJobs.Set(float64(len(ids)))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.reconcileJob(ctx, id); err != nil {
			telemetry.HarvestJobErrors.Inc()
			h.logger.Error("job reconciliation failed",
				"job_id", id,
				"error", err,
			)
		}
	}
	return nil
}

// ReconcileOrder реконсилирует один заказ вне планового прохода.
// Точка входа для progress callback'а конвертационного сервиса.
// Возвращает актуальное состояние заказа.
func (h *Harvester) ReconcileOrder(ctx context.Context, orderID uuid.UUID) (*domain.ExtractionOrder, error) {
	order, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsSubmitted() {
		return nil, ErrOrderNotSubmitted
	}

	if h.settled(order) {
		return order, nil
	}

	if err := h.reconcileOrder(ctx, order); err != nil {
		return nil, err
	}
	return h.orders.GetByID(ctx, orderID)
}

// listJobIDs собирает идентификаторы jobs по всем registry,
// сохраняя порядок приоритета очередей и убирая дубликаты.
func (h *Harvester) listJobIDs(ctx context.Context) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})
	for _, q := range h.queues {
		queueIDs, err := q.JobIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", q.Name(), err)
		}
		for _, id := range queueIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// reconcileJob сверяет один job registry с владеющим заказом.
func (h *Harvester) reconcileJob(ctx context.Context, jobID string) error {
	order, err := h.orders.GetByProcessID(ctx, jobID)
	if errors.Is(err, repo.ErrNotFound) {
		// Осиротевшая запись registry: заказа под неё больше нет.
		h.logger.Warn("job has no owning order, dropping from registry", "job_id", jobID)
		h.removeJob(ctx, jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order for job %s: %w", jobID, err)
	}

	if h.settled(order) {
		h.removeJob(ctx, jobID)
		return nil
	}

	job, queue, err := h.fetchJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return h.failVanished(ctx, order, jobID)
	}

	h.attachJobMetrics(ctx, queue, order, job)

	return h.reconcileOrder(ctx, order)
}

// reconcileOrder опрашивает сервис и применяет снимок к заказу.
func (h *Harvester) reconcileOrder(ctx context.Context, order *domain.ExtractionOrder) error {
	snapshot, err := h.client.JobStatus(ctx, order)
	if err != nil {
		return fmt.Errorf("job status for order %s: %w", order.ID, err)
	}
	if snapshot == nil {
		return nil
	}
	return h.applySnapshot(ctx, order, snapshot)
}

// applySnapshot сворачивает снимок статуса в переход заказа.
func (h *Harvester) applySnapshot(ctx context.Context, order *domain.ExtractionOrder, snapshot *conversion.JobStatusSnapshot) error {
	switch snapshot.Status {
	case conversion.JobStatusQueued:
		// Заказ уже QUEUED с момента отправки, переход не нужен.
		return nil

	case conversion.JobStatusStarted:
		return h.transition(ctx, order, domain.OrderStateProcessing, "")

	case conversion.JobStatusDone:
		if !snapshot.Succeeded() {
			return h.transition(ctx, order, domain.OrderStateFailed, "conversion finished with failed formats")
		}
		return h.finish(ctx, order, snapshot)

	case conversion.JobStatusError:
		return h.transition(ctx, order, domain.OrderStateFailed, "conversion failed")

	case conversion.JobStatusAborted:
		return h.transition(ctx, order, domain.OrderStateAborted, "conversion aborted by service")

	default:
		h.logger.Warn("unknown job status in snapshot",
			"order_id", order.ID,
			"status", snapshot.Status,
		)
		return nil
	}
}

// finish переводит заказ в FINISHED и материализует результаты.
//
// Материализация выполняется и тогда, когда переход уже был сделан
// раньше: после частично неудавшейся загрузки download_status
// откатывается в UNKNOWN и следующий проход пробует ещё раз.
// Job снимается с учёта только когда все файлы доступны.
func (h *Harvester) finish(ctx context.Context, order *domain.ExtractionOrder, snapshot *conversion.JobStatusSnapshot) error {
	changed, err := h.orders.TransitionState(ctx, order.ID, domain.OrderStateFinished, "")
	if err != nil {
		return err
	}
	if changed {
		telemetry.OrderTransitions.WithLabelValues(string(domain.OrderStateFinished)).Inc()
		h.notifyOutcome(ctx, order, domain.OrderStateFinished, "")
	}

	if err := h.materializer.Materialize(ctx, order, snapshot); err != nil {
		// Частичная загрузка не ошибка прохода: статус откатился,
		// следующий Tick докачает недостающие форматы.
		h.logger.Warn("result materialization incomplete, will retry",
			"order_id", order.ID,
			"error", err,
		)
		return nil
	}

	if order.ProcessID != nil {
		h.removeJob(ctx, *order.ProcessID)
	}
	return nil
}

// transition выполняет guarded-переход и уведомляет пользователя,
// если строка действительно перешла в терминальное состояние.
func (h *Harvester) transition(ctx context.Context, order *domain.ExtractionOrder, next domain.OrderState, errMsg string) error {
	changed, err := h.orders.TransitionState(ctx, order.ID, next, errMsg)
	if err != nil {
		return err
	}
	if changed {
		telemetry.OrderTransitions.WithLabelValues(string(next)).Inc()
		h.logger.Info("order state changed",
			"order_id", order.ID,
			"state", next,
		)
		if next.IsTerminal() {
			h.notifyOutcome(ctx, order, next, errMsg)
		}
	}
	if next.IsTerminal() && order.ProcessID != nil {
		h.removeJob(ctx, *order.ProcessID)
	}
	return nil
}

// failVanished помечает заказ FAILED: job числился в registry,
// но записи о нём больше нет.
func (h *Harvester) failVanished(ctx context.Context, order *domain.ExtractionOrder, jobID string) error {
	h.logger.Warn("job vanished from queue",
		"job_id", jobID,
		"order_id", order.ID,
	)
	return h.transition(ctx, order, domain.OrderStateFailed, ErrJobVanished.Error())
}

// fetchJob ищет job в очередях в порядке приоритета.
// (nil, nil, nil) — job не числится ни в одной очереди.
func (h *Harvester) fetchJob(ctx context.Context, jobID string) (*jobqueue.Job, jobqueue.Queue, error) {
	for _, q := range h.queues {
		job, err := q.FetchJob(ctx, jobID)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch job %s from %s: %w", jobID, q.Name(), err)
		}
		if job != nil {
			return job, q, nil
		}
	}
	return nil, nil, nil
}

// attachJobMetrics дописывает в meta job вспомогательные метрики:
// длительность с момента постановки и оценку размера исходного pbf.
// Метрики best-effort: их сбой логируется и не влияет на реконсилиацию.
func (h *Harvester) attachJobMetrics(ctx context.Context, queue jobqueue.Queue, order *domain.ExtractionOrder, job *jobqueue.Job) {
	meta := map[string]string{
		"queue_duration_sec": strconv.FormatInt(int64(time.Since(job.EnqueuedAt).Seconds()), 10),
	}

	if order.Geometry.Polyfile == "" {
		size, err := h.client.EstimatedFileSize(ctx,
			order.Geometry.West, order.Geometry.South,
			order.Geometry.East, order.Geometry.North,
		)
		if err != nil {
			h.logger.Warn("pbf size estimation failed",
				"order_id", order.ID,
				"error", err,
			)
		} else {
			meta["estimated_pbf_size"] = strconv.FormatInt(size, 10)
		}
	}

	if err := queue.UpdateMeta(ctx, job.ID, meta); err != nil {
		h.logger.Warn("job meta update failed",
			"job_id", job.ID,
			"error", err,
		)
	}
}

// notifyOutcome уведомляет пользователя о терминальном исходе заказа.
// Сбой уведомления логируется: исход заказа уже зафиксирован в БД
// и откатывать его из-за почты нельзя.
func (h *Harvester) notifyOutcome(ctx context.Context, order *domain.ExtractionOrder, outcome domain.OrderState, detail string) {
	user, err := h.orderers.GetByID(ctx, order.OrdererID)
	if err != nil {
		h.logger.Warn("orderer lookup failed, skipping notification",
			"order_id", order.ID,
			"orderer_id", order.OrdererID,
			"error", err,
		)
		return
	}

	level, message := outcomeMessage(order.ID, outcome, detail)
	if err := h.notifier.Notify(ctx, user, level, message, true); err != nil {
		h.logger.Warn("outcome notification failed",
			"order_id", order.ID,
			"error", err,
		)
	}
}

// outcomeMessage формирует уровень и текст уведомления об исходе.
func outcomeMessage(orderID uuid.UUID, outcome domain.OrderState, detail string) (domain.NotificationLevel, string) {
	switch outcome {
	case domain.OrderStateFinished:
		return domain.NotificationLevelInfo,
			fmt.Sprintf("Your extraction order %s has been processed. The result files are ready for download.", orderID)
	case domain.OrderStateAborted:
		return domain.NotificationLevelWarning,
			fmt.Sprintf("Your extraction order %s has been canceled.", orderID)
	default:
		message := fmt.Sprintf("Your extraction order %s could not be completed.", orderID)
		if detail != "" {
			message += " Reason: " + detail + "."
		}
		return domain.NotificationLevelError, message
	}
}

// settled — заказ дошёл до конца и результатов больше не ждёт:
// терминальное состояние, а для FINISHED ещё и все файлы скачаны.
func (h *Harvester) settled(order *domain.ExtractionOrder) bool {
	if !order.State.IsTerminal() {
		return false
	}
	if order.State == domain.OrderStateFinished {
		return order.DownloadStatus == domain.DownloadStatusAvailable
	}
	return true
}

// removeJob снимает job со всех registry. Best-effort.
func (h *Harvester) removeJob(ctx context.Context, jobID string) {
	for _, q := range h.queues {
		if err := q.Remove(ctx, jobID); err != nil {
			h.logger.Warn("job registry cleanup failed",
				"job_id", jobID,
				"queue", q.Name(),
				"error", err,
			)
		}
	}
}
