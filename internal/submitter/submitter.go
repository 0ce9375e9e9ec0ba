package submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/domain"
	"github.com/shaiso/Excerpta/internal/jobqueue"
	"github.com/shaiso/Excerpta/internal/mq"
	"github.com/shaiso/Excerpta/internal/repo"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
	defaultPrefetch     = 10
)

// OrderStore — часть repo.OrderStore, нужная submitter'у.
type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionOrder, error)
	ListUnsubmitted(ctx context.Context, limit int) ([]domain.ExtractionOrder, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, processID, progressURL string) error
}

// OrdererDirectory отдаёт пользователя для выбора приоритетной очереди.
type OrdererDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Orderer, error)
}

// JobCreator создаёт job во внешнем конвертационном сервисе.
type JobCreator interface {
	CreateJob(ctx context.Context, order *domain.ExtractionOrder, callbackURL, queueName string) error
}

// Submitter отправляет UNSUBMITTED-заказы в конвертационный сервис.
//
// Submitter — stateless компонент системы, который:
//   - Получает события order.created из RabbitMQ (event-driven)
//   - Периодически проверяет UNSUBMITTED-заказы в БД (polling fallback)
//   - Создаёт job во внешнем сервисе и помечает заказ QUEUED
//   - Регистрирует job в backing queue по приоритету пользователя
type Submitter struct {
	orders   OrderStore
	orderers OrdererDirectory
	client   JobCreator
	queues   map[string]jobqueue.Queue

	// MQ
	conn     *mq.Connection
	consumer *mq.Consumer

	// Configuration
	callbackBaseURL string
	exclusiveGroup  string
	pollInterval    time.Duration
	batchSize       int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Submitter.
type Config struct {
	Orders   OrderStore
	Orderers OrdererDirectory
	Client   JobCreator
	Queues   []jobqueue.Queue

	// MQ (опционально; если nil — работает только polling)
	Conn *mq.Connection

	// CallbackBaseURL — база для progress callback URL
	// (к ней добавляется /job_progress/{order_id}).
	CallbackBaseURL string

	// ExclusiveGroup — группа пользователей с приоритетной очередью.
	ExclusiveGroup string

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество заказов за один poll (default: 100)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Submitter.
func New(cfg Config) *Submitter {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	queues := make(map[string]jobqueue.Queue, len(cfg.Queues))
	for _, q := range cfg.Queues {
		queues[q.Name()] = q
	}

	return &Submitter{
		orders:          cfg.Orders,
		orderers:        cfg.Orderers,
		client:          cfg.Client,
		queues:          queues,
		conn:            cfg.Conn,
		callbackBaseURL: strings.TrimRight(cfg.CallbackBaseURL, "/"),
		exclusiveGroup:  cfg.ExclusiveGroup,
		pollInterval:    pollInterval,
		batchSize:       batchSize,
		logger:          logger,
	}
}

// Start запускает Submitter.
//
// Запускает:
//   - Consumer для orders.created (если сконфигурирован MQ)
//   - Polling горутину для fallback
func (s *Submitter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("starting submitter",
		"poll_interval", s.pollInterval,
		"batch_size", s.batchSize,
	)

	if s.conn != nil {
		s.consumer = mq.NewConsumer(s.conn, s.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueOrdersCreated),
			Handler:  s.handleOrderCreated,
			Prefetch: defaultPrefetch,
		})

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("order consumer error", "error", err)
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop(ctx)
	}()

	s.logger.Info("submitter started")
	return nil
}

// Stop останавливает Submitter.
func (s *Submitter) Stop() {
	s.logger.Info("stopping submitter...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	if s.consumer != nil {
		s.consumer.Stop()
	}

	s.wg.Wait()

	s.logger.Info("submitter stopped")
}

// SubmitOrder отправляет один заказ в конвертационный сервис.
//
// Идемпотентен: уже отправленный заказ пропускается. При сбое отправки
// заказ остаётся UNSUBMITTED без следов частичной отправки — ошибка
// возвращается вызывающему (синхронный путь отдаёт её клиенту API,
// асинхронный возвращает сообщение в очередь).
func (s *Submitter) SubmitOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order.IsSubmitted() {
		s.logger.Debug("order already submitted, skipping", "order_id", orderID)
		return nil
	}

	queueName, groups, err := s.queueForOrderer(ctx, order.OrdererID)
	if err != nil {
		return err
	}
	queue, ok := s.queues[queueName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}

	callbackURL := s.callbackBaseURL + "/job_progress/" + order.ID.String()
	if err := s.client.CreateJob(ctx, order, callbackURL, queueName); err != nil {
		return fmt.Errorf("create job for order %s: %w", orderID, err)
	}

	err = s.orders.MarkSubmitted(ctx, order.ID, *order.ProcessID, *order.ProgressURL)
	if errors.Is(err, repo.ErrInvalidState) {
		// Конкурирующий submitter успел первым; его job уже в очереди.
		s.logger.Warn("order submitted concurrently", "order_id", orderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark order %s submitted: %w", orderID, err)
	}

	if err := queue.Enqueue(ctx, jobPayload(order, queueName, callbackURL)); err != nil {
		// Job уже создан и заказ помечен QUEUED; harvester увидит
		// отсутствие записи в registry и пометит заказ FAILED.
		return fmt.Errorf("enqueue job for order %s: %w", orderID, err)
	}

	s.logger.Info("order submitted",
		"order_id", order.ID,
		"job_id", *order.ProcessID,
		"queue", queueName,
		"groups", groups,
	)
	return nil
}

// queueForOrderer выбирает имя очереди по группам пользователя.
func (s *Submitter) queueForOrderer(ctx context.Context, ordererID uuid.UUID) (string, []string, error) {
	user, err := s.orderers.GetByID(ctx, ordererID)
	if errors.Is(err, repo.ErrNotFound) {
		// Неизвестный пользователь не блокирует отправку,
		// он просто идёт в обычную очередь.
		return jobqueue.PriorityQueueName(nil, s.exclusiveGroup), nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("load orderer %s: %w", ordererID, err)
	}
	return jobqueue.PriorityQueueName(user.Groups, s.exclusiveGroup), user.Groups, nil
}

// jobPayload формирует запись backing queue для отправленного заказа.
func jobPayload(order *domain.ExtractionOrder, queueName, callbackURL string) *jobqueue.Job {
	payload := map[string]string{
		"order_id":     order.ID.String(),
		"formats":      strings.Join(order.Formats, ","),
		"callback_url": callbackURL,
	}
	if order.Geometry.Polyfile != "" {
		payload["polyfile"] = order.Geometry.Polyfile
	} else {
		payload["west"] = strconv.FormatFloat(order.Geometry.West, 'f', -1, 64)
		payload["south"] = strconv.FormatFloat(order.Geometry.South, 'f', -1, 64)
		payload["east"] = strconv.FormatFloat(order.Geometry.East, 'f', -1, 64)
		payload["north"] = strconv.FormatFloat(order.Geometry.North, 'f', -1, 64)
	}

	return &jobqueue.Job{
		ID:         *order.ProcessID,
		Queue:      queueName,
		Status:     jobqueue.StatusQueued,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
}

// pollLoop — цикл polling для fallback.
func (s *Submitter) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем заказы, созданные пока были выключены)
	s.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (s *Submitter) poll(ctx context.Context) {
	orders, err := s.orders.ListUnsubmitted(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list unsubmitted orders", "error", err)
		return
	}

	if len(orders) == 0 {
		return
	}

	s.logger.Debug("poll found unsubmitted orders", "count", len(orders))

	for i := range orders {
		order := &orders[i]

		if err := s.SubmitOrder(ctx, order.ID); err != nil {
			s.logger.Error("failed to submit order from poll",
				"order_id", order.ID,
				"error", err,
			)
		}
	}
}
