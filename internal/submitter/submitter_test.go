package submitter

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/domain"
	"github.com/shaiso/Excerpta/internal/jobqueue"
	"github.com/shaiso/Excerpta/internal/repo"
)

// --- Fakes ---

type fakeOrderStore struct {
	orders           map[uuid.UUID]*domain.ExtractionOrder
	markSubmittedErr error
	submitted        []uuid.UUID
}

func newFakeOrderStore(orders ...*domain.ExtractionOrder) *fakeOrderStore {
	s := &fakeOrderStore{orders: make(map[uuid.UUID]*domain.ExtractionOrder)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeOrderStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionOrder, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *fakeOrderStore) ListUnsubmitted(ctx context.Context, limit int) ([]domain.ExtractionOrder, error) {
	var out []domain.ExtractionOrder
	for _, order := range s.orders {
		if !order.IsSubmitted() {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) MarkSubmitted(ctx context.Context, id uuid.UUID, processID, progressURL string) error {
	if s.markSubmittedErr != nil {
		return s.markSubmittedErr
	}
	order := s.orders[id]
	order.MarkQueued(processID, progressURL)
	s.submitted = append(s.submitted, id)
	return nil
}

type fakeDirectory struct {
	orderers map[uuid.UUID]domain.Orderer
}

func (d *fakeDirectory) GetByID(ctx context.Context, id uuid.UUID) (domain.Orderer, error) {
	user, ok := d.orderers[id]
	if !ok {
		return domain.Orderer{}, repo.ErrNotFound
	}
	return user, nil
}

type createCall struct {
	callbackURL string
	queueName   string
}

type fakeJobCreator struct {
	err   error
	calls []createCall
}

func (c *fakeJobCreator) CreateJob(ctx context.Context, order *domain.ExtractionOrder, callbackURL, queueName string) error {
	c.calls = append(c.calls, createCall{callbackURL: callbackURL, queueName: queueName})
	if c.err != nil {
		return c.err
	}
	order.MarkQueued("job-"+order.ID.String()[:8], "http://conversion/jobs/1/")
	return nil
}

type fakeQueue struct {
	name     string
	enqueued []*jobqueue.Job
}

func (q *fakeQueue) Name() string { return q.name }

func (q *fakeQueue) Enqueue(ctx context.Context, job *jobqueue.Job) error {
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *fakeQueue) JobIDs(ctx context.Context) ([]string, error) { return nil, nil }

func (q *fakeQueue) FetchJob(ctx context.Context, id string) (*jobqueue.Job, error) {
	return nil, nil
}

func (q *fakeQueue) SetStatus(ctx context.Context, id, status string) error { return nil }

func (q *fakeQueue) UpdateMeta(ctx context.Context, id string, m map[string]string) error {
	return nil
}

func (q *fakeQueue) Remove(ctx context.Context, id string) error { return nil }

// --- Helpers ---

func newTestSubmitter(orders *fakeOrderStore, orderers *fakeDirectory, client *fakeJobCreator, queues ...jobqueue.Queue) *Submitter {
	if len(queues) == 0 {
		queues = []jobqueue.Queue{&fakeQueue{name: "default"}, &fakeQueue{name: "high"}}
	}
	return New(Config{
		Orders:          orders,
		Orderers:        orderers,
		Client:          client,
		Queues:          queues,
		CallbackBaseURL: "http://core:8080/",
		ExclusiveGroup:  "osm_exclusive",
	})
}

func unsubmittedOrder() *domain.ExtractionOrder {
	geometry, _ := domain.NewBoundingBox(8.28, 47.0, 8.72, 47.25)
	return domain.NewExtractionOrder(uuid.New(), []string{"fgdb", "gpkg"}, nil, geometry)
}

// --- Tests ---

func TestSubmitOrder(t *testing.T) {
	order := unsubmittedOrder()
	orders := newFakeOrderStore(order)
	client := &fakeJobCreator{}
	defaultQueue := &fakeQueue{name: "default"}
	highQueue := &fakeQueue{name: "high"}

	s := newTestSubmitter(orders, &fakeDirectory{}, client, defaultQueue, highQueue)

	if err := s.SubmitOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.calls) != 1 {
		t.Fatalf("expected 1 CreateJob call, got %d", len(client.calls))
	}
	call := client.calls[0]
	if call.callbackURL != "http://core:8080/job_progress/"+order.ID.String() {
		t.Errorf("unexpected callback url: %q", call.callbackURL)
	}
	// Неизвестный пользователь идёт в обычную очередь.
	if call.queueName != "default" {
		t.Errorf("expected default queue, got %q", call.queueName)
	}

	if len(orders.submitted) != 1 {
		t.Fatalf("expected order marked submitted, got %v", orders.submitted)
	}

	if len(defaultQueue.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(defaultQueue.enqueued))
	}
	job := defaultQueue.enqueued[0]
	if job.Status != jobqueue.StatusQueued {
		t.Errorf("expected queued status, got %q", job.Status)
	}
	if job.Payload["order_id"] != order.ID.String() {
		t.Errorf("unexpected order_id in payload: %q", job.Payload["order_id"])
	}
	if job.Payload["formats"] != "fgdb,gpkg" {
		t.Errorf("unexpected formats in payload: %q", job.Payload["formats"])
	}
	if job.Payload["callback_url"] != call.callbackURL {
		t.Errorf("unexpected callback_url in payload: %q", job.Payload["callback_url"])
	}
	if job.Payload["west"] != "8.28" || job.Payload["north"] != "47.25" {
		t.Errorf("unexpected extent in payload: %v", job.Payload)
	}
	if len(highQueue.enqueued) != 0 {
		t.Errorf("high queue must stay empty, got %d jobs", len(highQueue.enqueued))
	}
}

func TestSubmitOrder_ExclusiveGroupGetsHighQueue(t *testing.T) {
	order := unsubmittedOrder()
	orders := newFakeOrderStore(order)
	orderers := &fakeDirectory{orderers: map[uuid.UUID]domain.Orderer{
		order.OrdererID: {ID: order.OrdererID, Groups: []string{"osm_exclusive"}},
	}}
	client := &fakeJobCreator{}
	highQueue := &fakeQueue{name: "high"}

	s := newTestSubmitter(orders, orderers, client, &fakeQueue{name: "default"}, highQueue)

	if err := s.SubmitOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls[0].queueName != "high" {
		t.Errorf("expected high queue, got %q", client.calls[0].queueName)
	}
	if len(highQueue.enqueued) != 1 {
		t.Errorf("expected job in high queue, got %d", len(highQueue.enqueued))
	}
}

func TestSubmitOrder_PolyfilePayload(t *testing.T) {
	geometry, _ := domain.NewPolyfile("region\n1\n 8.0 47.0\nEND\nEND\n")
	order := domain.NewExtractionOrder(uuid.New(), []string{"pbf"}, nil, geometry)
	orders := newFakeOrderStore(order)
	defaultQueue := &fakeQueue{name: "default"}

	s := newTestSubmitter(orders, &fakeDirectory{}, &fakeJobCreator{}, defaultQueue)

	if err := s.SubmitOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := defaultQueue.enqueued[0]
	if job.Payload["polyfile"] == "" {
		t.Error("expected polyfile in payload")
	}
	if _, ok := job.Payload["west"]; ok {
		t.Error("polyfile order must not carry scalar bounds")
	}
}

func TestSubmitOrder_AlreadySubmitted(t *testing.T) {
	order := unsubmittedOrder()
	order.MarkQueued("job-1", "http://conversion/jobs/1/")
	orders := newFakeOrderStore(order)
	client := &fakeJobCreator{}

	s := newTestSubmitter(orders, &fakeDirectory{}, client)

	// Идемпотентность: повторная отправка — no-op без ошибки.
	if err := s.SubmitOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("no CreateJob expected, got %d calls", len(client.calls))
	}
}

func TestSubmitOrder_CreateJobFailure(t *testing.T) {
	order := unsubmittedOrder()
	orders := newFakeOrderStore(order)
	client := &fakeJobCreator{err: errors.New("service rejected job")}
	defaultQueue := &fakeQueue{name: "default"}

	s := newTestSubmitter(orders, &fakeDirectory{}, client, defaultQueue)

	if err := s.SubmitOrder(context.Background(), order.ID); err == nil {
		t.Fatal("expected error")
	}

	// Заказ остаётся UNSUBMITTED без следов частичной отправки.
	if len(orders.submitted) != 0 {
		t.Errorf("order must not be marked submitted, got %v", orders.submitted)
	}
	if len(defaultQueue.enqueued) != 0 {
		t.Errorf("nothing must be enqueued, got %d", len(defaultQueue.enqueued))
	}
	if orders.orders[order.ID].IsSubmitted() {
		t.Error("stored order must stay unsubmitted")
	}
}

func TestSubmitOrder_ConcurrentSubmissionIsBenign(t *testing.T) {
	order := unsubmittedOrder()
	orders := newFakeOrderStore(order)
	orders.markSubmittedErr = repo.ErrInvalidState
	client := &fakeJobCreator{}
	defaultQueue := &fakeQueue{name: "default"}

	s := newTestSubmitter(orders, &fakeDirectory{}, client, defaultQueue)

	// Конкурирующий submitter успел первым: его job уже в очереди,
	// наш проигравший вызов завершается без ошибки и без enqueue.
	if err := s.SubmitOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("concurrent submission must be benign: %v", err)
	}
	if len(defaultQueue.enqueued) != 0 {
		t.Errorf("losing submitter must not enqueue, got %d", len(defaultQueue.enqueued))
	}
}

func TestSubmitOrder_UnknownQueue(t *testing.T) {
	order := unsubmittedOrder()
	orders := newFakeOrderStore(order)
	orderers := &fakeDirectory{orderers: map[uuid.UUID]domain.Orderer{
		order.OrdererID: {ID: order.OrdererID, Groups: []string{"osm_exclusive"}},
	}}

	// Очередь high не сконфигурирована.
	s := newTestSubmitter(orders, orderers, &fakeJobCreator{}, &fakeQueue{name: "default"})

	err := s.SubmitOrder(context.Background(), order.ID)
	if !errors.Is(err, ErrUnknownQueue) {
		t.Fatalf("expected ErrUnknownQueue, got %v", err)
	}
}
