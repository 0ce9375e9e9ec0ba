package harvester

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/conversion"
	"github.com/shaiso/Excerpta/internal/domain"
	"github.com/shaiso/Excerpta/internal/jobqueue"
	"github.com/shaiso/Excerpta/internal/repo"
)

// --- Fakes ---

type fakeOrderStore struct {
	orders      map[uuid.UUID]*domain.ExtractionOrder
	transitions []domain.OrderState
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

func (s *fakeOrderStore) GetByProcessID(ctx context.Context, processID string) (*domain.ExtractionOrder, error) {
	for _, order := range s.orders {
		if order.ProcessID != nil && *order.ProcessID == processID {
			copied := *order
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

// TransitionState повторяет семантику guarded UPDATE: изменение
// фиксируется только если переход допустим и состояние реально меняется.
func (s *fakeOrderStore) TransitionState(ctx context.Context, id uuid.UUID, next domain.OrderState, errMsg string) (bool, error) {
	order, ok := s.orders[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if order.State == next || !order.State.CanTransitionTo(next) {
		return false, nil
	}
	order.State = next
	order.Error = errMsg
	s.transitions = append(s.transitions, next)
	return true, nil
}

type fakeQueue struct {
	name     string
	registry []string
	jobs     map[string]*jobqueue.Job

	removed []string
	meta    map[string]map[string]string
}

func newFakeQueue(name string) *fakeQueue {
	return &fakeQueue{
		name: name,
		jobs: make(map[string]*jobqueue.Job),
		meta: make(map[string]map[string]string),
	}
}

func (q *fakeQueue) addJob(job *jobqueue.Job) {
	q.registry = append(q.registry, job.ID)
	q.jobs[job.ID] = job
}

func (q *fakeQueue) Name() string { return q.name }

func (q *fakeQueue) Enqueue(ctx context.Context, job *jobqueue.Job) error {
	q.addJob(job)
	return nil
}

func (q *fakeQueue) JobIDs(ctx context.Context) ([]string, error) {
	return append([]string(nil), q.registry...), nil
}

func (q *fakeQueue) FetchJob(ctx context.Context, id string) (*jobqueue.Job, error) {
	return q.jobs[id], nil
}

func (q *fakeQueue) SetStatus(ctx context.Context, id, status string) error {
	if job, ok := q.jobs[id]; ok {
		job.Status = status
	}
	return nil
}

func (q *fakeQueue) UpdateMeta(ctx context.Context, id string, meta map[string]string) error {
	if q.meta[id] == nil {
		q.meta[id] = make(map[string]string)
	}
	for k, v := range meta {
		q.meta[id][k] = v
	}
	return nil
}

func (q *fakeQueue) Remove(ctx context.Context, id string) error {
	q.removed = append(q.removed, id)
	kept := q.registry[:0]
	for _, rid := range q.registry {
		if rid != id {
			kept = append(kept, rid)
		}
	}
	q.registry = kept
	delete(q.jobs, id)
	return nil
}

type fakeConvClient struct {
	snapshots map[string]*conversion.JobStatusSnapshot // по process id
	statusErr map[string]error

	estimatedSize int64
	estimateErr   error
	estimateCalls int
}

func (c *fakeConvClient) JobStatus(ctx context.Context, order *domain.ExtractionOrder) (*conversion.JobStatusSnapshot, error) {
	if order.ProcessID == nil {
		return nil, nil
	}
	if err := c.statusErr[*order.ProcessID]; err != nil {
		return nil, err
	}
	return c.snapshots[*order.ProcessID], nil
}

func (c *fakeConvClient) EstimatedFileSize(ctx context.Context, west, south, east, north float64) (int64, error) {
	c.estimateCalls++
	if c.estimateErr != nil {
		return 0, c.estimateErr
	}
	return c.estimatedSize, nil
}

type fakeMaterializer struct {
	err   error
	calls int
}

func (m *fakeMaterializer) Materialize(ctx context.Context, order *domain.ExtractionOrder, snapshot *conversion.JobStatusSnapshot) error {
	m.calls++
	return m.err
}

type sentNotification struct {
	userID  uuid.UUID
	level   domain.NotificationLevel
	message string
}

type fakeNotifier struct {
	sent []sentNotification
}

func (n *fakeNotifier) Notify(ctx context.Context, user domain.Orderer, level domain.NotificationLevel, message string, viaEmail bool) error {
	n.sent = append(n.sent, sentNotification{userID: user.ID, level: level, message: message})
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

// --- Helpers ---

type fixture struct {
	orders       *fakeOrderStore
	orderers     *fakeDirectory
	queue        *fakeQueue
	client       *fakeConvClient
	materializer *fakeMaterializer
	notifier     *fakeNotifier
	harvester    *Harvester
}

func newFixture(orders *fakeOrderStore, queues ...jobqueue.Queue) *fixture {
	f := &fixture{
		orders: orders,
		orderers: &fakeDirectory{orderers: map[uuid.UUID]domain.Orderer{}},
		client: &fakeConvClient{
			snapshots:     map[string]*conversion.JobStatusSnapshot{},
			statusErr:     map[string]error{},
			estimatedSize: 1 << 20,
		},
		materializer: &fakeMaterializer{},
		notifier:     &fakeNotifier{},
	}
	if len(queues) > 0 {
		f.queue, _ = queues[0].(*fakeQueue)
	}
	f.harvester = New(Config{
		Orders:       orders,
		Orderers:     f.orderers,
		Queues:       queues,
		Client:       f.client,
		Materializer: f.materializer,
		Notifier:     f.notifier,
	})
	return f
}

func (f *fixture) addOrderer(order *domain.ExtractionOrder) {
	f.orderers.orderers[order.OrdererID] = domain.Orderer{
		ID:    order.OrdererID,
		Name:  "test user",
		Email: "user@example.com",
	}
}

func submittedOrder(jobID string) *domain.ExtractionOrder {
	geometry, _ := domain.NewBoundingBox(8.28, 47.0, 8.72, 47.25)
	order := domain.NewExtractionOrder(uuid.New(), []string{"fgdb"}, nil, geometry)
	order.MarkQueued(jobID, "http://conversion/jobs/"+jobID+"/")
	return order
}

func queuedJob(id string) *jobqueue.Job {
	return &jobqueue.Job{ID: id, Status: jobqueue.StatusQueued}
}

// --- Tests ---

func TestTick_StartedTransitionsToProcessing(t *testing.T) {
	order := submittedOrder("job-1")
	queue := newFakeQueue("default")
	queue.addJob(queuedJob("job-1"))

	f := newFixture(newFakeOrderStore(order), queue)
	f.addOrderer(order)
	f.client.snapshots["job-1"] = &conversion.JobStatusSnapshot{Status: conversion.JobStatusStarted}

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.orders.orders[order.ID]
	if stored.State != domain.OrderStateProcessing {
		t.Errorf("expected PROCESSING, got %s", stored.State)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("no notification expected for non-terminal state, got %v", f.notifier.sent)
	}
	if len(queue.removed) != 0 {
		t.Errorf("job must stay registered, removed %v", queue.removed)
	}

	// Вспомогательные метрики дописаны в meta job.
	meta := queue.meta["job-1"]
	if meta["queue_duration_sec"] == "" {
		t.Error("expected queue_duration_sec in job meta")
	}
	if meta["estimated_pbf_size"] == "" {
		t.Error("expected estimated_pbf_size in job meta")
	}
}

func TestTick_QueuedIsNoOp(t *testing.T) {
	order := submittedOrder("job-1")
	queue := newFakeQueue("default")
	queue.addJob(queuedJob("job-1"))

	f := newFixture(newFakeOrderStore(order), queue)
	f.client.snapshots["job-1"] = &conversion.JobStatusSnapshot{Status: conversion.JobStatusQueued}

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.orders.orders[order.ID].State; got != domain.OrderStateQueued {
		t.Errorf("expected QUEUED, got %s", got)
	}
	if len(f.orders.transitions) != 0 {
		t.Errorf("no transitions expected, got %v", f.orders.transitions)
	}
}

func TestTick_DoneMaterializesAndNotifiesOnce(t *testing.T) {
	order := submittedOrder("job-1")
	queue := newFakeQueue("default")
	queue.addJob(queuedJob("job-1"))

	f := newFixture(newFakeOrderStore(order), queue)
	f.addOrderer(order)
	f.client.snapshots["job-1"] = &conversion.JobStatusSnapshot{
		Status:   conversion.JobStatusDone,
		Progress: conversion.ProgressSuccessful,
	}

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.orders.orders[order.ID].State; got != domain.OrderStateFinished {
		t.Errorf("expected FINISHED, got %s", got)
	}
	if f.materializer.calls != 1 {
		t.Errorf("expected 1 materialization, got %d", f.materializer.calls)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notifier.sent))
	}
	sent := f.notifier.sent[0]
	if sent.level != domain.NotificationLevelInfo {
		t.Errorf("expected INFO notification, got %s", sent.level)
	}
	if !strings.Contains(sent.message, "ready for download") {
		t.Errorf("unexpected message: %q", sent.message)
	}
	if len(queue.removed) != 1 || queue.removed[0] != "job-1" {
		t.Errorf("expected job removed after materialization, got %v", queue.removed)
	}
}

func TestTick_PartialMaterializationRetries(t *testing.T) {
	order := submittedOrder("job-1")
	queue := newFakeQueue("default")
	queue.addJob(queuedJob("job-1"))

	f := newFixture(newFakeOrderStore(order), queue)
	f.addOrderer(order)
	f.client.snapshots["job-1"] = &conversion.JobStatusSnapshot{
		Status:   conversion.JobStatusDone,
		Progress: conversion.ProgressSuccessful,
	}
	f.materializer.err = errors.New("partial download")

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Заказ FINISHED, но job остаётся на учёте до полной загрузки.
	if got := f.orders.orders[order.ID].State; got != domain.OrderStateFinished {
		t.Errorf("expected FINISHED, got %s", got)
	}
	if len(queue.removed) != 0 {
		t.Errorf("job must stay registered, removed %v", queue.removed)
	}

	// Следующий проход докачивает, но повторно не уведомляет.
	f.materializer.err = nil
	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.materializer.calls != 2 {
		t.Errorf("expected 2 materialization attempts, got %d", f.materializer.calls)
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("expected exactly 1 notification, got %d", len(f.notifier.sent))
	}
	if len(queue.removed) != 1 {
		t.Errorf("expected job removed after successful retry, got %v", queue.removed)
	}
}

func TestTick_DoneWithFailedFormats(t *testing.T) {
	order := submittedOrder("job-1")
	queue := newFakeQueue("default")
	queue.addJob(queuedJob("job-1"))

	f := newFixture(newFakeOrderStore(order), queue)
	f.addOrderer(order)
	f.client.snapshots["job-1"] = &conversion.JobStatusSnapshot{
		Status:   conversion.JobStatusDone,
		Progress: conversion.ProgressError,
	}

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.orders.orders[order.ID]
	if stored.State != domain.OrderStateFailed {
		t.Errorf("expected FAILED, got %s", stored.State)
	}
	if f.materializer.calls != 0 {
		t.Error("failed job must not be materialized")
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].level != domain.NotificationLevelError {
		t.Errorf("expected 1 ERROR notification, got %v", f.notifier.sent)
	}
	if !strings.Contains(f.notifier.sent[0].message, "Reason") {
		t.Errorf("expected failure reason in message, got %q", f.notifier.sent[0].message)
	}
	if len(queue.removed) != 1 {
		t.Errorf("terminal order must release its job, removed %v", queue.removed)
	}
}

func TestTick_Aborted(t *testing.T) {
	order := submittedOrder("job-1")
	queue := newFakeQueue("default")
	queue.addJob(queuedJob("job-1"))

	f := newFixture(newFakeOrderStore(order), queue)
	f.addOrderer(order)
	f.client.snapshots["job-1"] = &conversion.JobStatusSnapshot{Status: conversion.JobStatusAborted}

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.orders.orders[order.ID].State; got != domain.OrderStateAborted {
		t.Errorf("expected ABORTED, got %s", got)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].level != domain.NotificationLevelWarning {
		t.Errorf("expected 1 WARNING notification, got %v", f.notifier.sent)
	}
}

func TestTick_JobVanished(t *testing.T) {
	order := submittedOrder("job-1")
	queue := newFakeQueue("default")
	// Job числится в registry, но записи о нём больше нет.
	queue.registry = append(queue.registry, "job-1")

	f := newFixture(newFakeOrderStore(order), queue)
	f.addOrderer(order)

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.orders.orders[order.ID]
	if stored.State != domain.OrderStateFailed {
		t.Errorf("expected FAILED, got %s", stored.State)
	}
	if stored.Error != ErrJobVanished.Error() {
		t.Errorf("unexpected error text: %q", stored.Error)
	}
	if len(queue.removed) != 1 {
		t.Errorf("vanished job must be dropped from registry, removed %v", queue.removed)
	}
}

func TestTick_OrphanRegistryEntry(t *testing.T) {
	queue := newFakeQueue("default")
	queue.addJob(queuedJob("job-orphan"))

	f := newFixture(newFakeOrderStore(), queue)

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue.removed) != 1 || queue.removed[0] != "job-orphan" {
		t.Errorf("orphan entry must be dropped, removed %v", queue.removed)
	}
}

func TestTick_SettledOrderReleasesJob(t *testing.T) {
	order := submittedOrder("job-1")
	order.MarkFailed("conversion failed")
	queue := newFakeQueue("default")
	queue.addJob(queuedJob("job-1"))

	f := newFixture(newFakeOrderStore(order), queue)

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(queue.removed) != 1 {
		t.Errorf("settled order must release its job, removed %v", queue.removed)
	}
	// Сервис при этом не опрашивается.
	if f.client.estimateCalls != 0 {
		t.Error("settled order must not be reconciled")
	}
}

func TestTick_JobErrorDoesNotStopPass(t *testing.T) {
	broken := submittedOrder("job-broken")
	healthy := submittedOrder("job-ok")
	queue := newFakeQueue("default")
	queue.addJob(queuedJob("job-broken"))
	queue.addJob(queuedJob("job-ok"))

	f := newFixture(newFakeOrderStore(broken, healthy), queue)
	f.client.statusErr["job-broken"] = errors.New("service unavailable")
	f.client.snapshots["job-ok"] = &conversion.JobStatusSnapshot{Status: conversion.JobStatusStarted}

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("tick must not fail on a single job: %v", err)
	}

	if got := f.orders.orders[healthy.ID].State; got != domain.OrderStateProcessing {
		t.Errorf("healthy order must still be reconciled, got %s", got)
	}
	if got := f.orders.orders[broken.ID].State; got != domain.OrderStateQueued {
		t.Errorf("broken order must stay untouched, got %s", got)
	}
}

func TestTick_SizeEstimationFailureIsNotFatal(t *testing.T) {
	order := submittedOrder("job-1")
	queue := newFakeQueue("default")
	queue.addJob(queuedJob("job-1"))

	f := newFixture(newFakeOrderStore(order), queue)
	f.client.estimateErr = errors.New("estimation timed out")
	f.client.snapshots["job-1"] = &conversion.JobStatusSnapshot{Status: conversion.JobStatusStarted}

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.orders.orders[order.ID].State; got != domain.OrderStateProcessing {
		t.Errorf("reconciliation must proceed without the estimate, got %s", got)
	}
	meta := queue.meta["job-1"]
	if meta["queue_duration_sec"] == "" {
		t.Error("queue_duration_sec must still be recorded")
	}
	if _, ok := meta["estimated_pbf_size"]; ok {
		t.Error("failed estimate must not be recorded")
	}
}

func TestTick_HighQueueTakesPriority(t *testing.T) {
	order := submittedOrder("job-1")
	high := newFakeQueue("high")
	def := newFakeQueue("default")
	// Один и тот же id в обоих registry: сверка идёт по первой очереди.
	high.addJob(queuedJob("job-1"))
	def.registry = append(def.registry, "job-1")

	f := newFixture(newFakeOrderStore(order), high, def)
	f.client.snapshots["job-1"] = &conversion.JobStatusSnapshot{Status: conversion.JobStatusStarted}

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if high.meta["job-1"] == nil {
		t.Error("meta must be written to the high queue")
	}
	if def.meta["job-1"] != nil {
		t.Error("meta must not be written to the default queue")
	}
}

func TestTick_NotificationSkippedForUnknownOrderer(t *testing.T) {
	order := submittedOrder("job-1")
	queue := newFakeQueue("default")
	queue.addJob(queuedJob("job-1"))

	// Заказчика нет в каталоге: исход фиксируется, уведомление пропускается.
	f := newFixture(newFakeOrderStore(order), queue)
	f.client.snapshots["job-1"] = &conversion.JobStatusSnapshot{Status: conversion.JobStatusError}

	if err := f.harvester.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.orders.orders[order.ID].State; got != domain.OrderStateFailed {
		t.Errorf("expected FAILED, got %s", got)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("no notification expected, got %v", f.notifier.sent)
	}
}

func TestReconcileOrder_NotSubmitted(t *testing.T) {
	geometry, _ := domain.NewBoundingBox(8.28, 47.0, 8.72, 47.25)
	order := domain.NewExtractionOrder(uuid.New(), []string{"fgdb"}, nil, geometry)

	f := newFixture(newFakeOrderStore(order), newFakeQueue("default"))

	_, err := f.harvester.ReconcileOrder(context.Background(), order.ID)
	if !errors.Is(err, ErrOrderNotSubmitted) {
		t.Fatalf("expected ErrOrderNotSubmitted, got %v", err)
	}
}

func TestReconcileOrder_ReturnsFreshState(t *testing.T) {
	order := submittedOrder("job-1")
	f := newFixture(newFakeOrderStore(order), newFakeQueue("default"))
	f.client.snapshots["job-1"] = &conversion.JobStatusSnapshot{Status: conversion.JobStatusStarted}

	got, err := f.harvester.ReconcileOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != domain.OrderStateProcessing {
		t.Errorf("expected PROCESSING, got %s", got.State)
	}
}

func TestReconcileOrder_UnknownOrder(t *testing.T) {
	f := newFixture(newFakeOrderStore(), newFakeQueue("default"))

	_, err := f.harvester.ReconcileOrder(context.Background(), uuid.New())
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
