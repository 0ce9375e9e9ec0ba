package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/domain"
	"github.com/shaiso/Excerpta/internal/harvester"
	"github.com/shaiso/Excerpta/internal/repo"
)

// --- Fakes ---

type fakeOrderStore struct {
	orders map[uuid.UUID]*domain.ExtractionOrder
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[uuid.UUID]*domain.ExtractionOrder)}
}

func (s *fakeOrderStore) Create(ctx context.Context, order *domain.ExtractionOrder) error {
	s.orders[order.ID] = order
	return nil
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
	return nil, repo.ErrNotFound
}

func (s *fakeOrderStore) ListByOrderer(ctx context.Context, ordererID uuid.UUID, limit, offset int) ([]domain.ExtractionOrder, error) {
	var out []domain.ExtractionOrder
	for _, order := range s.orders {
		if order.OrdererID == ordererID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) ListUnsubmitted(ctx context.Context, limit int) ([]domain.ExtractionOrder, error) {
	return nil, nil
}

func (s *fakeOrderStore) MarkSubmitted(ctx context.Context, id uuid.UUID, processID, progressURL string) error {
	s.orders[id].MarkQueued(processID, progressURL)
	return nil
}

func (s *fakeOrderStore) TransitionState(ctx context.Context, id uuid.UUID, next domain.OrderState, errMsg string) (bool, error) {
	return false, nil
}

func (s *fakeOrderStore) TryStartDownload(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (s *fakeOrderStore) SetDownloadStatus(ctx context.Context, id uuid.UUID, status domain.DownloadStatus) error {
	return nil
}

type fakeOrdererStore struct {
	upserted []domain.Orderer
}

func (s *fakeOrdererStore) Upsert(ctx context.Context, orderer domain.Orderer) error {
	s.upserted = append(s.upserted, orderer)
	return nil
}

func (s *fakeOrdererStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Orderer, error) {
	return domain.Orderer{}, repo.ErrNotFound
}

type fakeFileStore struct {
	files []domain.OutputFile
}

func (s *fakeFileStore) Create(ctx context.Context, file *domain.OutputFile) error { return nil }

func (s *fakeFileStore) ExistsForFormat(ctx context.Context, orderID uuid.UUID, format string) (bool, error) {
	return false, nil
}

func (s *fakeFileStore) GetByPublicID(ctx context.Context, publicID uuid.UUID) (*domain.OutputFile, error) {
	for i := range s.files {
		if s.files[i].PublicIdentifier == publicID {
			return &s.files[i], nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *fakeFileStore) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.OutputFile, error) {
	var out []domain.OutputFile
	for _, f := range s.files {
		if f.OrderID == orderID {
			out = append(out, f)
		}
	}
	return out, nil
}

type fakeNotificationStore struct {
	notifications []domain.Notification
}

func (s *fakeNotificationStore) Create(ctx context.Context, n *domain.Notification) error {
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *fakeNotificationStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

type fakeStorage struct {
	content map[string]string
}

func (s *fakeStorage) Open(path string) (io.ReadCloser, error) {
	data, ok := s.content[path]
	if !ok {
		return nil, errors.New("file missing from storage")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

type fakeSyncSubmitter struct {
	store *fakeOrderStore
	err   error
}

func (s *fakeSyncSubmitter) SubmitOrder(ctx context.Context, orderID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	return s.store.MarkSubmitted(ctx, orderID, "job-1", "http://conversion/jobs/1/")
}

type fakeReconciler struct {
	order *domain.ExtractionOrder
	err   error
}

func (r *fakeReconciler) ReconcileOrder(ctx context.Context, orderID uuid.UUID) (*domain.ExtractionOrder, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.order, nil
}

type fakeEstimator struct {
	size  int64
	sizes map[string]int64
	err   error
}

func (e *fakeEstimator) EstimatedFileSize(ctx context.Context, west, south, east, north float64) (int64, error) {
	return e.size, e.err
}

func (e *fakeEstimator) FormatSizeEstimation(ctx context.Context, estimatedPbfSize int64, detailLevel int) (map[string]int64, error) {
	return e.sizes, e.err
}

// --- Helpers ---

type testEnv struct {
	orders   *fakeOrderStore
	orderers *fakeOrdererStore
	files    *fakeFileStore
	handler  *Handler
	mux      *http.ServeMux
}

func newTestEnv(configure func(*Config)) *testEnv {
	env := &testEnv{
		orders:   newFakeOrderStore(),
		orderers: &fakeOrdererStore{},
		files:    &fakeFileStore{},
	}

	cfg := Config{
		Orders:        env.orders,
		Orderers:      env.orderers,
		Files:         env.files,
		Notifications: &fakeNotificationStore{},
		Storage:       &fakeStorage{content: map[string]string{}},
		Estimator:     &fakeEstimator{},
	}
	if configure != nil {
		configure(&cfg)
	}

	env.handler = NewHandler(cfg)
	env.mux = http.NewServeMux()
	env.handler.RegisterRoutes(env.mux)
	return env
}

func (env *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

func validCreateRequest() CreateOrderRequest {
	return CreateOrderRequest{
		Orderer: OrdererPayload{ID: uuid.New(), Name: "test user", Email: "user@example.com"},
		Formats: []string{"fgdb", "gpkg"},
		Extent:  ExtentPayload{West: 8.28, South: 47.0, East: 8.72, North: 47.25},
	}
}

// --- Tests ---

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", validCreateRequest())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	order := decodeData[OrderResponse](t, rec)
	if order.State != string(domain.OrderStateUnsubmitted) {
		t.Errorf("expected UNSUBMITTED, got %s", order.State)
	}
	if len(env.orders.orders) != 1 {
		t.Errorf("expected 1 stored order, got %d", len(env.orders.orders))
	}
	if len(env.orderers.upserted) != 1 {
		t.Errorf("expected orderer upsert, got %d", len(env.orderers.upserted))
	}
}

func TestCreateOrder_SyncSubmission(t *testing.T) {
	env := newTestEnv(func(cfg *Config) {
		cfg.SyncSubmitter = &fakeSyncSubmitter{store: cfg.Orders.(*fakeOrderStore)}
	})

	rec := env.do(t, http.MethodPost, "/api/v1/orders", validCreateRequest())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	order := decodeData[OrderResponse](t, rec)
	if order.State != string(domain.OrderStateQueued) {
		t.Errorf("expected QUEUED after sync submission, got %s", order.State)
	}
	if order.ProcessID == nil {
		t.Error("expected process_id in response")
	}
}

func TestCreateOrder_SyncSubmissionFailure(t *testing.T) {
	env := newTestEnv(func(cfg *Config) {
		cfg.SyncSubmitter = &fakeSyncSubmitter{err: errors.New("service down")}
	})

	rec := env.do(t, http.MethodPost, "/api/v1/orders", validCreateRequest())
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body)
	}

	// Заказ сохранён и остаётся UNSUBMITTED: его подхватит retry или polling.
	if len(env.orders.orders) != 1 {
		t.Fatalf("expected stored order, got %d", len(env.orders.orders))
	}
	for _, order := range env.orders.orders {
		if order.State != domain.OrderStateUnsubmitted {
			t.Errorf("expected UNSUBMITTED, got %s", order.State)
		}
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateOrderRequest)
	}{
		{"missing orderer id", func(r *CreateOrderRequest) { r.Orderer.ID = uuid.Nil }},
		{"no formats", func(r *CreateOrderRequest) { r.Formats = nil }},
		{"unknown format", func(r *CreateOrderRequest) { r.Formats = []string{"dwg"} }},
		{"inverted extent", func(r *CreateOrderRequest) { r.Extent.West, r.Extent.East = r.Extent.East, r.Extent.West }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(nil)
			req := validCreateRequest()
			tt.mutate(&req)

			rec := env.do(t, http.MethodPost, "/api/v1/orders", req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body)
			}
			if len(env.orders.orders) != 0 {
				t.Errorf("invalid request must not create orders, got %d", len(env.orders.orders))
			}
		})
	}
}

func TestGetOrder_WithFiles(t *testing.T) {
	env := newTestEnv(nil)

	geometry, _ := domain.NewBoundingBox(8.28, 47.0, 8.72, 47.25)
	order := domain.NewExtractionOrder(uuid.New(), []string{"fgdb"}, nil, geometry)
	env.orders.orders[order.ID] = order

	file := domain.NewOutputFile(order.ID, "fgdb")
	env.files.files = append(env.files.files, *file)

	rec := env.do(t, http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	resp := decodeData[OrderResponse](t, rec)
	if len(resp.Files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(resp.Files))
	}
	want := "/api/v1/downloads/" + file.PublicIdentifier.String()
	if resp.Files[0].DownloadPath != want {
		t.Errorf("expected download path %q, got %q", want, resp.Files[0].DownloadPath)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(t, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetOrder_InvalidID(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDownloadFile(t *testing.T) {
	var storage *fakeStorage
	env := newTestEnv(func(cfg *Config) {
		storage = cfg.Storage.(*fakeStorage)
	})

	file := domain.NewOutputFile(uuid.New(), "gpkg")
	file.StoragePath = "/storage/" + file.FileName()
	env.files.files = append(env.files.files, *file)
	storage.content[file.StoragePath] = "gpkg-bytes"

	rec := env.do(t, http.MethodGet, "/api/v1/downloads/"+file.PublicIdentifier.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Body.String(); got != "gpkg-bytes" {
		t.Errorf("unexpected body %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, file.FileName()) {
		t.Errorf("expected attachment disposition, got %q", got)
	}
}

func TestDownloadFile_NotFound(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(t, http.MethodGet, "/api/v1/downloads/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTrackJobProgress(t *testing.T) {
	geometry, _ := domain.NewBoundingBox(8.28, 47.0, 8.72, 47.25)
	order := domain.NewExtractionOrder(uuid.New(), []string{"fgdb"}, nil, geometry)
	order.MarkQueued("job-1", "http://conversion/jobs/1/")
	order.MarkProcessing()

	env := newTestEnv(func(cfg *Config) {
		cfg.Reconciler = &fakeReconciler{order: order}
	})

	rec := env.do(t, http.MethodGet, "/job_progress/"+order.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	resp := decodeData[OrderResponse](t, rec)
	if resp.State != string(domain.OrderStateProcessing) {
		t.Errorf("expected PROCESSING, got %s", resp.State)
	}
}

func TestTrackJobProgress_NotSubmitted(t *testing.T) {
	env := newTestEnv(func(cfg *Config) {
		cfg.Reconciler = &fakeReconciler{err: harvester.ErrOrderNotSubmitted}
	})

	rec := env.do(t, http.MethodGet, "/job_progress/"+uuid.NewString(), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestEstimateFileSize(t *testing.T) {
	env := newTestEnv(func(cfg *Config) {
		cfg.Estimator = &fakeEstimator{size: 1234567}
	})

	rec := env.do(t, http.MethodGet, "/api/v1/estimated_file_size?west=8.28&south=47.0&east=8.72&north=47.25", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	resp := decodeData[EstimatedFileSizeResponse](t, rec)
	if resp.EstimatedFileSizeInBytes != 1234567 {
		t.Errorf("unexpected size %d", resp.EstimatedFileSizeInBytes)
	}
}

func TestEstimateFileSize_MissingCoordinate(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(t, http.MethodGet, "/api/v1/estimated_file_size?west=8.28", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEstimateFormatSizes(t *testing.T) {
	env := newTestEnv(func(cfg *Config) {
		cfg.Estimator = &fakeEstimator{sizes: map[string]int64{"fgdb": 400, "gpkg": 900}}
	})

	rec := env.do(t, http.MethodPost, "/api/v1/format_size_estimation", FormatSizeEstimationRequest{
		EstimatedPbfFileSizeInBytes: 1000,
		DetailLevel:                 60,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	resp := decodeData[FormatSizeEstimationResponse](t, rec)
	if resp.EstimatedFileSizeByFormat["gpkg"] != 900 {
		t.Errorf("unexpected sizes: %v", resp.EstimatedFileSizeByFormat)
	}
}

func TestEstimateFormatSizes_Unavailable(t *testing.T) {
	env := newTestEnv(func(cfg *Config) {
		cfg.Estimator = &fakeEstimator{err: errors.New("timeout")}
	})

	rec := env.do(t, http.MethodPost, "/api/v1/format_size_estimation", FormatSizeEstimationRequest{
		EstimatedPbfFileSizeInBytes: 1000,
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestListNotifications(t *testing.T) {
	var notifications *fakeNotificationStore
	env := newTestEnv(func(cfg *Config) {
		notifications = cfg.Notifications.(*fakeNotificationStore)
	})

	userID := uuid.New()
	notifications.notifications = append(notifications.notifications, domain.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Level:   domain.NotificationLevelInfo,
		Message: "order done",
	})

	rec := env.do(t, http.MethodGet, "/api/v1/users/"+userID.String()+"/notifications", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Data  []NotificationResponse `json:"data"`
		Total int                    `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Fatalf("expected 1 notification, got %+v", resp)
	}
	if resp.Data[0].Message != "order done" {
		t.Errorf("unexpected message %q", resp.Data[0].Message)
	}
}
