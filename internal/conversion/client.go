package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Excerpta/internal/domain"
)

// Относительные пути API конвертационного сервиса.
const (
	loginPath             = "/token-auth/"
	jobsPath              = "/jobs/"
	estimatedFileSizePath = "/estimate_size_in_bytes/"
	formatEstimationPath  = "/format_size_estimation/"
)

const defaultHTTPTimeout = 60 * time.Second

// Config — конфигурация клиента конвертационного сервиса.
type Config struct {
	// BaseURL — базовый URL сервиса (без завершающего слэша).
	BaseURL string

	// Username, Password — учётные данные для /token-auth/.
	Username string
	Password string

	// HTTPTimeout — таймаут одного HTTP-запроса (default: 60s).
	HTTPTimeout time.Duration
}

// Client — клиент внешнего конвертационного сервиса.
//
// Stateless protocol adapter: единственное состояние — bearer-токен.
// Побочные эффекты ограничены сетевым I/O и, при успешном CreateJob,
// полями отправки на переданном заказе.
//
// Потокобезопасен: токен защищён мьютексом, http.Client разделяемый.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	token string
}

// NewClient создаёт клиент конвертационного сервиса.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Login получает bearer-токен у сервиса.
//
// Идемпотентен: если токен уже есть, ничего не делает.
// Возвращает ErrAuthentication, если сервис отклонил учётные данные.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return nil
	}
	return c.loginLocked(ctx)
}

// loginLocked выполняет запрос токена. Вызывается под c.mu.
func (c *Client) loginLocked(ctx context.Context) error {
	payload := map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	}

	resp, err := c.postJSON(ctx, c.cfg.BaseURL+loginPath, payload, "")
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read login response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrAuthentication, resp.StatusCode)
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil || tokenResp.Token == "" {
		return fmt.Errorf("%w: no token in response", ErrAuthentication)
	}

	c.token = tokenResp.Token
	c.logger.Debug("logged in to conversion service")
	return nil
}

// relogin сбрасывает токен и логинится заново.
func (c *Client) relogin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	return c.loginLocked(ctx)
}

// bearerToken возвращает текущий токен.
func (c *Client) bearerToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// jobRequest — тело запроса создания job.
type jobRequest struct {
	CallbackURL string            `json:"callback_url"`
	GISFormats  []string          `json:"gis_formats"`
	GISOptions  map[string]string `json:"gis_options"`
	Extent      extentPayload     `json:"extent"`
	QueueName   string            `json:"queue_name,omitempty"`
}

// extentPayload — экстент в формате API сервиса.
type extentPayload struct {
	West     float64 `json:"west"`
	South    float64 `json:"south"`
	East     float64 `json:"east"`
	North    float64 `json:"north"`
	Polyfile *string `json:"polyfile"`
}

// CreateJob отправляет job в конвертационный сервис.
//
// При успехе записывает идентификатор job и progress URL на заказ и
// переводит его в QUEUED (в памяти; персистентность — забота вызывающего).
// При любой неудаче (не-2xx, испорченный ответ, отсутствующий rq_job_id)
// заказ не изменяется вовсе, возвращается *JobCreationError с сырым
// телом ответа.
func (c *Client) CreateJob(ctx context.Context, order *domain.ExtractionOrder, callbackURL, queueName string) error {
	if err := c.Login(ctx); err != nil {
		return err
	}

	req := jobRequest{
		CallbackURL: callbackURL,
		GISFormats:  order.Formats,
		GISOptions:  order.Options,
		QueueName:   queueName,
		Extent: extentPayload{
			West:  order.Geometry.West,
			South: order.Geometry.South,
			East:  order.Geometry.East,
			North: order.Geometry.North,
		},
	}
	if order.Geometry.IsPolyfile() {
		polyfile := order.Geometry.Polyfile
		req.Extent.Polyfile = &polyfile
	}

	resp, err := c.postJSON(ctx, c.cfg.BaseURL+jobsPath, req, c.bearerToken())
	if err != nil {
		return &JobCreationError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &JobCreationError{StatusCode: resp.StatusCode, Reason: "read response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &JobCreationError{StatusCode: resp.StatusCode, Body: string(body), Reason: "service rejected job"}
	}

	var jobResp struct {
		RQJobID string `json:"rq_job_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(body, &jobResp); err != nil {
		return &JobCreationError{StatusCode: resp.StatusCode, Body: string(body), Reason: "malformed response"}
	}
	if jobResp.RQJobID == "" {
		return &JobCreationError{StatusCode: resp.StatusCode, Body: string(body), Reason: "no rq_job_id in response"}
	}

	order.MarkQueued(jobResp.RQJobID, jobResp.Status)

	c.logger.Info("conversion job created",
		"order_id", order.ID,
		"job_id", jobResp.RQJobID,
		"queue", queueName,
	)
	return nil
}

// JobStatus опрашивает progress endpoint заказа.
//
// Возвращает (nil, nil), если у заказа ещё нет progress URL — это
// «статус недоступен», не ошибка; вызывающий пропускает такой заказ.
// При транспортной или auth-ошибке один раз перелогинивается и
// повторяет единственный запрос, после чего отдаёт ошибку наверх —
// дальнейших retry этот компонент не делает.
func (c *Client) JobStatus(ctx context.Context, order *domain.ExtractionOrder) (*JobStatusSnapshot, error) {
	if order.ProgressURL == nil || *order.ProgressURL == "" {
		return nil, nil
	}

	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	snapshot, err := c.getSnapshot(ctx, *order.ProgressURL)
	if err == nil {
		return snapshot, nil
	}

	// Одна повторная попытка после re-login.
	if err := c.relogin(ctx); err != nil {
		return nil, err
	}
	snapshot, err = c.getSnapshot(ctx, *order.ProgressURL)
	if err != nil {
		return nil, fmt.Errorf("job status for order %s: %w", order.ID, err)
	}
	return snapshot, nil
}

// getSnapshot выполняет один авторизованный GET статуса.
func (c *Client) getSnapshot(ctx context.Context, url string) (*JobStatusSnapshot, error) {
	resp, err := c.getAuthorized(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read status response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: HTTP %d", ErrAuthentication, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var snapshot JobStatusSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal status response: %w", err)
	}
	return &snapshot, nil
}

// DownloadResult скачивает артефакт результата авторизованным GET.
func (c *Client) DownloadResult(ctx context.Context, resultURL string) ([]byte, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	resp, err := c.getAuthorized(ctx, resultURL)
	if err != nil {
		return nil, fmt.Errorf("download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrResultUnavailable, resp.StatusCode, resultURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read result body: %w", err)
	}
	return data, nil
}

// EstimatedFileSize запрашивает оценку размера pbf для экстента.
func (c *Client) EstimatedFileSize(ctx context.Context, west, south, east, north float64) (int64, error) {
	if err := c.Login(ctx); err != nil {
		return 0, err
	}

	payload := map[string]float64{
		"west":  west,
		"south": south,
		"east":  east,
		"north": north,
	}
	resp, err := c.postJSON(ctx, c.cfg.BaseURL+estimatedFileSizePath, payload, c.bearerToken())
	if err != nil {
		return 0, fmt.Errorf("estimate size: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read estimate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("size estimation returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var sizeResp struct {
		EstimatedFileSizeInBytes float64 `json:"estimated_file_size_in_bytes"`
	}
	if err := json.Unmarshal(body, &sizeResp); err != nil {
		return 0, fmt.Errorf("unmarshal estimate response: %w", err)
	}
	return int64(sizeResp.EstimatedFileSizeInBytes), nil
}

// FormatSizeEstimation запрашивает оценку размеров результата по форматам
// на основании оценки pbf и уровня детализации.
func (c *Client) FormatSizeEstimation(ctx context.Context, estimatedPbfSize int64, detailLevel int) (map[string]int64, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	payload := map[string]int64{
		"estimated_pbf_file_size_in_bytes": estimatedPbfSize,
		"detail_level":                     int64(detailLevel),
	}
	resp, err := c.postJSON(ctx, c.cfg.BaseURL+formatEstimationPath, payload, c.bearerToken())
	if err != nil {
		return nil, fmt.Errorf("format size estimation: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read estimation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("format estimation returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var sizes map[string]int64
	if err := json.Unmarshal(body, &sizes); err != nil {
		return nil, fmt.Errorf("unmarshal estimation response: %w", err)
	}
	return sizes, nil
}

// postJSON выполняет POST с JSON-телом и опциональным bearer-токеном.
func (c *Client) postJSON(ctx context.Context, url string, payload any, token string) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.httpClient.Do(req)
}

// getAuthorized выполняет GET с bearer-токеном.
// Относительные URL дополняются базовым URL сервиса.
func (c *Client) getAuthorized(ctx context.Context, url string) (*http.Response, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = c.cfg.BaseURL + "/" + strings.TrimPrefix(url, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.bearerToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.httpClient.Do(req)
}
