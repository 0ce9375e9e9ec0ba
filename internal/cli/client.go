package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ExtentPayload — экстент заказа.
type ExtentPayload struct {
	West     float64 `json:"west"`
	South    float64 `json:"south"`
	East     float64 `json:"east"`
	North    float64 `json:"north"`
	Polyfile string  `json:"polyfile,omitempty"`
}

// OrderResponse — заказ из API.
type OrderResponse struct {
	ID             string               `json:"id"`
	OrdererID      string               `json:"orderer_id"`
	Formats        []string             `json:"formats"`
	Options        map[string]string    `json:"options,omitempty"`
	Extent         ExtentPayload        `json:"extent"`
	ProcessID      *string              `json:"process_id,omitempty"`
	State          string               `json:"state"`
	DownloadStatus string               `json:"download_status"`
	Error          string               `json:"error,omitempty"`
	Files          []OutputFileResponse `json:"files,omitempty"`
	CreatedAt      string               `json:"created_at"`
	UpdatedAt      string               `json:"updated_at"`
}

// OutputFileResponse — файл результата из API.
type OutputFileResponse struct {
	PublicIdentifier string `json:"public_identifier"`
	Format           string `json:"format"`
	MimeType         string `json:"mime_type"`
	FileName         string `json:"file_name"`
	DownloadPath     string `json:"download_path"`
	CreatedAt        string `json:"created_at"`
}

// NotificationResponse — уведомление из API.
type NotificationResponse struct {
	ID        string `json:"id"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// --- Request types ---

// OrdererPayload — пользователь-заказчик.
type OrdererPayload struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// CreateOrderRequest — создание заказа.
type CreateOrderRequest struct {
	Orderer OrdererPayload    `json:"orderer"`
	Formats []string          `json:"formats"`
	Options map[string]string `json:"options,omitempty"`
	Extent  ExtentPayload     `json:"extent"`
}

// FormatSizeEstimationRequest — оценка размеров по форматам.
type FormatSizeEstimationRequest struct {
	EstimatedPbfFileSizeInBytes int64 `json:"estimated_pbf_file_size_in_bytes"`
	DetailLevel                 int   `json:"detail_level"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Excerpta API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Orders ---

// ListOrders возвращает заказы пользователя.
func (c *Client) ListOrders(ordererID string, limit int) ([]OrderResponse, error) {
	params := url.Values{}
	params.Set("orderer_id", ordererID)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var orders []OrderResponse
	err := c.list("/api/v1/orders", params, &orders)
	return orders, err
}

// CreateOrder создаёт новый заказ.
func (c *Client) CreateOrder(req CreateOrderRequest) (*OrderResponse, error) {
	var order OrderResponse
	err := c.post("/api/v1/orders", req, &order)
	return &order, err
}

// GetOrder возвращает заказ по ID.
func (c *Client) GetOrder(id string) (*OrderResponse, error) {
	var order OrderResponse
	err := c.get("/api/v1/orders/"+id, &order)
	return &order, err
}

// --- Notifications ---

// ListNotifications возвращает уведомления пользователя.
func (c *Client) ListNotifications(userID string, limit int) ([]NotificationResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var notifications []NotificationResponse
	err := c.list("/api/v1/users/"+userID+"/notifications", params, &notifications)
	return notifications, err
}

// --- Size estimation ---

// EstimateFileSize возвращает оценку размера pbf-среза экстента.
func (c *Client) EstimateFileSize(west, south, east, north float64) (int64, error) {
	params := url.Values{}
	params.Set("west", strconv.FormatFloat(west, 'f', -1, 64))
	params.Set("south", strconv.FormatFloat(south, 'f', -1, 64))
	params.Set("east", strconv.FormatFloat(east, 'f', -1, 64))
	params.Set("north", strconv.FormatFloat(north, 'f', -1, 64))

	var result struct {
		EstimatedFileSizeInBytes int64 `json:"estimated_file_size_in_bytes"`
	}
	err := c.get("/api/v1/estimated_file_size?"+params.Encode(), &result)
	return result.EstimatedFileSizeInBytes, err
}

// EstimateFormatSizes возвращает оценку размеров по форматам.
func (c *Client) EstimateFormatSizes(pbfSize int64, detailLevel int) (map[string]int64, error) {
	req := FormatSizeEstimationRequest{
		EstimatedPbfFileSizeInBytes: pbfSize,
		DetailLevel:                 detailLevel,
	}

	var result struct {
		EstimatedFileSizeByFormat map[string]int64 `json:"estimated_file_size_by_format"`
	}
	err := c.post("/api/v1/format_size_estimation", req, &result)
	return result.EstimatedFileSizeByFormat, err
}

// --- Downloads ---

// DownloadFile скачивает файл результата в destDir и возвращает путь.
func (c *Client) DownloadFile(publicID, fileName, destDir string) (string, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/downloads/"+publicID, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return "", err
	}

	dest := filepath.Join(destDir, fileName)
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, nil
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
