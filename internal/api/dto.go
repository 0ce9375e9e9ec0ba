package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/domain"
)

// Order DTOs

// OrdererPayload — пользователь, от имени которого создаётся заказ.
// Front-end передаёт его целиком: ядро не управляет пользователями.
type OrdererPayload struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email,omitempty"`
	Groups []string  `json:"groups,omitempty"`
}

// ExtentPayload — выбранный экстент.
type ExtentPayload struct {
	West     float64 `json:"west"`
	South    float64 `json:"south"`
	East     float64 `json:"east"`
	North    float64 `json:"north"`
	Polyfile string  `json:"polyfile,omitempty"`
}

// CreateOrderRequest — запрос на создание заказа.
type CreateOrderRequest struct {
	Orderer OrdererPayload    `json:"orderer"`
	Formats []string          `json:"formats"`
	Options map[string]string `json:"options,omitempty"`
	Extent  ExtentPayload     `json:"extent"`
}

// OrderResponse — ответ с заказом.
type OrderResponse struct {
	ID             uuid.UUID            `json:"id"`
	OrdererID      uuid.UUID            `json:"orderer_id"`
	Formats        []string             `json:"formats"`
	Options        map[string]string    `json:"options,omitempty"`
	Extent         ExtentPayload        `json:"extent"`
	ProcessID      *string              `json:"process_id,omitempty"`
	State          string               `json:"state"`
	DownloadStatus string               `json:"download_status"`
	Error          string               `json:"error,omitempty"`
	Files          []OutputFileResponse `json:"files,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// OrderFromDomain конвертирует domain.ExtractionOrder в OrderResponse.
func OrderFromDomain(o domain.ExtractionOrder) OrderResponse {
	return OrderResponse{
		ID:        o.ID,
		OrdererID: o.OrdererID,
		Formats:   o.Formats,
		Options:   o.Options,
		Extent: ExtentPayload{
			West:     o.Geometry.West,
			South:    o.Geometry.South,
			East:     o.Geometry.East,
			North:    o.Geometry.North,
			Polyfile: o.Geometry.Polyfile,
		},
		ProcessID:      o.ProcessID,
		State:          string(o.State),
		DownloadStatus: string(o.DownloadStatus),
		Error:          o.Error,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// OutputFile DTOs

// OutputFileResponse — ответ с файлом результата.
type OutputFileResponse struct {
	PublicIdentifier uuid.UUID `json:"public_identifier"`
	Format           string    `json:"format"`
	MimeType         string    `json:"mime_type"`
	FileName         string    `json:"file_name"`
	DownloadPath     string    `json:"download_path"`
	CreatedAt        time.Time `json:"created_at"`
}

// OutputFileFromDomain конвертирует domain.OutputFile в OutputFileResponse.
func OutputFileFromDomain(f domain.OutputFile) OutputFileResponse {
	return OutputFileResponse{
		PublicIdentifier: f.PublicIdentifier,
		Format:           f.Format,
		MimeType:         f.MimeType,
		FileName:         f.FileName(),
		DownloadPath:     "/api/v1/downloads/" + f.PublicIdentifier.String(),
		CreatedAt:        f.CreatedAt,
	}
}

// Notification DTOs

// NotificationResponse — ответ с уведомлением.
type NotificationResponse struct {
	ID        uuid.UUID `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationFromDomain конвертирует domain.Notification в NotificationResponse.
func NotificationFromDomain(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Level:     string(n.Level),
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	}
}

// Estimation DTOs

// EstimatedFileSizeResponse — оценка размера pbf-среза экстента.
type EstimatedFileSizeResponse struct {
	EstimatedFileSizeInBytes int64 `json:"estimated_file_size_in_bytes"`
}

// FormatSizeEstimationRequest — запрос оценки размеров по форматам.
type FormatSizeEstimationRequest struct {
	EstimatedPbfFileSizeInBytes int64 `json:"estimated_pbf_file_size_in_bytes"`
	DetailLevel                 int   `json:"detail_level"`
}

// FormatSizeEstimationResponse — оценка размеров по форматам.
type FormatSizeEstimationResponse struct {
	EstimatedFileSizeByFormat map[string]int64 `json:"estimated_file_size_by_format"`
}
