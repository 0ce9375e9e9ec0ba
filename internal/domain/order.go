package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExtractionOrder — заказ пользователя на выгрузку географических данных.
//
// Order создаётся когда пользователь запрашивает excerpt (bounding box +
// набор выходных форматов). Дальше его мутируют ровно два компонента:
//   - conversion.Client при успешной отправке job (ProcessID, ProgressURL, QUEUED)
//   - harvester при периодической сверке состояния с конвертационным сервисом
//
// Инвариант: ProcessID выставляется тогда и только тогда, когда отправка job
// хотя бы раз прошла успешно, и никогда не сбрасывается. Для повторной
// отправки создаётся новый order.
type ExtractionOrder struct {
	// ID — уникальный идентификатор заказа.
	ID uuid.UUID `json:"id"`

	// OrdererID — пользователь, оформивший заказ.
	OrdererID uuid.UUID `json:"orderer_id"`

	// Formats — запрошенные выходные форматы (идентификаторы из каталога форматов).
	Formats []string `json:"formats"`

	// Options — опции конвертации (система координат, уровень детализации).
	// Непрозрачный словарь, передаётся сервису как есть.
	Options map[string]string `json:"options,omitempty"`

	// Geometry — запрошенный пространственный экстент.
	Geometry BoundingGeometry `json:"geometry"`

	// ProcessID — идентификатор job в конвертационном сервисе.
	// Nil до первой успешной отправки.
	ProcessID *string `json:"process_id,omitempty"`

	// ProgressURL — endpoint для опроса статуса job.
	// Nil до первой успешной отправки.
	ProgressURL *string `json:"progress_url,omitempty"`

	// State — текущее состояние жизненного цикла.
	State OrderState `json:"state"`

	// DownloadStatus — под-состояние загрузки результатов.
	DownloadStatus DownloadStatus `json:"download_status"`

	// Error — текст ошибки для FAILED/ABORTED.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания заказа.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExtractionOrder создаёт новый заказ в состоянии UNSUBMITTED.
func NewExtractionOrder(ordererID uuid.UUID, formats []string, options map[string]string, geometry BoundingGeometry) *ExtractionOrder {
	now := time.Now()
	return &ExtractionOrder{
		ID:             uuid.New(),
		OrdererID:      ordererID,
		Formats:        formats,
		Options:        options,
		Geometry:       geometry,
		State:          OrderStateUnsubmitted,
		DownloadStatus: DownloadStatusUnknown,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsFinished возвращает true, если заказ в терминальном состоянии.
func (o *ExtractionOrder) IsFinished() bool {
	return o.State.IsTerminal()
}

// IsSubmitted возвращает true, если job был успешно отправлен.
func (o *ExtractionOrder) IsSubmitted() bool {
	return o.ProcessID != nil
}

// MarkQueued фиксирует успешную отправку job: выставляет ProcessID,
// ProgressURL и переводит заказ в QUEUED.
func (o *ExtractionOrder) MarkQueued(processID, progressURL string) {
	o.ProcessID = &processID
	o.ProgressURL = &progressURL
	o.State = OrderStateQueued
	o.UpdatedAt = time.Now()
}

// MarkProcessing переводит заказ в PROCESSING.
func (o *ExtractionOrder) MarkProcessing() {
	o.State = OrderStateProcessing
	o.UpdatedAt = time.Now()
}

// MarkFinished переводит заказ в FINISHED.
func (o *ExtractionOrder) MarkFinished() {
	o.State = OrderStateFinished
	o.UpdatedAt = time.Now()
}

// MarkFailed переводит заказ в FAILED с текстом ошибки.
func (o *ExtractionOrder) MarkFailed(errMsg string) {
	o.State = OrderStateFailed
	o.Error = errMsg
	o.UpdatedAt = time.Now()
}

// MarkAborted переводит заказ в ABORTED с текстом ошибки.
func (o *ExtractionOrder) MarkAborted(errMsg string) {
	o.State = OrderStateAborted
	o.Error = errMsg
	o.UpdatedAt = time.Now()
}
