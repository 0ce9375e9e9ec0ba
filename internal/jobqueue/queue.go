package jobqueue

import (
	"context"
	"time"
)

// Статусы job внутри очереди (worker-сторона).
const (
	StatusQueued  = "queued"
	StatusStarted = "started"
	StatusDone    = "done"
	StatusError   = "error"
)

// Job — запись об одном конвертационном job в backing queue.
type Job struct {
	// ID — идентификатор job (он же process_id заказа).
	ID string `json:"id"`

	// Queue — имя очереди, в которой лежит job.
	Queue string `json:"queue"`

	// Status — текущий статус (queued/started/done/error).
	Status string `json:"status"`

	// Payload — входные данные конвертации (формируется при постановке).
	Payload map[string]string `json:"payload,omitempty"`

	// Meta — метаданные наблюдаемости: длительность, размеры результата,
	// оценка pbf. Пишутся worker'ом и harvester'ом.
	Meta map[string]string `json:"meta,omitempty"`

	// EnqueuedAt — время постановки в очередь.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue — одна именованная очередь jobs.
//
// FetchJob возвращает (nil, nil) для отсутствующего job — отсутствие
// записи не ошибка, это сигнал «job исчез» для harvester'а.
type Queue interface {
	// Name возвращает имя очереди.
	Name() string

	// Enqueue регистрирует job и кладёт его в pending-список.
	Enqueue(ctx context.Context, job *Job) error

	// JobIDs возвращает идентификаторы всех jobs, числящихся за очередью.
	JobIDs(ctx context.Context) ([]string, error)

	// FetchJob возвращает job по id или (nil, nil), если job не числится
	// за этой очередью.
	FetchJob(ctx context.Context, id string) (*Job, error)

	// SetStatus выставляет статус job.
	SetStatus(ctx context.Context, id, status string) error

	// UpdateMeta дописывает метаданные job (merge по ключам).
	UpdateMeta(ctx context.Context, id string, meta map[string]string) error

	// Remove снимает job с учёта очереди (после того как владеющий
	// заказ дошёл до терминального состояния).
	Remove(ctx context.Context, id string) error
}

// PriorityQueueName выбирает имя очереди по членству пользователя в группах.
//
// Чистая функция над явным набором атрибутов: пользователи
// эксклюзивной группы получают очередь high, остальные — default.
func PriorityQueueName(groups []string, exclusiveGroup string) string {
	for _, g := range groups {
		if g == exclusiveGroup {
			return "high"
		}
	}
	return "default"
}
