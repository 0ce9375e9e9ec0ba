package conversion

import (
	"errors"
	"fmt"
)

// Ошибки клиента конвертационного сервиса.
var (
	// ErrAuthentication — сервис отклонил учётные данные.
	ErrAuthentication = errors.New("conversion service rejected credentials")

	// ErrJobCreation — сервис отклонил отправку job или ответ не содержит
	// идентификатора job. Заказ остаётся UNSUBMITTED.
	ErrJobCreation = errors.New("job creation failed")

	// ErrResultUnavailable — артефакт результата недоступен.
	ErrResultUnavailable = errors.New("result file not available")
)

// JobCreationError — отказ сервиса при создании job.
// Несёт сырое тело ответа для диагностики.
type JobCreationError struct {
	// StatusCode — HTTP-код ответа (0, если ответ не получен).
	StatusCode int

	// Body — сырое тело ответа.
	Body string

	// Reason — краткое описание причины.
	Reason string
}

// Error реализует error.
func (e *JobCreationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("job creation failed: %s (HTTP %d): %s", e.Reason, e.StatusCode, truncate(e.Body, 200))
	}
	return fmt.Sprintf("job creation failed: %s", e.Reason)
}

// Unwrap позволяет errors.Is(err, ErrJobCreation).
func (e *JobCreationError) Unwrap() error {
	return ErrJobCreation
}

// truncate обрезает строку до указанной длины.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
