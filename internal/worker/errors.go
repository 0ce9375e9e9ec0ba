package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownFormat — нет конвертера для данного формата.
	ErrUnknownFormat = errors.New("unknown output format")

	// ErrConversionFailed — конвертация завершилась ошибкой.
	ErrConversionFailed = errors.New("conversion failed")

	// ErrNoFormats — в payload job нет ни одного формата.
	ErrNoFormats = errors.New("job payload has no formats")
)
