package submitter

import "errors"

// Ошибки submitter'а.
var (
	// ErrUnknownQueue — выбранная приоритетная очередь не сконфигурирована.
	ErrUnknownQueue = errors.New("unknown backing queue")
)
