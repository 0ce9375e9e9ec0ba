package materializer

import "errors"

// Ошибки материализации.
var (
	// ErrPartialDownload — не все форматы удалось скачать; download_status
	// откачен в UNKNOWN, следующий poll повторит попытку.
	ErrPartialDownload = errors.New("not all result files could be downloaded")
)
