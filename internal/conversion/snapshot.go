package conversion

// Статусы job во внешнем конвертационном сервисе.
const (
	// JobStatusQueued — job принят и ожидает worker'а.
	JobStatusQueued = "queued"

	// JobStatusStarted — конвертация выполняется.
	JobStatusStarted = "started"

	// JobStatusDone — конвертация завершена (см. Progress для исхода).
	JobStatusDone = "done"

	// JobStatusError — конвертация завершилась с ошибкой.
	JobStatusError = "error"

	// JobStatusAborted — конвертация прервана сервисом.
	JobStatusAborted = "aborted"
)

// Значения progress.
const (
	// ProgressSuccessful — этап/формат завершён успешно.
	ProgressSuccessful = "successful"

	// ProgressError — этап/формат завершился с ошибкой.
	ProgressError = "error"
)

// JobStatusSnapshot — отчёт внешнего сервиса о job на момент одного опроса.
//
// Transient-значение: потребляется один раз и не сохраняется — его
// содержимое сворачивается в состояние ExtractionOrder и OutputFiles.
type JobStatusSnapshot struct {
	// JobID — идентификатор job в сервисе.
	JobID string `json:"rq_job_id"`

	// Status — общий статус job (queued/started/done/error/aborted).
	Status string `json:"status"`

	// Progress — общий прогресс (successful/error).
	Progress string `json:"progress"`

	// GISFormats — прогресс по каждому запрошенному формату.
	GISFormats []FormatResult `json:"gis_formats"`
}

// FormatResult — прогресс одного формата внутри job.
type FormatResult struct {
	// Format — идентификатор формата.
	Format string `json:"format"`

	// Progress — прогресс формата (successful/error).
	Progress string `json:"progress"`

	// ResultURL — URL готового артефакта. Пустой, пока формат не готов.
	ResultURL string `json:"result_url"`
}

// Succeeded возвращает true, если job завершён успешно целиком.
func (s *JobStatusSnapshot) Succeeded() bool {
	return s.Status == JobStatusDone && s.Progress == ProgressSuccessful
}

// SuccessfulFormats возвращает форматы с progress=successful.
func (s *JobStatusSnapshot) SuccessfulFormats() []FormatResult {
	var out []FormatResult
	for _, f := range s.GISFormats {
		if f.Progress == ProgressSuccessful {
			out = append(out, f)
		}
	}
	return out
}
