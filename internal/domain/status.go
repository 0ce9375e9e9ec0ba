package domain

// OrderState — состояние жизненного цикла extraction order.
//
// Жизненный цикл:
//
//	UNSUBMITTED → QUEUED → PROCESSING → FINISHED
//	                                  ↘ FAILED
//	                                  ↘ ABORTED
//
// Состояние двигается только вперёд по таблице переходов.
// Из терминального состояния переходов нет.
type OrderState string

const (
	// OrderStateUnsubmitted — заказ создан, job ещё не отправлен в конвертационный сервис.
	OrderStateUnsubmitted OrderState = "UNSUBMITTED"

	// OrderStateQueued — job принят конвертационным сервисом и ожидает выполнения.
	OrderStateQueued OrderState = "QUEUED"

	// OrderStateProcessing — конвертация выполняется.
	OrderStateProcessing OrderState = "PROCESSING"

	// OrderStateFinished — конвертация успешно завершена.
	OrderStateFinished OrderState = "FINISHED"

	// OrderStateFailed — конвертация завершилась с ошибкой
	// (или job исчез из всех очередей).
	OrderStateFailed OrderState = "FAILED"

	// OrderStateAborted — конвертация прервана сервисом.
	OrderStateAborted OrderState = "ABORTED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFinished, OrderStateFailed, OrderStateAborted:
		return true
	default:
		return false
	}
}

// transitions — таблица допустимых переходов состояния.
var transitions = map[OrderState][]OrderState{
	OrderStateUnsubmitted: {OrderStateQueued, OrderStateFailed, OrderStateAborted},
	OrderStateQueued:      {OrderStateProcessing, OrderStateFinished, OrderStateFailed, OrderStateAborted},
	OrderStateProcessing:  {OrderStateFinished, OrderStateFailed, OrderStateAborted},
}

// CanTransitionTo проверяет, допустим ли переход s → next.
// Повторный переход в то же нетерминальное состояние считается
// допустимым no-op (повторные poll'ы не меняют состояние).
func (s OrderState) CanTransitionTo(next OrderState) bool {
	if s == next {
		return !s.IsTerminal()
	}
	for _, allowed := range transitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// DownloadStatus — ортогональное под-состояние загрузки результатов.
//
// Жизненный цикл:
//
//	UNKNOWN → DOWNLOADING → AVAILABLE
//	                      ↘ UNKNOWN (при частичной неудаче, для retry)
type DownloadStatus string

const (
	// DownloadStatusUnknown — загрузка не начиналась или была прервана.
	DownloadStatusUnknown DownloadStatus = "UNKNOWN"

	// DownloadStatusDownloading — загрузка результатов в процессе.
	DownloadStatusDownloading DownloadStatus = "DOWNLOADING"

	// DownloadStatusAvailable — все файлы результата сохранены. Финальный статус.
	DownloadStatusAvailable DownloadStatus = "AVAILABLE"
)
