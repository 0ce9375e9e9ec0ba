package harvester

import "errors"

// Ошибки harvester'а.
var (
	// ErrJobVanished — job числится в registry очереди, но записи о нём
	// больше нет. Владеющий заказ переводится в FAILED.
	ErrJobVanished = errors.New("job vanished from queue")

	// ErrOrderNotSubmitted — заказ ещё не отправлен в конвертационный
	// сервис, реконсилировать нечего.
	ErrOrderNotSubmitted = errors.New("order has no submitted job")
)
