// Package worker — выполнение конвертационных jobs из backing queues.
//
// Worker забирает pending jobs из Redis-очередей (high раньше default),
// конвертирует выбранный экстент в заказанные форматы через реестр
// конвертеров и записывает исход и метаданные обратно в запись job.
// По завершении — успешном или нет — воркер ровно один раз дёргает
// progress callback, чтобы ядро не ждало планового прохода harvester'а.
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одних очередей.
package worker
