// Package harvester — реконсилиация заказов с внешним конвертационным
// сервисом.
//
// Harvester периодически обходит backing queues, находит jobs всех
// незавершённых заказов, опрашивает сервис и сворачивает снимки статусов
// в переходы state machine заказа. Для FINISHED-заказов запускается
// материализация результатов; каждый терминальный переход уведомляет
// пользователя ровно один раз.
package harvester
