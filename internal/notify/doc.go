// Package notify — уведомления о терминальных исходах заказов.
//
// Два механизма:
//   - Notifier — уведомление пользователя приложения: durable-запись
//     в БД всегда, email поверх неё best-effort;
//   - CallbackNotifier — fire-and-forget HTTP callback worker'а
//     на URL, переданный при создании job.
package notify
