// Package cli — команды excerpta-cli.
//
// CLI ходит в HTTP API ядра и не имеет прямого доступа к БД.
// Структура:
//   - client.go       — HTTP-клиент для API
//   - order.go        — команды управления заказами
//   - notification.go — просмотр уведомлений пользователя
//   - estimate.go     — оценка размеров результата
//   - output.go       — табличный и JSON-вывод
package cli
