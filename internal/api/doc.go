// Package api — HTTP API ядра Excerpta.
//
// Структура:
//   - handler.go          — Handler с зависимостями
//   - routes.go           — регистрация маршрутов
//   - order_handler.go    — создание и просмотр заказов
//   - download_handler.go — выдача файлов результатов
//   - progress_handler.go — progress callback конвертационного сервиса
//   - estimate_handler.go — оценка размеров результата
//   - dto.go              — request/response структуры
//   - response.go         — helpers для JSON-ответов
//   - middleware.go       — logging, recovery
package api
