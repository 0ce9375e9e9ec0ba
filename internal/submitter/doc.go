// Package submitter — отправка новых заказов в конвертационный сервис.
//
// Submitter получает события order.created из RabbitMQ (event-driven)
// и периодически подхватывает UNSUBMITTED-заказы из БД (polling
// fallback). Для каждого заказа создаётся job во внешнем сервисе,
// заказ помечается QUEUED, а job регистрируется в backing queue,
// выбранной по приоритету пользователя.
package submitter
