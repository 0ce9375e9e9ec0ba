// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - order.created — новый заказ ожидает отправки в конвертационный сервис
//
// Exchanges:
//   - excerpta.orders — события заказов
//   - excerpta.dlq    — dead letter queue
package mq
