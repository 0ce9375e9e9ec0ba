// Package jobqueue — backing job queues конвертации.
//
// Очереди устроены по модели rq: для каждой очереди ведётся реестр
// идентификаторов jobs «в полёте», сам job — hash со статусом и
// метаданными. Очередей несколько, с приоритетами (high, default);
// очередь пользователя выбирается по членству в группах.
//
// Harvester перечисляет реестры и забирает jobs по id; worker
// блокирующе снимает jobs с pending-списков в порядке приоритета.
package jobqueue
