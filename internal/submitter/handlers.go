package submitter

import (
	"context"
	"fmt"

	"github.com/shaiso/Excerpta/internal/mq"
)

// handleOrderCreated обрабатывает событие о новом заказе.
//
// Ошибка отправки возвращает сообщение в очередь для retry; после
// исчерпания retry сообщение уходит в DLQ, а заказ подхватится
// polling fallback'ом.
func (s *Submitter) handleOrderCreated(ctx context.Context, msg *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.OrderCreatedPayload](&msg.Message)
	if err != nil {
		return fmt.Errorf("parse order.created payload: %w", err)
	}

	s.logger.Debug("received order.created", "order_id", payload.OrderID)

	return s.SubmitOrder(ctx, payload.OrderID)
}
