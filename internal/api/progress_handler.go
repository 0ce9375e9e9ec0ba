package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/harvester"
)

// TrackJobProgress — progress callback конвертационного сервиса.
// GET /job_progress/{order_id}
//
// Worker дёргает этот URL по завершении job. Вместо ожидания планового
// прохода harvester'а заказ реконсилируется сразу.
func (h *Handler) TrackJobProgress(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("order_id"))
	if err != nil {
		BadRequest(w, "invalid order id")
		return
	}

	order, err := h.reconciler.ReconcileOrder(r.Context(), orderID)
	if errors.Is(err, harvester.ErrOrderNotSubmitted) {
		InvalidState(w, "order has no submitted job")
		return
	}
	if HandleRepoError(w, h.logger, err, "order not found") {
		return
	}

	Success(w, OrderFromDomain(*order))
}
