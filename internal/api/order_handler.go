package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Excerpta/internal/domain"
)

// CreateOrder создаёт новый заказ на выгрузку.
// POST /api/v1/orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Orderer.ID == uuid.Nil {
		BadRequest(w, "orderer.id is required")
		return
	}
	if len(req.Formats) == 0 {
		BadRequest(w, "at least one format is required")
		return
	}
	for _, f := range req.Formats {
		if !domain.KnownFormat(f) {
			BadRequest(w, "unknown format: "+f)
			return
		}
	}

	geometry := domain.BoundingGeometry{
		West:     req.Extent.West,
		South:    req.Extent.South,
		East:     req.Extent.East,
		North:    req.Extent.North,
		Polyfile: req.Extent.Polyfile,
	}
	if err := geometry.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	orderer := domain.Orderer{
		ID:     req.Orderer.ID,
		Name:   req.Orderer.Name,
		Email:  req.Orderer.Email,
		Groups: req.Orderer.Groups,
	}
	if err := h.orderers.Upsert(r.Context(), orderer); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	order := domain.NewExtractionOrder(orderer.ID, req.Formats, req.Options, geometry)
	if err := h.orders.Create(r.Context(), order); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("order created",
		"order_id", order.ID,
		"orderer_id", orderer.ID,
		"formats", order.Formats,
	)

	if h.publisher != nil {
		if err := h.publisher.PublishOrderCreated(r.Context(), order.ID); err != nil {
			// Заказ сохранён; submitter подхватит его через polling fallback.
			h.logger.Warn("failed to publish order.created", "order_id", order.ID, "error", err)
		}
		Created(w, OrderFromDomain(*order))
		return
	}

	if h.syncSubmitter != nil {
		if err := h.syncSubmitter.SubmitOrder(r.Context(), order.ID); err != nil {
			// Заказ остаётся UNSUBMITTED; клиент видит причину сразу.
			UpstreamError(w, h.logger, err)
			return
		}
		submitted, err := h.orders.GetByID(r.Context(), order.ID)
		if HandleRepoError(w, h.logger, err, "order not found") {
			return
		}
		Created(w, OrderFromDomain(*submitted))
		return
	}

	Created(w, OrderFromDomain(*order))
}

// GetOrder возвращает заказ с файлами результатов.
// GET /api/v1/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid order id")
		return
	}

	order, err := h.orders.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "order not found") {
		return
	}

	files, err := h.files.ListByOrder(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	resp := OrderFromDomain(*order)
	resp.Files = make([]OutputFileResponse, len(files))
	for i, f := range files {
		resp.Files[i] = OutputFileFromDomain(f)
	}

	Success(w, resp)
}

// ListOrders возвращает заказы пользователя, новые первыми.
// GET /api/v1/orders?orderer_id=...&limit=...&offset=...
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ordererID, err := uuid.Parse(r.URL.Query().Get("orderer_id"))
	if err != nil {
		BadRequest(w, "invalid orderer_id")
		return
	}

	limit := parseIntParam(r.URL.Query().Get("limit"), 50)
	offset := parseIntParam(r.URL.Query().Get("offset"), 0)

	orders, err := h.orders.ListByOrderer(r.Context(), ordererID, limit, offset)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]OrderResponse, len(orders))
	for i, o := range orders {
		result[i] = OrderFromDomain(o)
	}

	List(w, result, len(result))
}

// ListNotifications возвращает уведомления пользователя.
// GET /api/v1/users/{id}/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid user id")
		return
	}

	limit := parseIntParam(r.URL.Query().Get("limit"), 50)

	notifications, err := h.notifications.ListByUser(r.Context(), userID, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]NotificationResponse, len(notifications))
	for i, n := range notifications {
		result[i] = NotificationFromDomain(n)
	}

	List(w, result, len(result))
}

// parseIntParam парсит целочисленный query-параметр с дефолтом.
func parseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
