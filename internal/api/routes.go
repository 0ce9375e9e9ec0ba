package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Orders
	mux.Handle("GET /api/v1/orders", chain(http.HandlerFunc(h.ListOrders)))
	mux.Handle("POST /api/v1/orders", chain(http.HandlerFunc(h.CreateOrder)))
	mux.Handle("GET /api/v1/orders/{id}", chain(http.HandlerFunc(h.GetOrder)))

	// Downloads
	mux.Handle("GET /api/v1/downloads/{public_id}", chain(http.HandlerFunc(h.DownloadFile)))

	// Notifications
	mux.Handle("GET /api/v1/users/{id}/notifications", chain(http.HandlerFunc(h.ListNotifications)))

	// Size estimation
	mux.Handle("GET /api/v1/estimated_file_size", chain(http.HandlerFunc(h.EstimateFileSize)))
	mux.Handle("POST /api/v1/format_size_estimation", chain(http.HandlerFunc(h.EstimateFormatSizes)))

	// Progress callback конвертационного сервиса
	mux.Handle("GET /job_progress/{order_id}", chain(http.HandlerFunc(h.TrackJobProgress)))
}
