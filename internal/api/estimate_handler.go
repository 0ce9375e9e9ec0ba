package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// EstimateFileSize возвращает оценку размера pbf-среза экстента.
// GET /api/v1/estimated_file_size?west=...&south=...&east=...&north=...
func (h *Handler) EstimateFileSize(w http.ResponseWriter, r *http.Request) {
	coords := make(map[string]float64, 4)
	for _, name := range []string{"west", "south", "east", "north"} {
		v, err := strconv.ParseFloat(r.URL.Query().Get(name), 64)
		if err != nil {
			BadRequest(w, "invalid or missing coordinate: "+name)
			return
		}
		coords[name] = v
	}

	size, err := h.estimator.EstimatedFileSize(r.Context(),
		coords["west"], coords["south"], coords["east"], coords["north"])
	if err != nil {
		UpstreamError(w, h.logger, err)
		return
	}

	Success(w, EstimatedFileSizeResponse{EstimatedFileSizeInBytes: size})
}

// EstimateFormatSizes возвращает оценку размеров результата по форматам.
// POST /api/v1/format_size_estimation
func (h *Handler) EstimateFormatSizes(w http.ResponseWriter, r *http.Request) {
	var req FormatSizeEstimationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.EstimatedPbfFileSizeInBytes <= 0 {
		BadRequest(w, "estimated_pbf_file_size_in_bytes must be positive")
		return
	}

	sizes, err := h.estimator.FormatSizeEstimation(r.Context(),
		req.EstimatedPbfFileSizeInBytes, req.DetailLevel)
	if err != nil {
		UpstreamError(w, h.logger, err)
		return
	}

	Success(w, FormatSizeEstimationResponse{EstimatedFileSizeByFormat: sizes})
}
