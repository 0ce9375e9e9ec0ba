package api

import (
	"io"
	"net/http"

	"github.com/google/uuid"
)

// DownloadFile отдаёт файл результата по публичному идентификатору.
// GET /api/v1/downloads/{public_id}
//
// Файл адресуется только public identifier'ом: внутренний storage path
// наружу не выходит.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	publicID, err := uuid.Parse(r.PathValue("public_id"))
	if err != nil {
		BadRequest(w, "invalid file identifier")
		return
	}

	file, err := h.files.GetByPublicID(r.Context(), publicID)
	if HandleRepoError(w, h.logger, err, "file not found") {
		return
	}

	reader, err := h.storage.Open(file.StoragePath)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.FileName()+`"`)

	if _, err := io.Copy(w, reader); err != nil {
		// Заголовки уже отправлены; обрыв только логируем.
		h.logger.Warn("file download interrupted",
			"public_id", publicID,
			"error", err,
		)
	}
}
