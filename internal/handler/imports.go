package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/examdesk/gradebook/internal/importer"
)

// handleImportExam creates an exam from an uploaded exam_file. A file already
// imported under the same name is skipped.
func (h *Handler) handleImportExam(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("exam_file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	res, err := importer.Import(h.store, header.Filename, data)
	if err != nil {
		slog.Warn("exam import failed", "file", header.Filename, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	status := http.StatusOK
	if res.Status == importer.StatusImported {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}
