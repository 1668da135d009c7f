package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/examdesk/gradebook/internal/correction"
	"github.com/examdesk/gradebook/internal/export"
	"github.com/examdesk/gradebook/internal/handler/views"
	"github.com/examdesk/gradebook/internal/model"
	"github.com/examdesk/gradebook/internal/results"
	"github.com/examdesk/gradebook/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	svc      *correction.Service
	bands    export.Bander
	gatherer prometheus.Gatherer
}

// New creates a new Handler.
func New(s *store.Store, svc *correction.Service, bands export.Bander, g prometheus.Gatherer) *Handler {
	return &Handler{store: s, svc: svc, bands: bands, gatherer: g}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/analytics", http.StatusSeeOther)
	})
	r.Get("/analytics", h.handleAnalyticsPage)
	r.Get("/exams/{examID}/report", h.handleReportPage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/exams", h.handleListExams)
		r.Post("/exams", h.handleImportExam)
		r.Post("/exams/{examID}/grade", h.handleGrade)
		r.Get("/exams/{examID}/results", h.handleResults)
		r.Post("/exams/{examID}/validate", h.handleValidate)
		r.Post("/exams/{examID}/close", h.handleClose)
		r.Get("/exams/{examID}/export", h.handleExport)
		r.Get("/analytics", h.handleAnalytics)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListExams()
	if err != nil {
		writeError(w, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	set, err := h.svc.Grade(r.Context(), examID, r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	set, err := h.svc.Results(chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Validate)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Close)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(string) error) {
	examID := chi.URLParam(r, "examID")
	if err := apply(examID); err != nil {
		writeError(w, err)
		return
	}
	exam, err := h.store.GetExam(examID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	set, err := h.svc.Results(examID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.FileName(examID)))
	if err := export.Write(r.Context(), w, format, set, h.bands); err != nil {
		slog.Error("export error", "exam_id", examID, "format", format, "error", err)
	}
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	agg, err := h.svc.Analytics()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (h *Handler) handleAnalyticsPage(w http.ResponseWriter, r *http.Request) {
	agg, err := h.svc.Analytics()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.AnalyticsPage(agg).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleReportPage(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	exam, err := h.store.GetExam(examID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if exam == nil {
		http.NotFound(w, r)
		return
	}

	var set *model.ExamResultSet
	cached, err := h.svc.Results(examID)
	switch {
	case err == nil:
		set = &cached
	case !errors.Is(err, correction.ErrNoResults):
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ReportPage(*exam, set).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var mErr *results.MalformedResponseError
	switch {
	case errors.Is(err, correction.ErrExamNotFound), errors.Is(err, correction.ErrNoResults):
		status = http.StatusNotFound
	case errors.Is(err, correction.ErrGradingInProgress), errors.Is(err, model.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, correction.ErrNoSubmissions):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, correction.ErrUnknownSource):
		status = http.StatusBadRequest
	case errors.As(err, &mErr):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
