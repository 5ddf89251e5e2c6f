package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/pipeline"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker func(ctx context.Context) error

// Handler wires the document endpoints to the extraction service.
type Handler struct {
	svc      *ExtractionService
	maxBytes int64
	logger   *slog.Logger
}

func NewHandler(svc *ExtractionService, maxBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, maxBytes: maxBytes, logger: logger}
}

// Register mounts the document endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/documents", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleUpload)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Get("/attempts", h.HandleAttempts)
			r.Get("/decision", h.HandleDecision)
			r.Get("/entities", h.HandleEntities)
			r.Post("/reextract", h.HandleReextract)
			r.Get("/export.xlsx", h.HandleExport)
		})
	})
}

// NewRouter builds the full HTTP surface: documents, /healthz and /metrics.
func NewRouter(h *Handler, health HealthChecker, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health(req.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	h.Register(r)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(common.WithRequestID(r.Context(), middleware.GetReqID(r.Context())))
		next.ServeHTTP(ww, r)
		h.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// HandleUpload handles POST /v1/documents with a raw PDF body or a multipart
// "file" field. ?async=true queues the run instead of waiting for it.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	filename, content, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.SubmitUpload(r.Context(), filename, content, queryBool(r, "async"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	switch {
	case res.Queued:
		status = http.StatusAccepted
	case res.Ingest.Deduplicated:
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	body := r.Body
	if h.maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	filename := r.URL.Query().Get("filename")

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		r.Body = body
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, uploadError(err)
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			return "", nil, uploadError(err)
		}
		return header.Filename, content, nil
	}

	content, err := io.ReadAll(body)
	if err != nil {
		return "", nil, uploadError(err)
	}
	if filename == "" {
		filename = "upload.pdf"
	}
	return filename, content, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return common.NewAppError("DOCUMENT_TOO_LARGE", pipeline.ReasonTooLarge, common.ErrDocumentTooLarge)
	}
	return common.NewAppError("BAD_UPLOAD", err.Error(), common.ErrInvalidInput)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	docs, err := h.svc.Documents(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.svc.Document(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandleAttempts accepts an optional ?run_id= filter.
func (h *Handler) HandleAttempts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var runID *uuid.UUID
	if raw := r.URL.Query().Get("run_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, r, common.NewAppError("INVALID_RUN_ID", "run_id must be a UUID", common.ErrInvalidInput))
			return
		}
		runID = &parsed
	}
	attempts, err := h.svc.Attempts(r.Context(), id, runID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	d, err := h.svc.Decision(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleEntities(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	ents, err := h.svc.Entities(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ents)
}

func (h *Handler) HandleReextract(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Reextract(r.Context(), id, queryBool(r, "async"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	data, err := h.svc.ExportXLSX(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, common.NewAppError("INVALID_ID", "document id must be a UUID", common.ErrInvalidInput))
		return uuid.Nil, false
	}
	return id, true
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError maps err to a status code; internal errors get no description.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatus(err)
	body := errorBody{Error: "INTERNAL", Message: "internal error"}
	var appErr *common.AppError
	if errors.As(err, &appErr) && status != http.StatusInternalServerError {
		body = errorBody{Error: appErr.Code, Message: appErr.Message}
	} else if status != http.StatusInternalServerError {
		body = errorBody{Error: strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_")), Message: err.Error()}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("http.request.failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
