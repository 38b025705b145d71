package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/rs/zerolog"

	"afin/internal/api/middleware"
	"afin/internal/archive"
	"afin/internal/domain"
	"afin/internal/pipeline"
	"afin/internal/reconcile"
	"afin/internal/staging"
)

// defaultUserID is used when the client sends no X-User-ID header. The
// service is single-tenant by default; the header exists for shared
// deployments.
const defaultUserID = "default"

func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return defaultUserID
}

// IngestHandler handles document upload endpoints.
type IngestHandler struct {
	coordinator *pipeline.Coordinator
	archiver    archive.Archiver
	maxBytes    int64
	log         zerolog.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(coordinator *pipeline.Coordinator, archiver archive.Archiver, maxBytes int64, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{
		coordinator: coordinator,
		archiver:    archiver,
		maxBytes:    maxBytes,
		log:         log,
	}
}

// Submit handles POST /api/uploads. Files are queued for the debounced
// pipeline run and the request returns immediately; extraction results
// arrive via the notification channel and GET /api/pending.
func (h *IngestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		if errors.As(err, new(*http.MaxBytesError)) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "No files provided (use multipart field 'files')")
		return
	}

	user := userID(r)
	accepted := 0
	for _, fh := range files {
		upload, err := readUpload(fh)
		if err != nil {
			h.log.Error().Err(err).Str("file", fh.Filename).Msg("Could not read upload")
			continue
		}

		// Archiving is best-effort: a dead bucket must not block ingestion.
		if uri, err := h.archiver.Save(r.Context(), user, upload); err != nil {
			h.log.Error().Err(err).Str("file", upload.Filename).Msg("Could not archive upload")
		} else if uri != "" {
			h.log.Debug().Str("file", upload.Filename).Str("uri", uri).Msg("Upload archived")
		}

		h.coordinator.Submit(user, upload)
		accepted++
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": accepted,
		"status":   "queued",
	})
}

func readUpload(fh *multipart.FileHeader) (domain.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.Upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.Upload{}, err
	}
	return domain.Upload{
		Filename:  fh.Filename,
		MediaType: fh.Header.Get("Content-Type"),
		Data:      data,
	}, nil
}

// ReviewHandler handles the pending-transaction review endpoints.
type ReviewHandler struct {
	staging         staging.Store
	engine          *reconcile.Engine
	defaultType     string
	defaultCurrency string
	log             zerolog.Logger
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(store staging.Store, engine *reconcile.Engine, defaultType, defaultCurrency string, log zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		staging:         store,
		engine:          engine,
		defaultType:     defaultType,
		defaultCurrency: defaultCurrency,
		log:             log,
	}
}

// Pending handles GET /api/pending
func (h *ReviewHandler) Pending(w http.ResponseWriter, r *http.Request) {
	rows, err := h.staging.Read(r.Context(), userID(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read pending transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read pending transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": rows,
		"count":        len(rows),
	})
}

// Confirm handles POST /api/pending/confirm. It commits every pending row
// into the named account and clears the staging set on success.
func (h *ReviewHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account  string `json:"account"`
		Type     string `json:"type"`
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Account == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account is required")
		return
	}
	if req.Type == "" {
		req.Type = h.defaultType
	}
	if req.Currency == "" {
		req.Currency = h.defaultCurrency
	}

	ctx := r.Context()
	user := userID(r)

	rows, err := h.staging.Read(ctx, user)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read pending transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read pending transactions")
		return
	}
	if len(rows) == 0 {
		middleware.WriteError(w, http.StatusConflict, "Nothing pending to confirm")
		return
	}

	report, err := h.engine.Commit(ctx, req.Account, req.Type, req.Currency, rows)
	if err != nil {
		// Progress up to the failing row is committed; pending rows stay
		// staged so the user can retry.
		h.log.Error().Err(err).Str("account", req.Account).Msg("Commit failed partway")
		middleware.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":    "Commit failed partway; pending rows were kept",
			"matched":  report.Matched,
			"inserted": report.Inserted,
		})
		return
	}

	if err := h.staging.Clear(ctx, user); err != nil {
		h.log.Error().Err(err).Msg("Failed to clear staging after commit")
		middleware.WriteError(w, http.StatusInternalServerError, "Committed but failed to clear pending set")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": report.AccountID,
		"matched":    report.Matched,
		"inserted":   report.Inserted,
	})
}

// Discard handles DELETE /api/pending
func (h *ReviewHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.staging.Clear(r.Context(), userID(r)); err != nil {
		h.log.Error().Err(err).Msg("Failed to discard pending transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to discard pending transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}
