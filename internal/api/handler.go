// Package api provides the HTTP handlers and routing for the worker
// callback surface.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"stevedore/internal/apperrors"
	"stevedore/internal/health"
	"stevedore/internal/store"
	"stevedore/internal/workerjob"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains HTTP handlers for the worker callback API
type Handler struct {
	workerJobs *workerjob.Service
	health     *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(workerJobs *workerjob.Service, healthChecker *health.Checker) *Handler {
	return &Handler{
		workerJobs: workerJobs,
		health:     healthChecker,
	}
}

type uploadFileRequest struct {
	FolderID    string `json:"folderId"`
	ObjectKey   string `json:"objectKey"`
	ContentType string `json:"contentType"`
}

type requestUploadURLsRequest struct {
	Files []uploadFileRequest `json:"files"`
}

type uploadResponse struct {
	FolderID     string `json:"folderId"`
	ObjectKey    string `json:"objectKey"`
	PresignedURL string `json:"presignedUrl"`
}

type requestUploadURLsResponse struct {
	Uploads []uploadResponse `json:"uploads"`
}

// RequestUploadURLs handles POST /api/v1/docker/worker-jobs/{jobId}/request-upload-urls
func (h *Handler) RequestUploadURLs(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		h.writeError(w, http.StatusUnauthorized, workerjob.CodeTokenInvalid, "worker job token required")
		return
	}

	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req requestUploadURLsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if len(req.Files) == 0 {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "files must not be empty")
		return
	}

	files := make([]workerjob.UploadRequest, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, workerjob.UploadRequest{
			FolderID:    f.FolderID,
			ObjectKey:   f.ObjectKey,
			ContentType: f.ContentType,
		})
	}

	uploads, err := h.workerJobs.RequestUploadURLs(r.Context(), claims, files)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := requestUploadURLsResponse{Uploads: make([]uploadResponse, 0, len(uploads))}
	for _, u := range uploads {
		resp.Uploads = append(resp.Uploads, uploadResponse{
			FolderID:     u.FolderID,
			ObjectKey:    u.ObjectKey,
			PresignedURL: u.PresignedURL,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type completionErrorRequest struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type completeJobRequest struct {
	Success       bool                    `json:"success"`
	Result        any                     `json:"result,omitempty"`
	Error         *completionErrorRequest `json:"error,omitempty"`
	UploadedFiles []uploadFileRequest     `json:"uploadedFiles,omitempty"`
}

// CompleteJob handles POST /api/v1/docker/worker-jobs/{jobId}/complete
func (h *Handler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		h.writeError(w, http.StatusUnauthorized, workerjob.CodeTokenInvalid, "worker job token required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req completeJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	completion := workerjob.CompletionRequest{
		Success: req.Success,
		Result:  req.Result,
	}
	if req.Error != nil {
		completion.Error = &workerjob.CompletionError{
			Code:    req.Error.Code,
			Message: req.Error.Message,
			Details: req.Error.Details,
		}
	}
	for _, f := range req.UploadedFiles {
		completion.UploadedFiles = append(completion.UploadedFiles, store.UploadedFile{
			FolderID:  f.FolderID,
			ObjectKey: f.ObjectKey,
		})
	}

	if err := h.workerJobs.CompleteJob(r.Context(), claims, completion); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if dependencies (Docker hosts) are unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response with a machine-readable code.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{"error": message, "code": code})
}

// handleError handles errors from the service layer with appropriate HTTP
// status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, apperrors.Code(err), err.Error())
}
