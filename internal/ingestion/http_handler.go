package ingestion

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Handler exposes the pipeline over HTTP: submission, status, and progress.
type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the import routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/imports", h.submit)
	mux.HandleFunc("GET /api/imports/{id}", h.status)
	mux.HandleFunc("GET /api/imports/{id}/progress", h.progress)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	suitcaseID, err := uuid.Parse(strings.TrimSpace(r.FormValue("suitcaseId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid suitcase id: %v", err), http.StatusBadRequest)
		return
	}

	var userID uuid.UUID
	if raw := strings.TrimSpace(r.FormValue("userId")); raw != "" {
		userID, err = uuid.Parse(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid user id: %v", err), http.StatusBadRequest)
			return
		}
	}

	chunkSize := 0
	if raw := strings.TrimSpace(r.FormValue("chunkSize")); raw != "" {
		chunkSize, err = strconv.Atoi(raw)
		if err != nil || chunkSize < 0 {
			http.Error(w, "invalid chunk size", http.StatusBadRequest)
			return
		}
	}

	form := r.MultipartForm
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		http.Error(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	uploads := make([]Upload, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		file, err := header.Open()
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to open %s: %v", header.Filename, err), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to read %s: %v", header.Filename, err), http.StatusBadRequest)
			return
		}
		uploads = append(uploads, Upload{Name: header.Filename, Size: header.Size, Data: data})
	}

	jobID, err := h.service.Submit(r.Context(), Request{
		SuitcaseID: suitcaseID,
		UserID:     userID,
		Uploads:    uploads,
		ChunkSize:  chunkSize,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	job, ok := h.service.JobStatus(r.PathValue("id"))
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if progress, ok := h.service.JobProgress(jobID); ok {
		writeJSON(w, http.StatusOK, progress)
		return
	}
	// Fall back to the job record when the cache entry has lapsed.
	job, ok := h.service.JobStatus(jobID)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     job.Status,
		"percentage": job.TotalProgress,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
