package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/spool"
)

const (
	// multipartMemory is how much of a form ParseMultipartForm keeps in
	// memory; larger files go to temp files.
	multipartMemory = 32 << 20

	// multipartOverhead is allowed on top of the file size for the
	// multipart framing.
	multipartOverhead = 1 << 20
)

var (
	errNoFile        = errors.New("no file provided")
	errMissingUpload = errors.New("upload_id is required")
)

type uploadResponse struct {
	Upload  spool.Upload        `json:"upload"`
	Preview *core.PreviewResult `json:"preview"`
}

// handleUpload spools the "file" form field and answers with a preview and
// proposed mapping. The upload id is then passed to handleRun.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	importer := chi.URLParam(r, "importer")
	if _, err := s.service.Registry().Lookup(importer); err != nil {
		respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, r, fmt.Errorf("parse upload form: %w", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	upload, err := s.store.Save(header.Filename, file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	preview, err := s.service.Preview(r.Context(), importer, upload.Path)
	if err != nil {
		_ = s.store.Remove(upload.ID)
		respondError(w, r, err)
		return
	}

	logRequest(r).Info("upload spooled",
		"importer", importer,
		"upload_id", upload.ID,
		"file_name", upload.Name,
		"size", upload.Size,
	)
	writeJSON(w, r, http.StatusCreated, uploadResponse{Upload: upload, Preview: preview})
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(chi.URLParam(r, "uploadID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type runRequest struct {
	UploadID string             `json:"upload_id"`
	Mapping  core.ColumnMapping `json:"mapping"`
	// Async returns as soon as the run has started.
	Async bool `json:"async"`
}

type runResponse struct {
	core.RunResult
	Error *ErrorResponse `json:"error,omitempty"`
}

func newRunResponse(res core.RunResult) *runResponse {
	out := &runResponse{RunResult: res}
	if res.Err != nil {
		out.Error = newErrorResponse(res.Err)
	}
	return out
}

type runStarted struct {
	RunID     uuid.UUID `json:"run_id"`
	Importer  string    `json:"importer"`
	StatusURL string    `json:"status_url"`
	EventsURL string    `json:"events_url"`
}

// handleRun imports a spooled upload with the confirmed mapping.
//
// The run is detached from the request: a client that disconnects does not
// cancel it (DELETE /api/runs/{id} does). A successful run removes its
// upload; a failed one keeps it so the mapping can be fixed and retried.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.UploadID == "" {
		respondError(w, r, &requestError{err: errMissingUpload})
		return
	}
	path, err := s.store.Path(req.UploadID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	importer := chi.URLParam(r, "importer")
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	stop := context.AfterFunc(s.runCtx, cancel)

	// Async callers are turned away at once when every run slot is busy.
	start := s.service.Start
	if req.Async {
		start = s.service.TryStart
	}
	h, err := start(ctx, importer, path, req.Mapping, capabilities(r))
	if err != nil {
		stop()
		cancel()
		respondError(w, r, err)
		return
	}

	logger := logRequest(r)
	logger.Info("run started", "importer", importer, "run_id", h.ID.String(), "upload_id", req.UploadID)

	go func() {
		res := h.Wait()
		stop()
		cancel()
		if !res.OK() {
			return
		}
		if err := s.store.Remove(req.UploadID); err != nil {
			logger.Warn("remove upload", "upload_id", req.UploadID, "error", err)
		}
	}()

	if req.Async {
		writeJSON(w, r, http.StatusAccepted, runStarted{
			RunID:     h.ID,
			Importer:  h.Importer,
			StatusURL: "/api/runs/" + h.ID.String(),
			EventsURL: "/api/runs/" + h.ID.String() + "/events",
		})
		return
	}

	res := h.Wait()
	status := http.StatusOK
	if !res.OK() {
		status = statusFor(res.Err)
	}
	writeJSON(w, r, status, newRunResponse(res))
}
