package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// progressInterval is how often the event stream reports run counters.
var progressInterval = 500 * time.Millisecond

type healthResponse struct {
	Status    string                `json:"status"`
	Importers int                   `json:"importers"`
	Runs      core.RunLimiterStatus `json:"runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{
		Status:    "ok",
		Importers: s.service.Registry().Len(),
		Runs:      s.service.Limiter().Status(),
	})
}

func (s *Server) handleListImporters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.Importers())
}

func (s *Server) handleGetImporter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "importer")
	for _, info := range s.service.Importers() {
		if info.Name == name {
			writeJSON(w, r, http.StatusOK, info)
			return
		}
	}
	respondError(w, r, &core.ConfigurationError{Importer: name, Err: core.ErrImporterNotFound})
}

type matchRequest struct {
	Headers []string `json:"headers"`
}

type matchResponse struct {
	Mapping     core.ColumnMapping      `json:"mapping"`
	Suggestions []core.HeaderSuggestion `json:"suggestions"`
}

// handleMatch proposes a mapping for a header row without a file.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	importer := chi.URLParam(r, "importer")
	mapping, err := s.service.ProposeMapping(importer, req.Headers)
	if err != nil {
		respondError(w, r, err)
		return
	}
	suggestions, err := s.service.Suggest(importer, req.Headers)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, matchResponse{Mapping: mapping, Suggestions: suggestions})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.ActiveRuns())
}

// runView is an in-flight run or a finished one.
type runView struct {
	Status *core.RunStatus `json:"status,omitempty"`
	Result *runResponse    `json:"result,omitempty"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	if st, ok := s.service.Status(id); ok {
		writeJSON(w, r, http.StatusOK, runView{Status: &st})
		return
	}
	if res, ok := s.service.Result(id); ok {
		writeJSON(w, r, http.StatusOK, runView{Result: newRunResponse(res)})
		return
	}
	writeJSON(w, r, http.StatusNotFound, errRunNotFound)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	if !s.service.CancelRun(id) {
		writeJSON(w, r, http.StatusNotFound, errRunNotFound)
		return
	}
	logRequest(r).Info("run cancelled", "run_id", id.String())
	writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleRunEvents streams run progress as server-sent events: "progress"
// with the run's counters while it is active, then one "complete" event
// with its result.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	_, active := s.service.Status(id)
	_, finished := s.service.Result(id)
	if !active && !finished {
		writeJSON(w, r, http.StatusNotFound, errRunNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, r, http.StatusInternalServerError, &ErrorResponse{
			Error: "streaming not supported", Message: "Streaming is not supported", Code: "ERR000",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	eventID := 0
	send := func(event string, v any) {
		data, _ := json.Marshal(v)
		eventID++
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", eventID, event, data)
		flusher.Flush()
	}

	for {
		if st, ok := s.service.Status(id); ok {
			send("progress", st)
		} else {
			if res, ok := s.service.Result(id); ok {
				send("complete", newRunResponse(res))
			} else {
				send("complete", struct{}{})
			}
			return
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

var errRunNotFound = &ErrorResponse{
	Error:   "run not found",
	Message: "No such import run",
	Action:  "Check the run id; finished runs are only kept for a while",
	Code:    "RUN004",
}

// runID parses the runID URL parameter, answering 404 when malformed.
func (s *Server) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		writeJSON(w, r, http.StatusNotFound, errRunNotFound)
		return uuid.Nil, false
	}
	return id, true
}
