package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/archivekit/vaultline/errors"
	"github.com/archivekit/vaultline/pipeline"
	"github.com/julienschmidt/httprouter"
)

// TaskStatus serves GET /task/{id} (spec §4.1): the current lifecycle state
// of a job and, when terminal, its result payload or error string.
func (d *Collection) TaskStatus() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")
		if id == "" {
			errors.WriteHTTPBadRequest(w, "missing task id", nil)
			return
		}

		status, ok := d.lookupStatus(req, id)
		if !ok {
			errors.WriteHTTPNotFound(w, "unknown task id", nil)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to encode task status", err)
		}
	}
}

// lookupStatus checks the Redis mirror the worker processes write to first
// (spec §9 cmd/worker) and falls back to the in-process status table, which
// holds the pending entry written when the job was enqueued.
func (d *Collection) lookupStatus(req *http.Request, id string) (pipeline.JobStatus, bool) {
	if d.StatusMirror != nil {
		if status, ok := d.StatusMirror.Load(req.Context(), id); ok {
			return status, true
		}
	}
	if status := d.StatusTable.Get(id); status.TaskID != "" {
		return status, true
	}
	return pipeline.JobStatus{}, false
}
