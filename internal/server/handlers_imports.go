package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/innowave/analytiqa/internal/worksheet"
)

const maxUploadBytes = 32 << 20

// handleImport parses the uploaded workbook and queues the import. The
// caller polls the returned job for the outcome.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err))
		return
	}
	defer f.Close()

	sheet, err := worksheet.Open(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job, err := s.jobs.Submit("import", func(ctx context.Context) (any, error) {
		res := s.importer.Import(ctx, sheet, user)
		if !res.Status {
			return res, errors.New(res.Message)
		}
		return res, nil
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": "processing"})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("job %q not found", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, job)
}
