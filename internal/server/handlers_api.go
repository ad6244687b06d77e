package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/innowave/analytiqa/internal/db"
	"github.com/innowave/analytiqa/internal/jobs"
	"github.com/innowave/analytiqa/internal/model"
	"github.com/innowave/analytiqa/internal/portal"
)

// userHeader names the acting user. Authentication happens upstream.
const userHeader = "X-User-Email"

var errNoUser = errors.New(userHeader + " header is required")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListNatCos(w http.ResponseWriter, r *http.Request) {
	natcos, err := s.db.ListNatCos(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if natcos == nil {
		natcos = []model.NatCo{}
	}
	writeJSON(w, http.StatusOK, natcos)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.db.ListTags(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if tags == nil {
		tags = []model.Tag{}
	}
	writeJSON(w, http.StatusOK, tags)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// fail writes err with the status its sentinel maps to.
func fail(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, portal.ErrForbidden), errors.Is(err, portal.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, portal.ErrOpenIssues):
		return http.StatusConflict
	case errors.Is(err, portal.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, errNoUser):
		return http.StatusUnauthorized
	case errors.Is(err, jobs.ErrFull):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// actor returns the acting user or writes a 401.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := r.Header.Get(userHeader)
	if u == "" {
		fail(w, errNoUser)
		return "", false
	}
	return u, true
}

// pathInt parses a numeric path value or writes a 400.
func pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || v < 1 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s %q", name, r.PathValue(name)))
		return 0, false
	}
	return v, true
}

// decode reads a JSON body into v or writes a 400.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return false
	}
	return true
}
