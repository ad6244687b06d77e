package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/innowave/analytiqa/internal/model"
)

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.portal.GetTestCase(r.Context(), id); err != nil {
		fail(w, err)
		return
	}
	scripts, err := s.portal.ListScripts(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	if scripts == nil {
		scripts = []model.Script{}
	}
	writeJSON(w, http.StatusOK, scripts)
}

func (s *Server) handleCreateScript(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var sc model.Script
	if !decode(w, r, &sc) {
		return
	}
	created, err := s.portal.CreateScript(r.Context(), user, sc)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	sc, err := s.portal.GetScript(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.portal.GetScript(r.Context(), id); err != nil {
		fail(w, err)
		return
	}
	issues, err := s.portal.ListIssues(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	if issues == nil {
		issues = []model.ScriptIssue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var is model.ScriptIssue
	if !decode(w, r, &is) {
		return
	}
	is.ScriptID = id
	created, err := s.portal.CreateIssue(r.Context(), user, is)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	is, err := s.portal.GetIssue(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, is)
}

func (s *Server) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var p model.IssuePatch
	if !decode(w, r, &p) {
		return
	}
	is, err := s.portal.UpdateIssue(r.Context(), user, id, p)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, is)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.db.GetScript(r.Context(), id); err != nil {
		fail(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := s.db.ListResults(r.Context(), id, limit)
	if err != nil {
		fail(w, err)
		return
	}
	if results == nil {
		results = []model.STBResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleReportResults stores run results pushed by a CI job. Results
// whose result_id is already stored are skipped.
func (s *Server) handleReportResults(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var results []model.STBResult
	if !decode(w, r, &results) {
		return
	}
	if _, err := s.db.GetScript(r.Context(), id); err != nil {
		fail(w, err)
		return
	}
	for i := range results {
		if results[i].ResultID == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("result %d: result_id is required", i))
			return
		}
		switch results[i].Result {
		case model.ResultPass, model.ResultFail, model.ResultError:
		default:
			writeError(w, http.StatusBadRequest, errors.New("result must be pass, fail or error"))
			return
		}
		results[i].ScriptID = id
	}
	n, err := s.db.InsertResults(r.Context(), results)
	if err != nil {
		fail(w, err)
		return
	}
	s.logger.Info("results reported", "script", id, "received", len(results), "inserted", n)
	writeJSON(w, http.StatusCreated, map[string]int{"inserted": n})
}
