package server

import (
	"net/http"
	"strconv"

	"github.com/innowave/analytiqa/internal/model"
	"github.com/innowave/analytiqa/internal/portal"
)

func (s *Server) handleListTestCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 {
		limit = 50
	}
	tcs, err := s.portal.ListTestCases(r.Context(), model.TestCaseFilter{
		Status:           model.Status(q.Get("status")),
		AutomationStatus: model.AutomationStatus(q.Get("automation_status")),
		Tag:              q.Get("tag"),
		Assigned:         q.Get("assigned"),
		Limit:            limit,
		Offset:           offset,
	})
	if err != nil {
		fail(w, err)
		return
	}
	if tcs == nil {
		tcs = []model.TestCase{}
	}
	writeJSON(w, http.StatusOK, tcs)
}

func (s *Server) handleCreateTestCase(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var tc model.TestCase
	if !decode(w, r, &tc) {
		return
	}
	created, err := s.portal.CreateTestCase(r.Context(), user, tc)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTestCase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	tc, err := s.portal.GetTestCase(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) handleUpdateTestCase(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var p model.TestCasePatch
	if !decode(w, r, &p) {
		return
	}
	tc, err := s.portal.UpdateTestCase(r.Context(), user, id, p)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	hist, err := s.portal.ListHistory(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	if hist == nil {
		hist = []model.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handlePutStep(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	n, ok := pathInt(w, r, "n")
	if !ok {
		return
	}
	var step model.Step
	if !decode(w, r, &step) {
		return
	}
	tc, err := s.portal.PutStep(r.Context(), user, id, int(n), step)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) handleDeleteStep(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	n, ok := pathInt(w, r, "n")
	if !ok {
		return
	}
	tc, err := s.portal.DeleteStep(r.Context(), user, id, int(n))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) handleListNatcoRows(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	rows, err := s.portal.ListNatcoRows(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	if rows == nil {
		rows = []model.NatcoStatus{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleUpdateNatcoRows(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var p portal.NatcoRowPatch
	if !decode(w, r, &p) {
		return
	}
	rows, err := s.portal.UpdateNatcoRows(r.Context(), user, p)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
