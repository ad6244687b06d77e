package server

import (
	"errors"
	"net/http"

	"github.com/innowave/analytiqa/internal/stbtester"
)

var errNoSTB = errors.New("stb-tester is not configured")

func (s *Server) handleNodeStatus(w http.ResponseWriter, r *http.Request) {
	if s.stb == nil {
		writeError(w, http.StatusServiceUnavailable, errNoSTB)
		return
	}
	nodes, err := s.stb.NodeStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if nodes == nil {
		nodes = []stbtester.NodeStatus{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleTestCaseNames(w http.ResponseWriter, r *http.Request) {
	if s.stb == nil {
		writeError(w, http.StatusServiceUnavailable, errNoSTB)
		return
	}
	branch := r.URL.Query().Get("branch")
	if branch == "" {
		branch = "main"
	}
	names, err := s.stb.TestCaseNames(r.Context(), branch)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleRunTests(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	if s.stb == nil {
		writeError(w, http.StatusServiceUnavailable, errNoSTB)
		return
	}
	var req stbtester.RunRequest
	if !decode(w, r, &req) {
		return
	}
	job, err := s.stb.RunTests(r.Context(), req)
	if err != nil {
		if errors.Is(err, stbtester.ErrIncompleteRun) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}
