package server

import "net/http"

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health & reference data
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/natcos", s.handleListNatCos)
	mux.HandleFunc("GET /api/v1/tags", s.handleListTags)

	// Test cases
	mux.HandleFunc("GET /api/v1/testcases", s.handleListTestCases)
	mux.HandleFunc("POST /api/v1/testcases", s.handleCreateTestCase)
	mux.HandleFunc("GET /api/v1/testcases/{id}", s.handleGetTestCase)
	mux.HandleFunc("PATCH /api/v1/testcases/{id}", s.handleUpdateTestCase)
	mux.HandleFunc("GET /api/v1/testcases/{id}/history", s.handleListHistory)
	mux.HandleFunc("PUT /api/v1/testcases/{id}/steps/{n}", s.handlePutStep)
	mux.HandleFunc("DELETE /api/v1/testcases/{id}/steps/{n}", s.handleDeleteStep)

	// Natco applicability
	mux.HandleFunc("GET /api/v1/testcases/{id}/natco-status", s.handleListNatcoRows)
	mux.HandleFunc("PATCH /api/v1/natco-status", s.handleUpdateNatcoRows)

	// Scripts, issues and run results
	mux.HandleFunc("GET /api/v1/testcases/{id}/scripts", s.handleListScripts)
	mux.HandleFunc("POST /api/v1/scripts", s.handleCreateScript)
	mux.HandleFunc("GET /api/v1/scripts/{id}", s.handleGetScript)
	mux.HandleFunc("GET /api/v1/scripts/{id}/issues", s.handleListIssues)
	mux.HandleFunc("POST /api/v1/scripts/{id}/issues", s.handleCreateIssue)
	mux.HandleFunc("GET /api/v1/scripts/{id}/results", s.handleListResults)
	mux.HandleFunc("POST /api/v1/scripts/{id}/results", s.handleReportResults)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.handleGetIssue)
	mux.HandleFunc("PATCH /api/v1/issues/{id}", s.handleUpdateIssue)

	// Comments
	mux.HandleFunc("GET /api/v1/comments/{kind}/{id}", s.handleListComments)
	mux.HandleFunc("POST /api/v1/comments/{kind}/{id}", s.handleAddComment)
	mux.HandleFunc("PATCH /api/v1/comments/{id}", s.handleUpdateComment)
	mux.HandleFunc("DELETE /api/v1/comments/{id}", s.handleDeleteComment)

	// Notifications
	mux.HandleFunc("GET /api/v1/notifications", s.handleListNotifications)
	mux.HandleFunc("POST /api/v1/notifications/{id}/read", s.handleMarkRead)
	mux.HandleFunc("DELETE /api/v1/notifications", s.handleClearNotifications)

	// Worksheet imports
	mux.HandleFunc("POST /api/v1/imports", s.handleImport)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleGetJob)

	// Device farm
	mux.HandleFunc("GET /api/v1/stb/nodes", s.handleNodeStatus)
	mux.HandleFunc("GET /api/v1/stb/test-case-names", s.handleTestCaseNames)
	mux.HandleFunc("POST /api/v1/stb/run", s.handleRunTests)
}
