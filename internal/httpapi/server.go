// Package httpapi implements the §6 external HTTP surface on top of the
// standard library net/http, following the reference orchestrator's plain
// http.ServeMux style: one handler per path, the method switched on inside
// the handler rather than registered per verb.
package httpapi

import (
	"net/http"

	"github.com/attackguard/attackctl/internal/store/sqlstore"
	"github.com/attackguard/attackctl/internal/workflow"
)

// Server wires the engine and relational store to HTTP handlers.
type Server struct {
	Engine        *workflow.Engine
	Reports       *sqlstore.Store
	UploadDir     string
	MaxUploadSize int64
}

// Routes builds the ServeMux for the analysis/report surface. The /health
// endpoint is wired by the caller on the returned mux (cmd/attackctl/main.go),
// same split the reference main.go uses.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/analyze/", s.handleAnalyzeStatus)
	mux.HandleFunc("/api/reports", s.handleReportList)
	mux.HandleFunc("/api/reports/", s.handleReportByID)
	return mux
}
