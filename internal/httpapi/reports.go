package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/attackguard/attackctl/internal/store/sqlstore"
)

// handleReportList implements GET /api/reports with the §6 filter/pagination
// query parameters.
func (s *Server) handleReportList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := sqlstore.ReportFilter{
		Page:       parsePositiveInt(q.Get("page"), 1),
		Limit:      parsePositiveInt(q.Get("limit"), 100),
		URL:        q.Get("url"),
		MinMatches: parsePositiveInt(q.Get("minMatches"), 0),
		Techniques: splitCSV(q.Get("techniques")),
		Tactics:    splitCSV(q.Get("tactics")),
		SortBy:     q.Get("sortBy"),
		SortOrder:  q.Get("sortOrder"),
	}
	if v := q.Get("dateFrom"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.DateFrom = &ms
		}
	}
	if v := q.Get("dateTo"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.DateTo = &ms
		}
	}

	reports, total, err := s.Reports.ListReports(r.Context(), filter)
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "UNKNOWN", err.Error())
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"reports": reports,
		"total":   total,
		"page":    filter.Page,
		"limit":   filter.Limit,
	})
}

// handleReportByID implements GET/DELETE /api/reports/{id}.
func (s *Server) handleReportByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		report, found, err := s.Reports.GetReport(r.Context(), id)
		if err != nil {
			writeErrorCode(w, http.StatusInternalServerError, "UNKNOWN", err.Error())
			return
		}
		if !found {
			writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "no report with that id")
			return
		}
		writeData(w, http.StatusOK, report)
	case http.MethodDelete:
		found, err := s.Reports.DeleteReport(r.Context(), id)
		if err != nil {
			writeErrorCode(w, http.StatusInternalServerError, "UNKNOWN", err.Error())
			return
		}
		if !found {
			writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "no report with that id")
			return
		}
		writeData(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
