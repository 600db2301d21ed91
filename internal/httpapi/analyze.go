package httpapi

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/attackguard/attackctl/internal/analysis"
)

type analysisOptionsJSON struct {
	MinConfidence  int      `json:"minConfidence"`
	MaxResults     int      `json:"maxResults"`
	IncludeTactics []string `json:"includeTactics"`
}

type analyzeJSONRequest struct {
	URL     string               `json:"url"`
	Options *analysisOptionsJSON `json:"options"`
}

func toOptions(o *analysisOptionsJSON) analysis.Options {
	opts := analysis.DefaultOptions()
	if o == nil {
		return opts
	}
	if o.MinConfidence > 0 {
		opts.MinConfidence = o.MinConfidence
	}
	if o.MaxResults > 0 {
		opts.MaxResults = o.MaxResults
	}
	opts.IncludeTactics = o.IncludeTactics
	return opts
}

// handleAnalyze implements POST /api/analyze, split by Content-Type between
// a JSON url submission and a multipart file upload.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	var input analysis.SubmissionInput

	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		in, ok := s.parseUpload(w, r)
		if !ok {
			return
		}
		input = in
	default:
		in, ok := s.parseJSONSubmission(w, r)
		if !ok {
			return
		}
		input = in
	}

	jobID, err := s.Engine.Submit(r.Context(), analysis.WorkflowType, input)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeData(w, http.StatusAccepted, map[string]any{
		"jobId":     jobID,
		"status":    "submitted",
		"statusUrl": "/api/analyze/" + jobID,
	})
}

func (s *Server) parseJSONSubmission(w http.ResponseWriter, r *http.Request) (analysis.SubmissionInput, bool) {
	var req analyzeJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "request body is not valid JSON")
		return analysis.SubmissionInput{}, false
	}
	if err := validateSubmissionURL(req.URL); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_URL", err.Error())
		return analysis.SubmissionInput{}, false
	}
	return analysis.SubmissionInput{URL: req.URL, Options: toOptions(req.Options)}, true
}

func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (analysis.SubmissionInput, bool) {
	if err := r.ParseMultipartForm(s.MaxUploadSize); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_DOCUMENT", "could not parse multipart body, upload may be too large")
		return analysis.SubmissionInput{}, false
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_DOCUMENT", "missing document field")
		return analysis.SubmissionInput{}, false
	}
	defer file.Close()

	if header.Size > s.MaxUploadSize {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_DOCUMENT", "uploaded document is too large")
		return analysis.SubmissionInput{}, false
	}
	mimeType := header.Header.Get("Content-Type")
	if !allowedUploadMimes[mimeType] {
		writeErrorCode(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "unsupported document mime type: "+mimeType)
		return analysis.SubmissionInput{}, false
	}

	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "UNKNOWN", "could not prepare upload directory")
		return analysis.SubmissionInput{}, false
	}
	storedName := uuid.NewString() + filepath.Ext(header.Filename)
	dest, err := os.Create(filepath.Join(s.UploadDir, storedName))
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "UNKNOWN", "could not save uploaded document")
		return analysis.SubmissionInput{}, false
	}
	defer dest.Close()

	if _, err := io.Copy(dest, io.LimitReader(file, s.MaxUploadSize+1)); err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "UNKNOWN", "could not save uploaded document")
		return analysis.SubmissionInput{}, false
	}

	var opts *analysisOptionsJSON
	if raw := r.FormValue("options"); raw != "" {
		opts = &analysisOptionsJSON{}
		if err := json.Unmarshal([]byte(raw), opts); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "options field is not valid JSON")
			return analysis.SubmissionInput{}, false
		}
	}

	return analysis.SubmissionInput{
		DocumentPath: storedName,
		DocumentName: header.Filename,
		Options:      toOptions(opts),
	}, true
}

// handleAnalyzeStatus implements GET /api/analyze/{jobId} (status) and
// DELETE /api/analyze/{jobId} (cancel, per the §8 "cancel mid-flight"
// scenario).
func (s *Server) handleAnalyzeStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/api/analyze/")
	if jobID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if _, err := uuid.Parse(jobID); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_JOB_ID", "job id is not a valid UUID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getAnalyzeStatus(w, r, jobID)
	case http.MethodDelete:
		s.cancelAnalyze(w, r, jobID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) getAnalyzeStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	wc, found, err := s.Engine.GetContext(r.Context(), jobID)
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "UNKNOWN", err.Error())
		return
	}
	if !found {
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "no job with that id")
		return
	}

	isCurrentTaskRunning := 0.0
	if wc.Status == "running" && wc.CurrentTask != "" {
		isCurrentTaskRunning = 0.5
	}
	progress := 0
	if wc.TotalTasks > 0 {
		progress = int(math.Floor((float64(wc.CompletedTaskCount) + isCurrentTaskRunning) / float64(wc.TotalTasks) * 100))
	}

	resp := map[string]any{
		"jobId":         wc.ID,
		"status":        wc.Status,
		"progress":      progress,
		"currentStep":   wc.CurrentTask,
		"startTime":     wc.StartTime,
		"elapsedTimeMs": time.Since(wc.StartTime).Milliseconds(),
	}

	if reportID := reportIDFromResults(wc.Results); reportID != "" {
		resp["reportId"] = reportID
		resp["reportUrl"] = "/api/reports/" + reportID
	}
	for _, taskErr := range wc.Errors {
		resp["error"] = map[string]any{"code": string(taskErr.Kind), "message": taskErr.Message}
	}

	writeData(w, http.StatusOK, resp)
}

func (s *Server) cancelAnalyze(w http.ResponseWriter, r *http.Request, jobID string) {
	_, err := s.Engine.Cancel(r.Context(), jobID)
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "UNKNOWN", err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"jobId": jobID, "status": "canceled"})
}

// reportIDFromResults reads generate-report's output out of wc.Results.
// A freshly run (in-process) context holds the concrete GenerateOutput; one
// that round-tripped through the BoltDB store (the normal case, since
// Engine.GetContext always reads back through json.Unmarshal into `any`)
// holds a generic map keyed by the JSON field name ("reportId") instead.
func reportIDFromResults(results map[string]any) string {
	out, ok := results["generate-report"]
	if !ok {
		return ""
	}
	switch v := out.(type) {
	case analysis.GenerateOutput:
		return v.ReportID
	case map[string]any:
		if id, ok := v["reportId"].(string); ok {
			return id
		}
	}
	return ""
}

func parsePositiveInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
