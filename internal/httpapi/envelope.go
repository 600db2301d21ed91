package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/attackguard/attackctl/internal/platform/errs"
)

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Success: true, Data: data})
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Success: false, Error: errorBody{Code: code, Message: message}})
}

// writeErr maps a task/workflow error (classified via errs.Classify) onto
// the §7 envelope and status code.
func writeErr(w http.ResponseWriter, err error) {
	kind, _ := errs.Classify(err)
	status, code := statusForKind(kind)
	writeErrorCode(w, status, code, err.Error())
}

func statusForKind(kind errs.Kind) (int, string) {
	switch kind {
	case errs.KindInvalidURL:
		return http.StatusBadRequest, "INVALID_URL"
	case errs.KindUnsupportedFormat:
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT"
	case errs.KindOversizedDocument:
		return http.StatusBadRequest, "INVALID_DOCUMENT"
	case errs.KindInvalidWorkflowDefinition:
		return http.StatusBadRequest, "INVALID_WORKFLOW"
	case errs.KindSchemaMismatch:
		return http.StatusBadRequest, "SCHEMA_MISMATCH"
	case errs.KindFetchTimeout, errs.KindTimedOut, errs.KindTaskTimedOut:
		return http.StatusRequestTimeout, "TIMEOUT"
	case errs.KindRateLimited:
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errs.KindConnectionReset, errs.KindDNSFailure, errs.KindUpstreamServerError:
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
	case errs.KindWorkflowCanceled:
		return http.StatusInternalServerError, "WORKFLOW_CANCELED"
	case errs.KindCrashed:
		return http.StatusInternalServerError, "CRASHED"
	case errs.KindTaskFailed, errs.KindPermanent:
		return http.StatusInternalServerError, "TASK_FAILED"
	default:
		return http.StatusInternalServerError, "UNKNOWN"
	}
}
