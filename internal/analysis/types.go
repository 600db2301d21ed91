// Package analysis wires the four fixed document-analysis tasks
// (prepare-document, get-mitre-data, evaluate-document, generate-report)
// into a workflow.Definition and provides their handlers.
package analysis

import (
	"github.com/attackguard/attackctl/internal/fusion"
	"github.com/attackguard/attackctl/internal/report"
	"github.com/attackguard/attackctl/internal/textproc"
)

// WorkflowType is the registered name of the document-analysis workflow.
const WorkflowType = "document-analysis"

// Options mirrors the spec's AnalysisOptions, tunable per submission.
type Options struct {
	MinConfidence  int      `json:"minConfidence"`
	MaxResults     int      `json:"maxResults"`
	IncludeTactics []string `json:"includeTactics,omitempty"`
}

// DefaultOptions fills the zero-value defaults named in §6.
func DefaultOptions() Options {
	return Options{MinConfidence: 65, MaxResults: 20}
}

// SubmissionInput is prepare-document's input: a workflow-global payload
// carrying either a remote URL or an already-saved upload path.
type SubmissionInput struct {
	URL          string  `json:"url,omitempty"`
	DocumentPath string  `json:"documentPath,omitempty"`
	DocumentName string  `json:"documentName,omitempty"`
	Options      Options `json:"options"`
}

// prepareOutput is prepare-document's output and get-mitre-data's input —
// the chain is strictly linear (§4.2), so every later stage's output
// carries forward whatever an even-later stage still needs.
type prepareOutput struct {
	Bundle  textproc.DocumentBundle `json:"bundle"`
	Source  report.Source           `json:"source"`
	Options Options                 `json:"options"`
}

// mitreOutput is get-mitre-data's output and evaluate-document's input. It
// carries the catalog version (not the full TechniqueIndex — re-fetching the
// live index by reference from the shared Fetcher at evaluate time avoids
// serializing the entire catalog into every workflow's checkpoint) alongside
// everything threaded forward from prepareOutput.
type mitreOutput struct {
	Bundle         textproc.DocumentBundle `json:"bundle"`
	Source         report.Source           `json:"source"`
	Options        Options                 `json:"options"`
	CatalogVersion string                  `json:"catalogVersion"`
	CatalogStale   bool                    `json:"catalogStale"`
}

// evaluateOutput is evaluate-document's output and generate-report's input.
type evaluateOutput struct {
	Eval           fusion.EvalResult `json:"eval"`
	Source         report.Source     `json:"source"`
	CatalogVersion string            `json:"catalogVersion"`
}

// GenerateOutput is generate-report's output: the spec's `{reportId}`.
type GenerateOutput struct {
	ReportID string `json:"reportId"`
}
