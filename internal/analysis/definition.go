package analysis

import (
	"time"

	"github.com/attackguard/attackctl/internal/textproc"
	"github.com/attackguard/attackctl/internal/workflow"
)

// DefinitionDeps bundles every collaborator the four fixed tasks need.
type DefinitionDeps struct {
	Prepare PrepareDeps
	Fetcher CatalogSource
	Signals MatcherSet
	Reports ReportStore

	TaskTimeout time.Duration
	Retries     int
	RetryDelay  time.Duration
}

// BuildDefinition wires the document-analysis workflow's four tasks into
// the exact dependency chain named in the original spec:
// prepare-document -> get-mitre-data -> evaluate-document -> generate-report.
// Every task after prepare-document has exactly one prerequisite, so the
// engine's input-derivation rule always hands the next stage its predecessor's output directly; every
// stage's output struct carries forward whatever a later stage still needs
// (the bundle, the source descriptor, the options) rather than widening any
// task's prerequisite count to fan in two upstream outputs.
func BuildDefinition(deps DefinitionDeps) workflow.Definition {
	if deps.Prepare.Extractors == nil {
		deps.Prepare.Extractors = textproc.NewRegistry()
	}
	timeout := deps.TaskTimeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	retries := deps.Retries
	retryDelay := deps.RetryDelay
	if retryDelay == 0 {
		retryDelay = 2 * time.Second
	}

	return workflow.Definition{
		Type: WorkflowType,
		Tasks: map[string]workflow.TaskDefinition{
			"prepare-document": {
				Name:       "prepare-document",
				Handler:    NewPrepareDocument(deps.Prepare),
				Timeout:    timeout,
				Retries:    retries,
				RetryDelay: retryDelay,
			},
			"get-mitre-data": {
				Name:       "get-mitre-data",
				Handler:    NewGetMitreData(deps.Fetcher),
				Timeout:    timeout,
				Retries:    retries,
				RetryDelay: retryDelay,
			},
			"evaluate-document": {
				Name:       "evaluate-document",
				Handler:    NewEvaluateDocument(deps.Fetcher, deps.Signals),
				Timeout:    timeout,
				Retries:    retries,
				RetryDelay: retryDelay,
			},
			"generate-report": {
				Name:       "generate-report",
				Handler:    NewGenerateReport(deps.Reports),
				Timeout:    timeout,
				Retries:    retries,
				RetryDelay: retryDelay,
			},
		},
		DependsOn: map[string][]string{
			"get-mitre-data":    {"prepare-document"},
			"evaluate-document": {"get-mitre-data"},
			"generate-report":   {"evaluate-document"},
		},
	}
}
