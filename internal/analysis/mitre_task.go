package analysis

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/attackguard/attackctl/internal/mitre"
	"github.com/attackguard/attackctl/internal/platform/errs"
	"github.com/attackguard/attackctl/internal/workflow"
)

// CatalogSource is the subset of *mitre.Fetcher the document-analysis tasks
// need. Declaring it as an interface (rather than taking *mitre.Fetcher
// directly) lets tests substitute a fixed in-memory index without driving
// the real Fetcher's network-backed construction path.
type CatalogSource interface {
	Index() (*mitre.TechniqueIndex, string, bool)
}

// NewGetMitreData builds the get-mitre-data handler. The shared catalog
// source is already refreshed on its own schedule (see the catalog refresh
// scheduler); this task only reads its current snapshot and reports version
// plus staleness, carrying the prior stage's bundle forward unchanged.
func NewGetMitreData(fetcher CatalogSource) workflow.Handler {
	return func(ctx context.Context, ec *workflow.ExecContext, input any) (any, error) {
		prep, ok := input.(prepareOutput)
		if !ok {
			return nil, errs.New(errs.KindInvalidWorkflowDefinition, "get-mitre-data requires prepare-document's output")
		}

		index, version, stale := fetcher.Index()
		if index == nil {
			return nil, errs.New(errs.KindUpstreamServerError, "no MITRE catalog snapshot is available")
		}

		tracer := otel.Tracer("attackctl-analysis")
		_, span := tracer.Start(ctx, "get-mitre-data")
		defer span.End()

		return mitreOutput{
			Bundle:         prep.Bundle,
			Source:         prep.Source,
			Options:        prep.Options,
			CatalogVersion: version,
			CatalogStale:   stale,
		}, nil
	}
}
