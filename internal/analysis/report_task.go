package analysis

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/attackguard/attackctl/internal/platform/errs"
	"github.com/attackguard/attackctl/internal/report"
	"github.com/attackguard/attackctl/internal/workflow"
)

// ReportStore persists a finished Report. internal/store/sqlstore implements
// this; defining the interface here keeps generate-report's handler
// independent of the concrete storage backend.
type ReportStore interface {
	SaveReport(ctx context.Context, r report.Report) error
}

// NewGenerateReport builds the generate-report handler: it assembles the
// final Report from evaluate-document's output and persists it, returning
// the new report's id.
func NewGenerateReport(store ReportStore) workflow.Handler {
	tracer := otel.Tracer("attackctl-analysis")

	return func(ctx context.Context, ec *workflow.ExecContext, input any) (any, error) {
		_, span := tracer.Start(ctx, "generate-report")
		defer span.End()

		eo, ok := input.(evaluateOutput)
		if !ok {
			return nil, errs.New(errs.KindInvalidWorkflowDefinition, "generate-report requires evaluate-document's output")
		}

		r := report.Build(eo.Eval, eo.Source, eo.CatalogVersion)
		r.WorkflowID = ec.WorkflowID

		if err := store.SaveReport(ctx, r); err != nil {
			return nil, errs.Wrap(errs.KindUpstreamServerError, err)
		}

		return GenerateOutput{ReportID: r.ID}, nil
	}
}
