package analysis

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/attackguard/attackctl/internal/fusion"
	"github.com/attackguard/attackctl/internal/matcher"
	"github.com/attackguard/attackctl/internal/platform/errs"
	"github.com/attackguard/attackctl/internal/workflow"
)

// MatcherSet controls which of the three signals contribute RawMatches.
// Individually disabling a matcher is the spec's per-deployment tunable;
// all three default on.
type MatcherSet struct {
	Keyword bool
	TFIDF   bool
	Fuzzy   bool
}

// DefaultMatcherSet enables every signal.
func DefaultMatcherSet() MatcherSet { return MatcherSet{Keyword: true, TFIDF: true, Fuzzy: true} }

// NewEvaluateDocument builds the evaluate-document handler. Each call
// rebuilds the enabled matchers against the live TechniqueIndex read from
// the shared CatalogSource (the workflow input carries only the version
// string, so the whole catalog is never serialized into a workflow
// checkpoint); the matcher build cost is paid once per evaluated document.
func NewEvaluateDocument(fetcher CatalogSource, signals MatcherSet) workflow.Handler {
	tracer := otel.Tracer("attackctl-analysis")

	return func(ctx context.Context, ec *workflow.ExecContext, input any) (any, error) {
		_, span := tracer.Start(ctx, "evaluate-document")
		defer span.End()

		mo, ok := input.(mitreOutput)
		if !ok {
			return nil, errs.New(errs.KindInvalidWorkflowDefinition, "evaluate-document requires get-mitre-data's output")
		}

		index, _, _ := fetcher.Index()
		if index == nil {
			return nil, errs.New(errs.KindUpstreamServerError, "no MITRE catalog snapshot is available")
		}

		start := time.Now()

		var matchers []matcher.Matcher
		if signals.Keyword {
			matchers = append(matchers, matcher.NewKeywordMatcher(index))
		}
		if signals.TFIDF {
			matchers = append(matchers, matcher.NewTFIDFMatcher(index))
		}
		if signals.Fuzzy {
			matchers = append(matchers, matcher.NewFuzzyMatcher(index))
		}

		var raw []matcher.RawMatch
		for _, m := range matchers {
			raw = append(raw, m.FindMatches(mo.Bundle.NormalizedText)...)
		}

		fused := fusion.Fuse(raw, mo.Bundle.NormalizedText, index)

		minConfidence := mo.Options.MinConfidence
		if minConfidence <= 0 {
			minConfidence = DefaultOptions().MinConfidence
		}
		filtered := fused[:0]
		for _, m := range fused {
			if m.Score >= minConfidence {
				filtered = append(filtered, m)
			}
		}

		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })

		maxResults := mo.Options.MaxResults
		if maxResults <= 0 {
			maxResults = DefaultOptions().MaxResults
		}
		if len(filtered) > maxResults {
			filtered = filtered[:maxResults]
		}

		summary := fusion.BuildSummary(mo.Bundle.ContentHash, filtered, index, time.Since(start).Milliseconds())

		return evaluateOutput{
			Eval:           fusion.EvalResult{Matches: filtered, Summary: summary},
			Source:         mo.Source,
			CatalogVersion: mo.CatalogVersion,
		}, nil
	}
}
