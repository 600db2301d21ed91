package workflow

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// cancelRegistry tracks the cancel func for every in-flight execution so
// Engine.Cancel can stop a running workflow between task boundaries.
type cancelRegistry struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc

	cancellations metric.Int64Counter
	tracer        trace.Tracer
}

func newCancelRegistry() *cancelRegistry {
	meter := otel.GetMeterProvider().Meter("attackctl-workflow")
	cancellations, _ := meter.Int64Counter("attackctl_workflow_cancellations_total")
	return &cancelRegistry{
		active:        make(map[string]context.CancelFunc),
		cancellations: cancellations,
		tracer:        otel.Tracer("attackctl-workflow-cancel"),
	}
}

func (r *cancelRegistry) register(workflowID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[workflowID] = cancel
}

func (r *cancelRegistry) complete(workflowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, workflowID)
}

// cancel triggers the cancel func for workflowID if it is still tracked,
// returning true iff a running execution was actually signaled.
func (r *cancelRegistry) cancel(ctx context.Context, workflowID string) bool {
	ctx, span := r.tracer.Start(ctx, "workflow.cancel",
		trace.WithAttributes(attribute.String("workflow_id", workflowID)))
	defer span.End()

	r.mu.Lock()
	cancel, ok := r.active[workflowID]
	if ok {
		delete(r.active, workflowID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	r.cancellations.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow_id", workflowID)))
	return true
}

func (r *cancelRegistry) isActive(workflowID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[workflowID]
	return ok
}

// cancelAll signals every tracked execution and returns how many it signaled.
func (r *cancelRegistry) cancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, cancel := range r.active {
		cancel()
		delete(r.active, id)
		n++
	}
	return n
}
