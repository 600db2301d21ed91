package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/attackguard/attackctl/internal/platform/errs"
)

// Engine registers workflow definitions and executes them to completion,
// checkpointing a WorkflowContext to durable storage after every observable
// state change.
type Engine struct {
	mu          sync.RWMutex
	definitions map[string]*Definition

	store    *BoltStore
	cancels  *cancelRegistry
	tracer   trace.Tracer
	taskDur  metric.Float64Histogram
	taskRuns metric.Int64Counter
}

// NewEngine builds an Engine backed by store. Pass a nil store only in tests
// that do not need persistence to survive the process.
func NewEngine(store *BoltStore) *Engine {
	meter := otel.GetMeterProvider().Meter("attackctl-workflow")
	taskDur, _ := meter.Float64Histogram("attackctl_workflow_task_duration_ms")
	taskRuns, _ := meter.Int64Counter("attackctl_workflow_task_runs_total")

	return &Engine{
		definitions: make(map[string]*Definition),
		store:       store,
		cancels:     newCancelRegistry(),
		tracer:      otel.Tracer("attackctl-workflow-engine"),
		taskDur:     taskDur,
		taskRuns:    taskRuns,
	}
}

// Register validates and stores a workflow definition under its Type.
func (e *Engine) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.definitions[def.Type] = &def
	return nil
}

func validateDefinition(def Definition) error {
	if def.Type == "" {
		return errs.New(errs.KindInvalidWorkflowDefinition, "workflow type must not be empty")
	}
	for name, prereqs := range def.DependsOn {
		if _, ok := def.Tasks[name]; !ok {
			return errs.New(errs.KindInvalidWorkflowDefinition, fmt.Sprintf("dependency entry for undefined task %q", name))
		}
		for _, p := range prereqs {
			if _, ok := def.Tasks[p]; !ok {
				return errs.New(errs.KindInvalidWorkflowDefinition, fmt.Sprintf("task %q depends on undefined task %q", name, p))
			}
		}
	}
	if _, err := topologicalOrder(def); err != nil {
		return err
	}
	return nil
}

// topologicalOrder returns task names in dependency order, breaking ties
// among simultaneously-ready tasks by lexicographic name so that execution
// order (and hence test behavior) is deterministic.
func topologicalOrder(def Definition) ([]string, error) {
	inDegree := make(map[string]int, len(def.Tasks))
	children := make(map[string][]string, len(def.Tasks))
	for name := range def.Tasks {
		inDegree[name] = len(def.DependsOn[name])
	}
	for name, prereqs := range def.DependsOn {
		for _, p := range prereqs {
			children[p] = append(children[p], name)
		}
	}

	var ready []string
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		var newlyReady []string
		for _, child := range children[next] {
			inDegree[child]--
			if inDegree[child] == 0 {
				newlyReady = append(newlyReady, child)
			}
		}
		sort.Strings(newlyReady)
		ready = append(ready, newlyReady...)
	}

	if len(order) != len(def.Tasks) {
		return nil, errs.New(errs.KindInvalidWorkflowDefinition, "workflow has a cyclic dependency")
	}
	return order, nil
}

// Execute runs workflowType with the given input to a terminal state and
// returns the final context. It does not return until the workflow has
// completed, failed, or been canceled; callers serving HTTP requests should
// use Submit instead and poll GetContext.
func (e *Engine) Execute(ctx context.Context, workflowType string, input any) (WorkflowContext, error) {
	def, order, wc, err := e.newExecution(ctx, workflowType, input)
	if err != nil {
		return wc, err
	}
	return e.run(def, order, wc, workflowType, input)
}

// Submit starts workflowType in the background and returns its id as soon
// as the initial pending checkpoint is durable, without waiting for any
// task to run. Callers poll GetContext (or use Cancel) to observe progress.
func (e *Engine) Submit(ctx context.Context, workflowType string, input any) (string, error) {
	def, order, wc, err := e.newExecution(ctx, workflowType, input)
	if err != nil {
		return "", err
	}
	go e.run(def, order, wc, workflowType, input) //nolint:errcheck // terminal state is persisted, not returned
	return wc.ID, nil
}

// newExecution looks up def, computes a deterministic task order, and
// persists a fresh pending WorkflowContext.
func (e *Engine) newExecution(ctx context.Context, workflowType string, input any) (*Definition, []string, WorkflowContext, error) {
	e.mu.RLock()
	def, ok := e.definitions[workflowType]
	e.mu.RUnlock()
	if !ok {
		return nil, nil, WorkflowContext{}, errs.New(errs.KindInvalidWorkflowDefinition, "unknown workflow type: "+workflowType)
	}

	order, err := topologicalOrder(*def)
	if err != nil {
		return nil, nil, WorkflowContext{}, err
	}

	now := time.Now()
	wc := WorkflowContext{
		ID:           uuid.NewString(),
		WorkflowType: workflowType,
		Status:       StatusPending,
		StartTime:    now,
		UpdatedAt:    now,
		Results:      map[string]any{},
		Errors:       map[string]TaskError{},
		Metadata:     map[string]any{"input": input},
		TotalTasks:   len(order),
	}
	if err := e.persist(ctx, &wc); err != nil {
		return nil, nil, wc, err
	}
	return def, order, wc, nil
}

// run drives wc through order to a terminal state, checkpointing after
// every observable state change.
func (e *Engine) run(def *Definition, order []string, wc WorkflowContext, workflowType string, input any) (WorkflowContext, error) {
	execCtx, cancel := context.WithCancel(context.Background())
	e.cancels.register(wc.ID, cancel)
	defer e.cancels.complete(wc.ID)

	ctx, span := e.tracer.Start(execCtx, "workflow.execute",
		trace.WithAttributes(attribute.String("workflow_type", workflowType), attribute.String("workflow_id", wc.ID)))
	defer span.End()

	// canceledInStore reports a Cancel that reached the store without
	// signaling execCtx, which happens when it runs before register above.
	canceledInStore := func() bool {
		if e.store == nil {
			return false
		}
		cur, found, err := e.store.GetContext(ctx, wc.ID)
		return err == nil && found && cur.Status == StatusCanceled
	}
	if canceledInStore() {
		wc.Status = StatusCanceled
		return wc, e.persist(ctx, &wc)
	}

	wc.Status = StatusRunning
	if err := e.persist(ctx, &wc); err != nil {
		return wc, err
	}

	for _, taskName := range order {
		if ctx.Err() != nil || canceledInStore() {
			wc.Status = StatusCanceled
			e.persist(ctx, &wc) //nolint:errcheck // best-effort final checkpoint
			return wc, nil
		}

		task := def.Tasks[taskName]
		wc.CurrentTask = taskName
		if err := e.persist(ctx, &wc); err != nil {
			return wc, err
		}

		taskInput := deriveInput(def, taskName, input, wc.Results)
		if task.InputSchema != nil {
			if verr := task.InputSchema.Validate(taskInput); verr != nil {
				e.failTask(ctx, &wc, taskName, errs.Wrap(errs.KindSchemaMismatch, verr))
				return wc, e.persist(ctx, &wc)
			}
		}

		output, err := e.runTaskWithRetry(ctx, wc.ID, workflowType, wc.Metadata, wc.Results, taskName, task, taskInput)
		if err != nil {
			if ctx.Err() != nil {
				wc.Status = StatusCanceled
				e.persist(ctx, &wc) //nolint:errcheck
				return wc, nil
			}
			e.failTask(ctx, &wc, taskName, err)
			return wc, e.persist(ctx, &wc)
		}

		if task.OutputSchema != nil {
			if verr := task.OutputSchema.Validate(output); verr != nil {
				e.failTask(ctx, &wc, taskName, errs.Wrap(errs.KindSchemaMismatch, verr))
				return wc, e.persist(ctx, &wc)
			}
		}

		wc.Results[taskName] = output
		wc.CompletedTaskCount++
		if err := e.persist(ctx, &wc); err != nil {
			return wc, err
		}
	}

	wc.Status = StatusCompleted
	wc.CurrentTask = ""
	if err := e.persist(ctx, &wc); err != nil {
		return wc, err
	}
	return wc, nil
}

// runTaskWithRetry runs a task's handler up to retries+1 times, waiting
// exactly RetryDelay between attempts. Unlike resilience.Retry (a plain
// fixed-count loop used elsewhere for non-classifying retries), this loop
// must stop immediately on a non-retriable classification — §4.1 requires
// validation and permanent errors to never be retried — so it is written
// directly against the engine's error taxonomy rather than the generic
// helper.
func (e *Engine) runTaskWithRetry(ctx context.Context, workflowID, workflowType string, metadata, results map[string]any, taskName string, task TaskDefinition, input any) (any, error) {
	attempts := task.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		taskCtx, cancel := context.WithTimeout(ctx, task.Timeout)

		start := time.Now()
		out, err := task.Handler(taskCtx, &ExecContext{
			WorkflowID:   workflowID,
			WorkflowType: workflowType,
			Results:      results,
			Metadata:     metadata,
		}, input)
		e.taskDur.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("task", taskName), attribute.String("workflow_type", workflowType)))
		e.taskRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("task", taskName)))

		timedOut := taskCtx.Err() != nil
		cancel()

		if err == nil && !timedOut {
			return out, nil
		}

		if err == nil && timedOut {
			err = errs.New(errs.KindTaskTimedOut, "task exceeded its timeout")
		}

		kind, retriable := errs.Classify(err)
		lastErr = errs.Wrap(kind, err)
		if !retriable || attempt == attempts {
			return nil, lastErr
		}

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.KindWorkflowCanceled, ctx.Err())
		case <-time.After(task.RetryDelay):
		}
	}
	return nil, lastErr
}

func (e *Engine) failTask(ctx context.Context, wc *WorkflowContext, taskName string, err error) {
	kind, retriable := errs.Classify(err)
	wc.Errors[taskName] = TaskError{Kind: kind, Message: err.Error(), Retriable: retriable}
	wc.Status = StatusFailed
	wc.CurrentTask = taskName
}

func (e *Engine) persist(ctx context.Context, wc *WorkflowContext) error {
	wc.UpdatedAt = time.Now()
	if e.store == nil {
		return nil
	}
	return e.store.PutContext(ctx, *wc)
}

// GetContext is a strongly consistent read of the last persisted state.
func (e *Engine) GetContext(ctx context.Context, workflowID string) (WorkflowContext, bool, error) {
	if e.store == nil {
		return WorkflowContext{}, false, nil
	}
	return e.store.GetContext(ctx, workflowID)
}

// Cancel marks a pending/running workflow as canceled. Returns true iff a
// transition actually happened.
func (e *Engine) Cancel(ctx context.Context, workflowID string) (bool, error) {
	wc, found, err := e.GetContext(ctx, workflowID)
	if err != nil || !found {
		return false, err
	}
	if wc.Status != StatusPending && wc.Status != StatusRunning {
		return false, nil
	}

	// Signal the in-flight goroutine if one is registered. If Execute hasn't
	// reached the register call yet (a race at the very start of a run), the
	// persisted status change below is still the transition the caller
	// observes: Execute checks ctx.Err() and the persisted status before
	// starting each task.
	e.cancels.cancel(ctx, workflowID)

	wc.Status = StatusCanceled
	if err := e.persist(ctx, &wc); err != nil {
		return false, err
	}
	return true, nil
}

// List returns workflow contexts, most recently started first, optionally
// filtered by status.
func (e *Engine) List(ctx context.Context, statusFilter *Status) ([]WorkflowContext, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.ListContexts(ctx, statusFilter)
}

// deriveInput implements the Input Derivation rule from §4.1: 0 prereqs ->
// workflow input; 1 prereq -> that task's output; ≥2 prereqs -> a record
// keyed by prerequisite task name.
func deriveInput(def *Definition, taskName string, workflowInput any, results map[string]any) any {
	prereqs := def.DependsOn[taskName]
	switch len(prereqs) {
	case 0:
		return workflowInput
	case 1:
		return results[prereqs[0]]
	default:
		record := make(map[string]any, len(prereqs))
		for _, p := range prereqs {
			record[p] = results[p]
		}
		return record
	}
}
