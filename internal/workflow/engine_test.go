package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/attackguard/attackctl/internal/platform/errs"
)

func echoHandler(name string) Handler {
	return func(ctx context.Context, ec *ExecContext, input any) (any, error) {
		return map[string]any{"task": name, "input": input}, nil
	}
}

func simpleDefinition() Definition {
	return Definition{
		Type: "simple",
		Tasks: map[string]TaskDefinition{
			"a": {Name: "a", Handler: echoHandler("a"), Timeout: time.Second, Retries: 0},
			"b": {Name: "b", Handler: echoHandler("b"), Timeout: time.Second, Retries: 0},
			"c": {Name: "c", Handler: echoHandler("c"), Timeout: time.Second, Retries: 0},
		},
		DependsOn: map[string][]string{
			"b": {"a"},
			"c": {"a", "b"},
		},
	}
}

func TestEngineExecuteRunsTasksInDependencyOrder(t *testing.T) {
	e := NewEngine(nil)
	if err := e.Register(simpleDefinition()); err != nil {
		t.Fatalf("register: %v", err)
	}

	wc, err := e.Execute(context.Background(), "simple", "hello")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if wc.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", wc.Status)
	}
	if wc.CompletedTaskCount != 3 {
		t.Fatalf("expected 3 completed tasks, got %d", wc.CompletedTaskCount)
	}

	// c depends on both a and b: its input must be a record keyed by name.
	cOut := wc.Results["c"].(map[string]any)
	cIn, ok := cOut["input"].(map[string]any)
	if !ok {
		t.Fatalf("expected c's input to be a record, got %T", cOut["input"])
	}
	if _, ok := cIn["a"]; !ok {
		t.Fatalf("expected c's input to carry a's output")
	}
	if _, ok := cIn["b"]; !ok {
		t.Fatalf("expected c's input to carry b's output")
	}
}

func TestRegisterRejectsCycle(t *testing.T) {
	def := Definition{
		Type: "cyclic",
		Tasks: map[string]TaskDefinition{
			"a": {Name: "a", Handler: echoHandler("a")},
			"b": {Name: "b", Handler: echoHandler("b")},
		},
		DependsOn: map[string][]string{
			"a": {"b"},
			"b": {"a"},
		},
	}
	e := NewEngine(nil)
	err := e.Register(def)
	if err == nil {
		t.Fatalf("expected cycle to be rejected")
	}
	kind, _ := errs.Classify(err)
	if kind != errs.KindInvalidWorkflowDefinition {
		t.Fatalf("expected InvalidWorkflowDefinition, got %s", kind)
	}
}

func TestRegisterRejectsUndefinedPrerequisite(t *testing.T) {
	def := Definition{
		Type: "bad",
		Tasks: map[string]TaskDefinition{
			"a": {Name: "a", Handler: echoHandler("a")},
		},
		DependsOn: map[string][]string{
			"a": {"ghost"},
		},
	}
	e := NewEngine(nil)
	if err := e.Register(def); err == nil {
		t.Fatalf("expected undefined prerequisite to be rejected")
	}
}

func TestTopologicalOrderBreaksTiesLexicographically(t *testing.T) {
	def := Definition{
		Type: "fanout",
		Tasks: map[string]TaskDefinition{
			"zebra": {Name: "zebra", Handler: echoHandler("zebra")},
			"alpha": {Name: "alpha", Handler: echoHandler("alpha")},
			"mango": {Name: "mango", Handler: echoHandler("mango")},
		},
	}
	order, err := topologicalOrder(def)
	if err != nil {
		t.Fatalf("topologicalOrder: %v", err)
	}
	want := []string{"alpha", "mango", "zebra"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestEngineRetriesTransientErrorThenSucceeds(t *testing.T) {
	attempts := 0
	flaky := func(ctx context.Context, ec *ExecContext, input any) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return "ok", nil
	}

	def := Definition{
		Type: "flaky",
		Tasks: map[string]TaskDefinition{
			"only": {Name: "only", Handler: flaky, Timeout: time.Second, Retries: 3, RetryDelay: time.Millisecond},
		},
	}
	e := NewEngine(nil)
	if err := e.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}
	wc, err := e.Execute(context.Background(), "flaky", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if wc.Status != StatusCompleted {
		t.Fatalf("expected completed after retries, got %s", wc.Status)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestEngineDoesNotRetryPermanentError(t *testing.T) {
	attempts := 0
	handler := func(ctx context.Context, ec *ExecContext, input any) (any, error) {
		attempts++
		return nil, errs.New(errs.KindInvalidURL, "bad url")
	}

	def := Definition{
		Type: "permanent",
		Tasks: map[string]TaskDefinition{
			"only": {Name: "only", Handler: handler, Timeout: time.Second, Retries: 5, RetryDelay: time.Millisecond},
		},
	}
	e := NewEngine(nil)
	if err := e.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}
	wc, err := e.Execute(context.Background(), "permanent", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if wc.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", wc.Status)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a permanent error, got %d", attempts)
	}
}

func TestEngineFailsWorkflowOnRetryExhaustion(t *testing.T) {
	handler := func(ctx context.Context, ec *ExecContext, input any) (any, error) {
		return nil, errors.New("timeout while dialing")
	}
	def := Definition{
		Type: "always-fails",
		Tasks: map[string]TaskDefinition{
			"only": {Name: "only", Handler: handler, Timeout: time.Second, Retries: 2, RetryDelay: time.Millisecond},
		},
	}
	e := NewEngine(nil)
	if err := e.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}
	wc, err := e.Execute(context.Background(), "always-fails", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if wc.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", wc.Status)
	}
	if wc.Errors["only"].Kind != errs.KindTimedOut {
		t.Fatalf("expected classified TimedOut kind, got %s", wc.Errors["only"].Kind)
	}
}

func TestEngineSubmitReturnsBeforeTaskCompletes(t *testing.T) {
	store := newTestStore(t)
	release := make(chan struct{})
	started := make(chan struct{})

	blocking := func(ctx context.Context, ec *ExecContext, input any) (any, error) {
		close(started)
		<-release
		return "done", nil
	}

	def := Definition{
		Type: "slow",
		Tasks: map[string]TaskDefinition{
			"only": {Name: "only", Handler: blocking, Timeout: time.Second, Retries: 0},
		},
	}
	e := NewEngine(store)
	if err := e.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	id, err := e.Submit(context.Background(), "slow", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a non-empty workflow id")
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("handler never started")
	}

	wc, found, err := e.GetContext(context.Background(), id)
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	if !found {
		t.Fatalf("expected the pending/running checkpoint to already be durable")
	}
	if wc.Status == StatusCompleted {
		t.Fatalf("expected Submit to return before the task finished")
	}

	close(release)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		wc, _, err = e.GetContext(context.Background(), id)
		if err != nil {
			t.Fatalf("get context: %v", err)
		}
		if wc.Status == StatusCompleted {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if wc.Status != StatusCompleted {
		t.Fatalf("expected workflow to complete after release, got %s", wc.Status)
	}
}

func TestDeriveInputRules(t *testing.T) {
	def := &Definition{
		DependsOn: map[string][]string{
			"none": {},
			"one":  {"a"},
			"many": {"a", "b"},
		},
	}
	results := map[string]any{"a": "A", "b": "B"}

	if got := deriveInput(def, "none", "workflow-input", results); got != "workflow-input" {
		t.Fatalf("expected workflow input passthrough, got %v", got)
	}
	if got := deriveInput(def, "one", "workflow-input", results); got != "A" {
		t.Fatalf("expected single prerequisite output, got %v", got)
	}
	many := deriveInput(def, "many", "workflow-input", results).(map[string]any)
	if many["a"] != "A" || many["b"] != "B" {
		t.Fatalf("expected record of prerequisite outputs, got %v", many)
	}
}
