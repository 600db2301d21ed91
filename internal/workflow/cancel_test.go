package workflow

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestEngineCancelStopsFutureTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.db")
	store, err := NewBoltStore(path, otel.GetMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	defer store.Close()

	e := NewEngine(store)

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context, ec *ExecContext, input any) (any, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "done", nil
	}
	never := func(ctx context.Context, ec *ExecContext, input any) (any, error) {
		t.Errorf("second task must not run after cancellation")
		return nil, nil
	}

	def := Definition{
		Type: "cancelable",
		Tasks: map[string]TaskDefinition{
			"first":  {Name: "first", Handler: slow, Timeout: 5 * time.Second, Retries: 0},
			"second": {Name: "second", Handler: never, Timeout: time.Second, Retries: 0},
		},
		DependsOn: map[string][]string{"second": {"first"}},
	}
	if err := e.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	var wc WorkflowContext
	var execErr error
	done := make(chan struct{})
	go func() {
		wc, execErr = e.Execute(context.Background(), "cancelable", nil)
		close(done)
	}()

	<-started
	// Poll until the running context is persisted so Cancel has a row to flip.
	var id string
	for {
		running := StatusRunning
		list, _ := e.List(context.Background(), &running)
		if len(list) > 0 {
			id = list[0].ID
			break
		}
		time.Sleep(time.Millisecond)
	}

	ok, err := e.Cancel(context.Background(), id)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !ok {
		t.Fatalf("expected cancel to report a transition")
	}
	close(release)
	<-done

	if execErr != nil {
		t.Fatalf("execute: %v", execErr)
	}
	if wc.Status != StatusCanceled {
		t.Fatalf("expected canceled, got %s", wc.Status)
	}
}
