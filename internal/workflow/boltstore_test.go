package workflow

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflows.db")
	store, err := NewBoltStore(path, otel.GetMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltStorePutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	wc := WorkflowContext{ID: "wf-1", WorkflowType: "demo", Status: StatusRunning, StartTime: time.Now(), UpdatedAt: time.Now()}
	if err := store.PutContext(ctx, wc); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, found, err := store.GetContext(ctx, "wf-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected context to be found")
	}
	if got.ID != wc.ID || got.Status != wc.Status {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestBoltStoreGetMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, found, err := store.GetContext(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected not found")
	}
}

func TestBoltStoreListFiltersByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	store.PutContext(ctx, WorkflowContext{ID: "wf-a", Status: StatusCompleted, StartTime: now})
	store.PutContext(ctx, WorkflowContext{ID: "wf-b", Status: StatusRunning, StartTime: now.Add(time.Second)})
	store.PutContext(ctx, WorkflowContext{ID: "wf-c", Status: StatusRunning, StartTime: now.Add(2 * time.Second)})

	running := StatusRunning
	list, err := store.ListContexts(ctx, &running)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 running contexts, got %d", len(list))
	}
	// most recently started first
	if list[0].ID != "wf-c" {
		t.Fatalf("expected wf-c first, got %s", list[0].ID)
	}
}

func TestBoltStoreRecoverCrashedMarksStaleRunningAsFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stale := WorkflowContext{ID: "stale", Status: StatusRunning, CurrentTask: "prepare-document", StartTime: time.Now().Add(-time.Hour), UpdatedAt: time.Now().Add(-time.Hour)}
	fresh := WorkflowContext{ID: "fresh", Status: StatusRunning, StartTime: time.Now(), UpdatedAt: time.Now()}
	store.PutContext(ctx, stale)
	store.PutContext(ctx, fresh)

	n, err := store.RecoverCrashed(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recovered context, got %d", n)
	}

	got, _, _ := store.GetContext(ctx, "stale")
	if got.Status != StatusFailed {
		t.Fatalf("expected stale context failed, got %s", got.Status)
	}
	if got.Errors["prepare-document"].Kind != "Crashed" {
		t.Fatalf("expected Crashed kind, got %v", got.Errors["prepare-document"])
	}

	gotFresh, _, _ := store.GetContext(ctx, "fresh")
	if gotFresh.Status != StatusRunning {
		t.Fatalf("expected fresh context untouched, got %s", gotFresh.Status)
	}
}
