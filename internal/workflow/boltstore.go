package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/attackguard/attackctl/internal/platform/errs"
)

var (
	bucketContexts    = []byte("contexts")
	bucketDefinitions = []byte("definitions")
)

// BoltStore is the durable backing store for WorkflowContext rows, one
// bucket entry per workflow id, overwritten on every transition. Unlike the
// reference workflow store, it keeps no version history: §4.1 persistence
// requires only last-state durability, not an audit trail.
type BoltStore struct {
	db *bbolt.DB

	readLatency  metric.Float64Histogram
	writeLatency metric.Float64Histogram
}

// NewBoltStore opens (or creates) the BoltDB file at dbPath and ensures its
// buckets exist.
func NewBoltStore(dbPath string, meter metric.Meter) (*BoltStore, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketContexts, bucketDefinitions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	readLatency, _ := meter.Float64Histogram("attackctl_workflow_store_read_ms")
	writeLatency, _ := meter.Float64Histogram("attackctl_workflow_store_write_ms")

	return &BoltStore{db: db, readLatency: readLatency, writeLatency: writeLatency}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutContext persists (overwrites) a WorkflowContext row.
func (s *BoltStore) PutContext(ctx context.Context, wc WorkflowContext) error {
	start := time.Now()
	defer func() {
		s.writeLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("op", "put_context")))
	}()

	data, err := json.Marshal(wc)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketContexts).Put([]byte(wc.ID), data)
	})
}

// GetContext reads a single WorkflowContext by id.
func (s *BoltStore) GetContext(ctx context.Context, id string) (WorkflowContext, bool, error) {
	start := time.Now()
	defer func() {
		s.readLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("op", "get_context")))
	}()

	var wc WorkflowContext
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketContexts).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &wc)
	})
	if err != nil {
		return WorkflowContext{}, false, fmt.Errorf("read context: %w", err)
	}
	return wc, found, nil
}

// ListContexts returns every WorkflowContext, optionally filtered by status,
// most recently started first.
func (s *BoltStore) ListContexts(ctx context.Context, statusFilter *Status) ([]WorkflowContext, error) {
	var out []WorkflowContext
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketContexts).ForEach(func(_, v []byte) error {
			var wc WorkflowContext
			if err := json.Unmarshal(v, &wc); err != nil {
				return nil // skip corrupt entries
			}
			if statusFilter != nil && wc.Status != *statusFilter {
				return nil
			}
			out = append(out, wc)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].StartTime.Before(out[j].StartTime); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out, nil
}

// RecoverCrashed sweeps every persisted `running` context whose UpdatedAt is
// older than grace and transitions it to failed/Crashed. Called once at
// startup, grounded on the reference store's warmCache startup scan.
func (s *BoltStore) RecoverCrashed(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := time.Now().Add(-grace)
	recovered := 0

	all, err := s.ListContexts(ctx, nil)
	if err != nil {
		return 0, err
	}
	for _, wc := range all {
		if wc.Status != StatusRunning || wc.UpdatedAt.After(cutoff) {
			continue
		}
		wc.Status = StatusFailed
		if wc.Errors == nil {
			wc.Errors = map[string]TaskError{}
		}
		wc.Errors[wc.CurrentTask] = TaskError{
			Kind:      errs.KindCrashed,
			Message:   "workflow was running when the process restarted",
			Retriable: false,
		}
		wc.UpdatedAt = time.Now()
		if err := s.PutContext(ctx, wc); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}
