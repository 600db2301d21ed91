package mitre

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestRefresherRunsOnSchedule(t *testing.T) {
	hits := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hits <- struct{}{}:
		default:
		}
		w.Write([]byte(sampleBundle))
	}))
	defer srv.Close()

	fetcher, err := NewFetcher(context.Background(), srv.URL, "", t.TempDir())
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	<-hits // drain the initial fetch NewFetcher already performed

	meter := otel.GetMeterProvider().Meter("test")
	r, err := NewRefresher(fetcher, 20*time.Millisecond, meter)
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	r.Start()
	defer r.Stop(context.Background())

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected at least one more fetch from the schedule")
	}
}
