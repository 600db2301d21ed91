// Command attackctl runs the document-analysis HTTP service: it ingests a
// document (by URL or upload), matches it against the MITRE ATT&CK catalog,
// and serves the resulting reports.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/attackguard/attackctl/internal/analysis"
	"github.com/attackguard/attackctl/internal/httpapi"
	"github.com/attackguard/attackctl/internal/mitre"
	"github.com/attackguard/attackctl/internal/platform/config"
	"github.com/attackguard/attackctl/internal/platform/logging"
	"github.com/attackguard/attackctl/internal/platform/otelinit"
	"github.com/attackguard/attackctl/internal/store/sqlstore"
	"github.com/attackguard/attackctl/internal/workflow"
)

func main() {
	os.Exit(run())
}

func run() int {
	const service = "attackctl"
	logging.Init(service)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTrace := otelinit.InitTracer(ctx, service)
	shutdownMetrics, _ := otelinit.InitMetrics(ctx, service)
	defer func() {
		ctxSd, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		otelinit.Flush(ctxSd, shutdownTrace)
		_ = shutdownMetrics(ctxSd)
	}()

	cfg := config.Load()

	fetcher, err := mitre.NewFetcher(ctx, cfg.CatalogPrimaryURL, cfg.CatalogBackupURL, cfg.CatalogCacheDir)
	if err != nil {
		slog.Error("failed to load mitre catalog", "error", err)
		return 1
	}

	refresher, err := mitre.NewRefresher(fetcher, cfg.CatalogRefreshEvery, otel.GetMeterProvider().Meter("attackctl-catalog"))
	if err != nil {
		slog.Error("failed to build catalog refresher", "error", err)
		return 1
	}
	refresher.Start()
	defer func() {
		ctxSd, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = refresher.Stop(ctxSd)
	}()

	boltStore, err := workflow.NewBoltStore(cfg.BoltPath, otel.GetMeterProvider().Meter("attackctl-workflow"))
	if err != nil {
		slog.Error("failed to open workflow store", "error", err)
		return 1
	}
	defer boltStore.Close()

	if n, err := boltStore.RecoverCrashed(ctx, cfg.CrashGrace); err != nil {
		slog.Error("crash recovery sweep failed", "error", err)
	} else if n > 0 {
		slog.Warn("recovered crashed workflows", "count", n)
	}

	sqlStore, err := sqlstore.Open(cfg.SQLDSN)
	if err != nil {
		slog.Error("failed to open report store", "error", err)
		return 1
	}
	defer sqlStore.Close()

	engine := workflow.NewEngine(boltStore)
	def := analysis.BuildDefinition(analysis.DefinitionDeps{
		Prepare: analysis.PrepareDeps{
			UploadDir:     cfg.UploadDir,
			MaxUploadSize: cfg.MaxUploadSize,
		},
		Fetcher: fetcher,
		Signals: analysis.DefaultMatcherSet(),
		Reports: sqlStore,

		TaskTimeout: cfg.DefaultTaskTimeout,
		Retries:     cfg.DefaultRetries,
		RetryDelay:  cfg.DefaultRetryDelay,
	})
	if err := engine.Register(def); err != nil {
		slog.Error("failed to register document-analysis workflow", "error", err)
		return 1
	}

	api := &httpapi.Server{
		Engine:        engine,
		Reports:       sqlStore,
		UploadDir:     cfg.UploadDir,
		MaxUploadSize: cfg.MaxUploadSize,
	}
	mux := api.Routes()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	slog.Info("attackctl started", "addr", cfg.HTTPAddr)

	select {
	case <-ctx.Done():
		slog.Info("shutdown initiated")
	case err := <-serveErr:
		slog.Error("server error", "error", err)
		return 1
	}

	ctxSd, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxSd); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		return 1
	}

	slog.Info("shutdown complete")
	return 0
}
