package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"churchledger/internal/cli"
	applog "churchledger/internal/log"
	"churchledger/internal/metrics"
	"churchledger/internal/sheets"
	gsheet "churchledger/internal/sheets/google"
	"churchledger/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap("worker")
	logger.Info("Starting churchledger-worker", "backend", cfg.DataBackend)
	if cfg.DataBackend == "memory" {
		logger.Warn("The memory backend is not shared with the API; only records created in this process are synced")
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	catalog := cli.LoadCatalog(logger, cfg)
	res := cli.InitBackend(startCtx, logger, cfg, true)

	var ledger sheets.LedgerWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(startCtx, catalog)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		ledger = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		ledger = sheets.NewMemoryWriter()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set; approved records are kept in memory only")
	}

	m := metrics.New()
	syncWorker := worker.NewSyncWorker(res.Store, ledger, worker.Options{
		BatchSize: cfg.SyncBatchSize,
		Mode:      cfg.AttendanceMode(),
		Catalog:   catalog,
		Logger:    logger,
		Observer:  m,
	})

	var metricsSrv *http.Server
	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", applog.FieldError, err.Error(), "address", cfg.WorkerMetricsAddr)
			}
		}()
	}

	runDone := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		select {
		case <-runDone:
		case <-ctx.Done():
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(ctx)
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", applog.FieldError, err.Error())
		}
	})

	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", applog.FieldError, err.Error())
	}

	go func() {
		defer close(runDone)
		if err := syncWorker.Run(ctx, res.Events, cfg.SyncInterval); err != nil {
			logger.Error("Worker stopped", applog.FieldError, err.Error())
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
