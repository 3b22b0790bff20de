package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"churchledger/internal/approval"
	"churchledger/internal/archive"
	"churchledger/internal/auth"
	"churchledger/internal/cache"
	"churchledger/internal/cli"
	apphttp "churchledger/internal/http"
	"churchledger/internal/lock"
	applog "churchledger/internal/log"
	"churchledger/internal/metrics"
	"churchledger/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap("api")
	logger.Info("Starting churchledger", "port", cfg.Port, "backend", cfg.DataBackend)

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	catalog := cli.LoadCatalog(logger, cfg)
	policy, err := cfg.Policy()
	if err != nil {
		logger.Error("Invalid approval policy", applog.FieldError, err.Error())
		os.Exit(1)
	}

	res := cli.InitBackend(startCtx, logger, cfg, false)
	m := metrics.New()

	opts := []approval.Option{
		approval.WithLogger(logger),
		approval.WithObserver(m),
	}
	if res.Events != nil {
		opts = append(opts, approval.WithPublisher(res.Events))
	}

	var closeRedis func() error
	if cfg.RedisAddress != "" {
		rdb, err := lock.Connect(startCtx, cfg.RedisAddress)
		if err != nil {
			logger.Error("Failed to connect to redis", applog.FieldError, err.Error(), "address", cfg.RedisAddress)
			os.Exit(1)
		}
		closeRedis = rdb.Close
		opts = append(opts, approval.WithLocker(lock.NewRedis(rdb, lock.RedisOptions{TTL: cfg.LockTTL}, logger)))
		logger.Info("Using redis transition lock", "address", cfg.RedisAddress)
	} else {
		opts = append(opts, approval.WithLocker(lock.NewLocal()))
	}

	workflow, err := approval.New(res.Store, policy, catalog, opts...)
	if err != nil {
		logger.Error("Failed to create workflow", applog.FieldError, err.Error())
		os.Exit(1)
	}

	names := cache.NewLRUCache[string](1024, 10*time.Minute)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(names)
	cacheManager.StartCleanup(5 * time.Minute)

	directory := services.NewDirectory(res.Store,
		services.WithNameCache(names),
		services.WithDirectoryLogger(logger))

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, directory, auth.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to create token verifier", applog.FieldError, err.Error())
		os.Exit(1)
	}

	reports, err := archive.Open(startCtx, cfg.ReportArchive, logger)
	switch {
	case errors.Is(err, archive.ErrNotConfigured):
		reports = nil
	case err != nil:
		logger.Error("Failed to open report archive", applog.FieldError, err.Error(), "target", cfg.ReportArchive)
		os.Exit(1)
	default:
		logger.Info("Report archive enabled", "target", cfg.ReportArchive)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Workflow:       workflow,
		Directory:      directory,
		Auth:           verifier,
		Catalog:        catalog,
		AttendanceMode: cfg.AttendanceMode(),
		Archive:        reports,
		Metrics:        m,
		Ready:          res.Ping,
		Logger:         logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err.Error())
		}
		cacheManager.Stop()
		if reports != nil {
			if err := reports.Close(); err != nil {
				logger.Warn("Report archive close failed", applog.FieldError, err.Error())
			}
		}
		if closeRedis != nil {
			_ = closeRedis()
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", applog.FieldError, err.Error())
		}
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
