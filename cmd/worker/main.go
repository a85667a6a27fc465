package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"collegeportal/internal/attendance"
	"collegeportal/internal/cloudinary"
	"collegeportal/internal/config"
	"collegeportal/internal/logging"
	"collegeportal/internal/metrics"
	"collegeportal/internal/queue"
	"collegeportal/internal/reporting"
	"collegeportal/internal/store"
)

// Worker consumes report and purge jobs from the Redis queue.
func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		logger.Fatal("QUEUE_BACKEND=memory runs jobs inside the api process; the worker needs redis")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet; consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	go serveMetrics(logger, reg, ":"+cfg.WorkerMetricsPort)

	var uploader reporting.Uploader
	if cfg.Cloudinary.Enabled() {
		uploader = cloudinary.New(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		logger.Info("cloudinary configured", zap.String("cloud", cfg.Cloudinary.CloudName))
	} else {
		logger.Info("cloudinary not configured; workbooks are not uploaded")
	}

	svc := attendance.NewService(attendance.NewPostgresRepository(db.Client), cfg.Location(), cfg.ReportWindowDays)
	results := reporting.NewRedisStore(redisClient.Client, cfg.ReportJobTTL)
	runner := reporting.NewRunner(svc, results, uploader, logger, m)

	if err := runner.Run(ctx, queue.NewRedisQueue(redisClient.Client, "")); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}
}

func serveMetrics(logger *zap.Logger, reg *prometheus.Registry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}
