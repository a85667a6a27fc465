package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"collegeportal/internal/attendance"
	"collegeportal/internal/auth"
	"collegeportal/internal/cloudinary"
	"collegeportal/internal/config"
	"collegeportal/internal/handler"
	"collegeportal/internal/httpmiddleware"
	"collegeportal/internal/logging"
	"collegeportal/internal/metrics"
	"collegeportal/internal/queue"
	"collegeportal/internal/reporting"
	"collegeportal/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	checks := map[string]handler.HealthCheck{}

	var repo attendance.Repository
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory attendance store; data is lost on restart")
		repo = attendance.NewMemoryRepository()
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := store.Migrate(ctx, db.Client); err != nil {
				return err
			}
		}
		repo = attendance.NewPostgresRepository(db.Client)
		checks["db"] = db.Healthy
	}
	svc := attendance.NewService(repo, cfg.Location(), cfg.ReportWindowDays)

	var (
		q       queue.Queue
		results reporting.ResultStore
	)
	switch cfg.QueueBackend {
	case "memory":
		mem := queue.NewInMemory(64)
		q = mem
		results = reporting.NewMemoryStore(cfg.ReportJobTTL)

		// no separate worker process can reach an in-process queue
		var uploader reporting.Uploader
		if cfg.Cloudinary.Enabled() {
			uploader = cloudinary.New(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		}
		runner := reporting.NewRunner(svc, results, uploader, logger.Named("worker"), m)
		go func() {
			if err := runner.Run(ctx, mem); err != nil {
				logger.Error("in-process worker stopped", zap.Error(err))
			}
		}()
	default:
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, "")
		results = reporting.NewRedisStore(redisClient.Client, cfg.ReportJobTTL)
		checks["redis"] = redisClient.Healthy
	}

	h := handler.New(svc, reporting.NewDispatcher(q, results), logger, m, cfg.RetentionDays, checks)
	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, m.RateLimited)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger, "/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	h.Routes(r, auth.Authenticate(cfg.JWTSigningKey, cfg.JWTIssuer), limiter.GinMiddleware())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend), zap.String("queue", cfg.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}
