package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-attendance-api/api/swagger"
	"github.com/noah-isme/sma-attendance-api/internal/handler"
	"github.com/noah-isme/sma-attendance-api/internal/middleware"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	"github.com/noah-isme/sma-attendance-api/pkg/cache"
	"github.com/noah-isme/sma-attendance-api/pkg/config"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
	"github.com/noah-isme/sma-attendance-api/pkg/firebase"
	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
	"github.com/noah-isme/sma-attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-attendance-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

// @title SMA Attendance API
// @version 0.2.0
// @description Academic calendar, active session and session-scoped school structure
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := docstore.Open(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open document store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closeStore()

	metrics := service.NewMetricsService()

	var sessionCache *service.CacheService
	if cfg.Session.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable; session cache disabled", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(client, logr)
			defer cacheRepo.Close() //nolint:errcheck
			sessionCache = service.NewCacheService(cacheRepo, metrics, cfg.Session.CacheTTL, logr, true)
		}
	}

	jobRouter := jobs.NewRouter()
	queue := jobs.NewQueue("post-commit", jobRouter.Dispatch, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
		OnExhausted: func(job jobs.Job, err error) {
			logr.Error("background job exhausted retries", zap.String("type", job.Type), zap.String("job_id", job.ID), zap.Error(err))
		},
	})
	invalidator := service.NewSessionInvalidator(queue, sessionCache, logr)
	jobRouter.Handle(service.JobInvalidateSession, invalidator.HandleJob)
	queue.Start(ctx)
	defer queue.Stop()

	authConfig := service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: "sma-attendance-api"}
	if cfg.Auth.Provider == config.AuthProviderFirebase {
		app, err := firebase.NewApp(ctx, cfg.Firebase)
		if err != nil {
			logr.Fatal("failed to init firebase", zap.Error(err))
		}
		client, err := firebase.Auth(ctx, app)
		if err != nil {
			logr.Fatal("failed to init firebase auth", zap.Error(err))
		}
		authConfig.Firebase = client
	}
	authService := service.NewAuthService(authConfig, logr)

	validate := validator.New()
	years := repository.NewAcademicYearRepository(store)
	semesters := repository.NewSemesterRepository(store)

	directory := service.NewSessionDirectory(years, semesters, sessionCache, metrics, cfg.Session.CacheTTL, logr)
	activation := service.NewSessionActivationService(repository.NewStatusRepository(store), validate, metrics, invalidator, logr)
	calendar := service.NewAcademicCalendarService(years, semesters, cfg.Calendar.SemesterNames, validate, invalidator, logr)
	structure := service.NewStructureService(repository.NewStructureRepository(store), validate, metrics, logr)
	reports := service.NewReportService(structure, logr)

	if anomalies, err := directory.Audit(ctx); err != nil {
		logr.Warn("startup session audit failed", zap.Error(err))
	} else if len(anomalies) > 0 {
		logr.Warn("session anomalies found at startup", zap.Any("anomalies", anomalies))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if _, err := directory.Current(c.Request.Context()); err != nil {
			response.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	handler.Register(r.Group(cfg.APIPrefix), handler.Handlers{
		AcademicYears: handler.NewAcademicYearHandler(calendar, activation),
		Semesters:     handler.NewSemesterHandler(calendar, activation),
		Session:       handler.NewSessionHandler(directory, cfg.Session.StreamHeartbeat, logr),
		Structure:     handler.NewStructureHandler(structure, directory),
		Reports:       handler.NewReportHandler(reports, directory),
		Metrics:       metricsHandler,
	}, middleware.JWT(authService))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with the process so open session streams close on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
