package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/mashov-bridge/api/swagger"
	"github.com/noah-isme/mashov-bridge/internal/handler"
	"github.com/noah-isme/mashov-bridge/internal/mashov"
	internalmiddleware "github.com/noah-isme/mashov-bridge/internal/middleware"
	"github.com/noah-isme/mashov-bridge/internal/models"
	"github.com/noah-isme/mashov-bridge/internal/repository"
	"github.com/noah-isme/mashov-bridge/internal/service"
	"github.com/noah-isme/mashov-bridge/pkg/cache"
	"github.com/noah-isme/mashov-bridge/pkg/config"
	"github.com/noah-isme/mashov-bridge/pkg/database"
	"github.com/noah-isme/mashov-bridge/pkg/export"
	"github.com/noah-isme/mashov-bridge/pkg/logger"
	corsmiddleware "github.com/noah-isme/mashov-bridge/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/mashov-bridge/pkg/middleware/requestid"
)

// @title Mashov Bridge API
// @version 1.0.0
// @description Polls the Mashov parent portal and serves per-student school data.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	loc, err := time.LoadLocation(cfg.Mashov.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid timezone", "timezone", cfg.Mashov.Timezone, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	metrics := service.NewMetricsService()

	var stateCache *service.StateCacheService
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, sensor state kept in memory only", "error", err)
		} else {
			defer closeRedis(client, logr)
			stateCache = service.NewStateCacheService(repository.NewStateRepository(client, logr), metrics, logr, true)
		}
	}

	var (
		optionsStore service.InstanceOptionsStore
		runStore     service.RefreshRunStore
	)
	if cfg.Database.Enabled {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("database unavailable", "error", err)
		}
		defer db.Close() //nolint:errcheck
		optionsStore = repository.NewInstanceOptionsRepository(db, metrics)
		runStore = repository.NewRefreshRunRepository(db, metrics)
	}

	publisher := service.NewStatePublisher(service.NewAttributeLimiter(logr), stateCache, metrics, logr)
	instances := service.NewInstanceService(
		clientFactory(cfg.Mashov, metrics, logr),
		publisher,
		optionsStore,
		runStore,
		metrics,
		validate,
		logr,
		service.InstanceServiceConfig{
			PollInterval:   cfg.Mashov.PollInterval,
			RefreshTimeout: cfg.Refresh.Timeout,
			Workers:        cfg.Refresh.Workers,
			Now:            func() time.Time { return time.Now().In(loc) },
		},
	)
	instances.Start(ctx)

	defs, err := config.LoadInstances(cfg.Instances.File)
	if err != nil {
		logr.Sugar().Fatalw("failed to load instances", "file", cfg.Instances.File, "error", err)
	}
	ready := instances.SetupAll(ctx, defs)
	logr.Sugar().Infow("instances loaded", "configured", len(defs), "available", ready)

	calendar := service.NewCalendarService(loc, logr)
	exports := service.NewExportService(instances, export.NewCSVExporter(cfg.Export.CSVBOM), export.NewPDFExporter(cfg.Export.PDFFont), logr)
	auth := service.NewAdminAuthService(validate, logr, service.AuthConfig{
		AdminUsername:     cfg.Admin.Username,
		AdminPasswordHash: cfg.Admin.PasswordHash,
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "mashov-bridge",
	})
	if !auth.Enabled() {
		logr.Warn("operator account not configured, protected endpoints are disabled")
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	routes := handler.Routes{
		Instances: handler.NewInstanceHandler(instances, validate),
		Sensors:   handler.NewSensorHandler(instances),
		Students:  handler.NewStudentHandler(instances, exports),
		Calendar:  handler.NewCalendarHandler(instances, calendar),
		Refresh:   handler.NewRefreshHandler(instances),
		Auth:      handler.NewAuthHandler(auth),
		Metrics:   handler.NewMetricsHandler(metrics, instances),
	}
	routes.Register(r, cfg.APIPrefix, internalmiddleware.JWT(auth))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	instances.Shutdown(shutdownCtx)
}

func clientFactory(cfg config.MashovConfig, recorder mashov.Recorder, logr *zap.Logger) service.ClientFactory {
	return func(def models.InstanceDefinition, opts models.EffectiveOptions) (service.MashovClient, error) {
		creds := mashov.Credentials{School: def.School, Username: def.Username, Password: def.Password}
		if def.Year != nil {
			creds.Year = *def.Year
		}
		baseURL := cfg.BaseURL
		if def.BaseURL != "" {
			baseURL = def.BaseURL
		}
		return mashov.New(creds, mashov.Config{
			BaseURL:             baseURL,
			RequestTimeout:      cfg.RequestTimeout,
			MaxConnections:      cfg.MaxConnections,
			LoginRetries:        cfg.LoginRetries,
			LoginRetryDelay:     cfg.LoginRetryDelay,
			CloseGrace:          cfg.CloseGrace,
			RateLimit:           cfg.RateLimit,
			RateBurst:           cfg.RateBurst,
			HomeworkDaysBack:    opts.HomeworkDaysBack,
			HomeworkDaysForward: opts.HomeworkDaysForward,
			BreakerName:         def.ID,
			Logger:              logr.With(zap.String("instance", def.ID)),
			Recorder:            recorder,
		})
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := database.NewPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return db, nil
}

func closeRedis(client *redis.Client, logr *zap.Logger) {
	if err := client.Close(); err != nil {
		logr.Warn("redis close", zap.Error(err))
	}
}
