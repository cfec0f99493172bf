// Package main runs the event platform HTTP server with WebSocket dashboards
// and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qikhub/backend/config"
	"github.com/qikhub/backend/internal/analytics"
	"github.com/qikhub/backend/internal/auth"
	"github.com/qikhub/backend/internal/checkins"
	"github.com/qikhub/backend/internal/devices"
	"github.com/qikhub/backend/internal/events"
	"github.com/qikhub/backend/internal/icp"
	"github.com/qikhub/backend/internal/middleware"
	"github.com/qikhub/backend/internal/notifications"
	"github.com/qikhub/backend/internal/participants"
	"github.com/qikhub/backend/internal/realtime"
	"github.com/qikhub/backend/internal/worker"
	"github.com/qikhub/backend/pkg/database"
	"github.com/qikhub/backend/pkg/queue"
	"github.com/qikhub/backend/pkg/redis"
	"github.com/qikhub/backend/pkg/response"
	"github.com/qikhub/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AvatarBucket:         cfg.AWS.AvatarBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Notifications: queue-backed sink for transitions, worker persists
	notificationRepo := notifications.NewRepository(pool)
	notificationHandler := notifications.NewHandler(notificationRepo, logger)
	notificationSink := notifications.NewSink(jobQueue, logger)
	notificationProcessor := worker.NewNotificationProcessor(notificationRepo, jobQueue, logger)

	// Events
	eventRepo := events.NewRepository(pool)
	eventHandler := events.NewHandler(eventRepo, logger)

	// Participants
	participantRepo := participants.NewRepository(pool)
	participantHandler := participants.NewHandler(participantRepo, eventRepo, s3Client, logger)

	// Attendance
	checkinRepo := checkins.NewRepository(pool)
	checkinEngine := checkins.NewEngine(checkinRepo, notificationSink, logger)
	checkinHandler := checkins.NewHandler(checkinEngine, hub, logger)

	// Devices and liveness
	deviceRepo := devices.NewRepository(pool)
	liveness := devices.NewLiveness(deviceRepo, cfg.Heartbeat.OfflineThreshold, logger)
	deviceHandler := devices.NewHandler(deviceRepo, liveness, hub, logger)
	pingLimiter := middleware.RateLimitByParam(
		func(c *gin.Context, key string) (bool, error) {
			return rdb.Allow(c.Request.Context(), key, cfg.PingThrottle.Limit, cfg.PingThrottle.Window)
		},
		"id", "throttle:ping", logger)

	// Analytics
	analyticsHandler := analytics.NewHandler(pool, eventRepo, logger)

	// Chain bindings
	icpGateway := icp.NewGateway(cfg.ICP, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	api.Use(middleware.Audit(logger))
	{
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		eventHandler.RegisterRoutes(api)
		participantHandler.RegisterRoutes(api)
		checkinHandler.RegisterRoutes(api)
		deviceHandler.RegisterRoutes(api, pingLimiter)
		notificationHandler.RegisterRoutes(api)
		analyticsHandler.RegisterRoutes(api)
		icpGateway.RegisterRoutes(api)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background loops: notification delivery and the liveness sweep
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go notificationProcessor.Run(bgCtx)
	go liveness.Run(bgCtx, cfg.Heartbeat.SweepInterval)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
