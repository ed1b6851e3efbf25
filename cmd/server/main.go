package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/signet-auth/signet-api/internal/config"
	"github.com/signet-auth/signet-api/internal/handler"
	"github.com/signet-auth/signet-api/internal/handler/middleware"
	"github.com/signet-auth/signet-api/internal/identity"
	"github.com/signet-auth/signet-api/internal/ierr"
	"github.com/signet-auth/signet-api/internal/keygen"
	"github.com/signet-auth/signet-api/internal/ratelimit"
	"github.com/signet-auth/signet-api/internal/scope"
	"github.com/signet-auth/signet-api/internal/service"
	"github.com/signet-auth/signet-api/internal/storage/memstorage"
	"github.com/signet-auth/signet-api/internal/storage/postgres"
	"github.com/signet-auth/signet-api/internal/storage/redis"
	"github.com/signet-auth/signet-api/internal/worker"
	"github.com/signet-auth/signet-api/pkg/logger"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting signet-api...")

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := postgres.NewPgxPool(appCtx, &cfg.Database, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbPool.Close()

	if err := postgres.ApplyMigrations(appCtx, dbPool, appLogger); err != nil {
		sugarLogger.Fatalf("Failed to apply database migrations: %v", err)
	}

	redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	keyRepo := postgres.NewAPIKeyRepository(dbPool, appLogger)
	orgRepo := postgres.NewOrganizationRepository(dbPool, appLogger)
	auditRepo := postgres.NewAuditRepository(dbPool, appLogger)
	userRepo := memstorage.NewUserRepository(cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)

	keyLimiter, err := buildLimiter(cfg, cfg.RateLimit.PerKey, redisClient, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to build per-key rate limiter: %v", err)
	}
	orgLimiter, err := buildLimiter(cfg, cfg.RateLimit.PerOrg, redisClient, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to build per-org rate limiter: %v", err)
	}
	creationLimiter, err := buildLimiter(cfg, cfg.RateLimit.Creation, redisClient, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to build creation rate limiter: %v", err)
	}

	var identityProvider identity.Provider
	if cfg.Identity.URL != "" {
		identityProvider = identity.NewHTTPProvider(cfg.Identity.URL, cfg.Identity.Timeout, appLogger)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	generator := keygen.NewGenerator()
	hasher := keygen.NewHasher(cfg.Auth.HashPepper)
	recorder := service.NewAuditRecorder(auditRepo, appLogger)
	usageDispatcher := service.NewAsynqUsageDispatcher(asynqClient)

	verifier := service.NewVerifierService(
		keyRepo, hasher, keyLimiter, orgLimiter,
		identityProvider,
		service.VerifierConfig{
			IdentityTimeout:  cfg.Identity.Timeout,
			IdentityRequired: cfg.Identity.Required,
		},
		recorder, usageDispatcher, appLogger,
	)
	keyService := service.NewAPIKeyService(keyRepo, generator, hasher, creationLimiter, recorder, appLogger)
	orgService := service.NewOrganizationService(orgRepo, appLogger)
	authService := service.NewAuthService(userRepo, &cfg.Auth, appLogger)

	healthHandler := handler.NewHealthHandler(dbPool, redisClient, appLogger)
	keyHandler := handler.NewAPIKeyHandler(keyService, recorder, appLogger)
	orgHandler := handler.NewOrganizationHandler(orgService, appLogger)
	authHandler := handler.NewAuthHandler(authService, appLogger)

	adminAuth := middleware.AdminAuthMiddleware(authService, appLogger)
	keyAuth := middleware.KeyAuthMiddleware(verifier, authService, appLogger)
	errorMiddleware := middleware.ErrorHandlerMiddleware(appLogger)

	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logMsg := "Panic recovered"
		if err, ok := recovered.(string); ok {
			logMsg = fmt.Sprintf("%s: %s", logMsg, err)
		} else if err, ok := recovered.(error); ok {
			logMsg = fmt.Sprintf("%s: %v", logMsg, err)
		}
		appLogger.Error(logMsg, zap.Stack("stack"))

		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))

	corsConfig := cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-API-Key",
		},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))
	router.Use(errorMiddleware)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRoutes := router.Group("/api/v1/auth")
	{
		authRoutes.POST("/login", authHandler.Login)
	}

	apiV1 := router.Group("/api/v1")
	{
		orgRoutes := apiV1.Group("/organizations")
		orgRoutes.Use(adminAuth)
		{
			orgRoutes.POST("", orgHandler.Create)
			orgRoutes.GET("", orgHandler.List)
			orgRoutes.GET("/:slug", orgHandler.GetBySlug)
		}

		keyRoutes := apiV1.Group("/keys")
		keyRoutes.Use(keyAuth)
		{
			keyRoutes.POST("", middleware.RequireScope(scope.ManagementWrite), keyHandler.Create)
			keyRoutes.GET("", middleware.RequireScope(scope.ManagementRead), keyHandler.List)
			keyRoutes.GET("/:id", middleware.RequireScope(scope.ManagementRead), keyHandler.Get)
			keyRoutes.PATCH("/:id", middleware.RequireScope(scope.ManagementWrite), keyHandler.Update)
			keyRoutes.DELETE("/:id", middleware.RequireScope(scope.ManagementWrite), keyHandler.Revoke)
			keyRoutes.GET("/:id/events", middleware.RequireScope(scope.ManagementRead), keyHandler.ListEvents)
		}
	}

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	g.Go(func() error {
		if err := worker.RunWorkers(groupCtx, cfg, keyRepo, auditRepo, appLogger); err != nil {
			return fmt.Errorf("asynq worker error: %w", err)
		}
		sugarLogger.Info("Asynq workers finished gracefully.")
		return nil
	})

	sugarLogger.Info("Application started. Waiting for interrupt signal or component error...")

	waitErr := g.Wait()

	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		sugarLogger.Errorf("Application shutdown finished with error: %v", waitErr)
	} else {
		sugarLogger.Info("Application shutdown successfully.")
	}
}

func buildLimiter(cfg *config.Config, bucket config.BucketConfig, redisClient *goredis.Client, appLogger *zap.Logger) (ratelimit.Limiter, error) {
	policy := ratelimit.Policy{Capacity: bucket.Capacity, Window: bucket.Window}
	if cfg.RateLimit.UseRedis {
		return ratelimit.NewRedis(redisClient, policy, appLogger)
	}
	return ratelimit.NewMemory(policy)
}
