package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/handler"
	"github.com/ledgergate/ledgergate/internal/middleware"
	"github.com/ledgergate/ledgergate/internal/pkg/logger"
	"github.com/ledgergate/ledgergate/internal/repository"
	"github.com/ledgergate/ledgergate/internal/service"
)

func main() {
	// 1. Load Configuration (reads .env, then ledgergate.yaml + env vars)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	if len(cfg.CORS.AllowedOrigins) == 0 {
		logger.Warn("cors.allowed_origins is empty, cross-origin enforcement is off")
	}

	// 2. Initialize Persistence
	// Rate-limit window state (Redis when shared state is wanted, else memory)
	var rateLimitStore middleware.RateLimitStore
	var redisClient = tryRedis(cfg)
	if redisClient != nil && cfg.Redis.RateLimit {
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window())
	} else {
		memStore := middleware.NewMemoryRateLimitStore(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window())
		go func() {
			ticker := time.NewTicker(3 * cfg.RateLimit.Window())
			defer ticker.Stop()
			for range ticker.C {
				memStore.Cleanup()
			}
		}()
		rateLimitStore = memStore
	}

	// Audit persistence ladder: Postgres > Redis > file-only
	var auditRepo service.AuditRepo
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			auditRepo = repository.NewPostgresAuditRepo(db)
		} else {
			logger.Error("Failed to connect to DB", "error", err)
		}
	}
	if auditRepo == nil && redisClient != nil {
		logger.Info("Using Redis audit store")
		auditRepo = repository.NewRedisAuditRepo(redisClient, cfg.Redis.AuditListKey, cfg.Redis.AuditListMax)
	}
	if auditRepo == nil {
		logger.Warn("No audit store configured, audit records are file-only")
	}

	auditSvc, err := service.NewAuditService(cfg.Audit, auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	// 3. Initialize Core Services
	verifier, err := middleware.NewVerifier(cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize token verifier: %v", err)
	}

	extractor := service.NewExtractorClient(cfg.Extractor)
	gatewaySvc := service.NewGatewayService(cfg, extractor)

	// 4. Initialize Handlers
	gatewayHandler := handler.NewGatewayHandler(gatewaySvc, cfg.Server.MaxUploadBytes)
	auditHandler := handler.NewAuditHandler(auditSvc)

	// 5. Setup Router
	r := gin.New()
	r.Use(gin.Recovery())

	// Global security chain; the order is load-bearing, see middleware.Pipeline.
	r.Use(middleware.Pipeline(cfg, rateLimitStore)...)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "ledgergate"})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	gw := r.Group("/gateway")
	gw.Use(middleware.Auth(verifier))
	gw.Use(middleware.Audit(auditSvc, cfg.Audit.MaxBodyBytes))
	{
		gw.POST("/:service", gatewayHandler.Route)
	}

	admin := r.Group("/admin")
	admin.Use(middleware.Admin(cfg))
	{
		admin.GET("/audit", auditHandler.List)
	}

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("LedgerGate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	// Drain the audit queue only after in-flight requests have finished.
	auditSvc.Close()

	logger.Info("Server exiting")
}

func tryRedis(cfg *config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client, err := repository.NewRedisClient(cfg)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		return nil
	}
	logger.Info("Connected to Redis")
	return client
}
