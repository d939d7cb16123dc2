package main

import (
	"context"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/reqlog/internal/config"
	"github.com/GoPolymarket/reqlog/internal/handler"
	"github.com/GoPolymarket/reqlog/internal/middleware"
	"github.com/GoPolymarket/reqlog/internal/pkg/logger"
	"github.com/GoPolymarket/reqlog/internal/repository"
	"github.com/GoPolymarket/reqlog/internal/service"
	"github.com/GoPolymarket/reqlog/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	// 3. Initialize Persistence
	// Request store (Postgres > Memory)
	var store service.RequestStore
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("✅ Connected to PostgreSQL")
			store = repository.NewPostgresRequestStore(db)
		} else {
			logger.Error("⚠️ Failed to connect to DB, falling back to memory", "error", err)
		}
	}
	if store == nil {
		store = repository.NewMemoryRequestStore()
	}

	// Recent feed and daily stats (Redis > Memory)
	var feed service.RecentFeed
	var stats service.StatsStore
	var redisClient *repository.RedisClient
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
			feed = repository.NewRedisRecentFeed(redisClient, cfg.Redis.FeedKey, cfg.Redis.FeedMax)
			stats = repository.NewRedisDailyStats(redisClient)
		} else {
			logger.Error("⚠️ Failed to connect to Redis, falling back to memory", "error", err)
			redisClient = nil
		}
	}
	if feed == nil {
		feed = service.NewMemoryRecentFeed(cfg.Redis.FeedMax)
		stats = service.NewMemoryDailyStats()
	}

	// 4. Initialize Core Services
	recorder := service.NewRecorderService(cfg.RequestLog, store, feed)
	recorder.SetStats(stats)

	hub := stream.NewHub()
	recorder.SetPublisher(hub)

	hooks := middleware.NewRequestLogHooks(cfg.RequestLog, recorder)

	retention := service.NewRetentionWorker(recorder,
		time.Duration(cfg.Database.RetentionDays)*24*time.Hour,
		time.Duration(cfg.Database.CleanupIntervalMinutes)*time.Minute,
	)
	retention.Start(context.Background())

	// 5. Initialize Handlers
	requestHandler := handler.NewRequestHandler(recorder, hooks)
	limiter := middleware.NewIPRateLimiter(cfg.Auth.AdminRateQPS, cfg.Auth.AdminRateBurst)

	// 6. Setup Router
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Fatalf("Invalid trusted proxies: %v", err)
	}

	// Global Middleware
	r.Use(middleware.Global(hooks, cfg.RequestLog)...)

	// Health Check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "reqlog", "recording": hooks.Enabled()})
	})

	// Metrics Endpoint
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// Admin Routes
	admin := r.Group("/admin")
	admin.Use(middleware.AdminMiddleware(cfg))
	admin.Use(middleware.RateLimitMiddleware(limiter))
	admin.Use(hooks.ViewStart())
	{
		requestHandler.Register(admin)
		admin.GET("/requests/stream", hub.ServeWS)
	}

	// Everything else goes to the upstream application.
	if cfg.Server.Upstream != "" {
		target, err := url.Parse(cfg.Server.Upstream)
		if err != nil {
			log.Fatalf("Invalid upstream: %v", err)
		}
		r.NoRoute(hooks.ViewStart(), upstreamProxy(target))
		logger.Info("Proxying unmatched routes", "upstream", target.String())
	}

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 reqlog started", "port", cfg.Server.Port, "recording", hooks.Enabled())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub.Close()
	retention.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exiting")
}

func upstreamProxy(target *url.URL) gin.HandlerFunc {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.LogError(r.Context(), err, "upstream request failed", "path", r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
	}
	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}
