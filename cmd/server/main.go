package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creatorcast/backend/config"
	"github.com/creatorcast/backend/internal/auth"
	"github.com/creatorcast/backend/internal/cache"
	"github.com/creatorcast/backend/internal/credentials"
	"github.com/creatorcast/backend/internal/database"
	"github.com/creatorcast/backend/internal/events"
	"github.com/creatorcast/backend/internal/handlers"
	"github.com/creatorcast/backend/internal/middleware"
	"github.com/creatorcast/backend/internal/models"
	"github.com/creatorcast/backend/internal/platform"
	"github.com/creatorcast/backend/internal/publish"
	"github.com/creatorcast/backend/internal/repository"
	"github.com/creatorcast/backend/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.NewPostgresDB(cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	// Connect to Redis
	redis, err := cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		log.Println("Running without Redis - caching and cross-instance events disabled")
		redis = nil
	} else {
		defer redis.Close()
	}

	if err := os.MkdirAll(cfg.Storage.UploadDir, 0o755); err != nil {
		log.Fatalf("Failed to create upload directory: %v", err)
	}

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	videoRepo := repository.NewVideoRepository(db)
	streamRepo := repository.NewLiveStreamRepository(db)

	// Initialize event hub; works without Redis in single-instance mode
	hub := events.NewHub(redis)
	go hub.Run()
	wsHandler := events.NewHandler(hub, jwtService, cfg.CORS.AllowedOrigins)

	// Platform adapter and token lifecycle
	yt := platform.NewYouTube()
	tokenManager := credentials.NewManager(tokenRepo, channelRepo, userRepo)

	orchestrator := publish.NewOrchestrator(yt, tokenManager, videoRepo, channelRepo, streamRepo, cfg.Storage.UploadDir)

	// Process supervisor with the single exit-reconciliation callback
	supervisor := stream.NewSupervisor(cfg.Storage.UploadDir, cfg.Stream.FFmpegPath, cfg.Stream.StopTimeout, func(streamID uuid.UUID, exitCode *int) {
		if exitCode != nil {
			log.Printf("stream %s exited with code %d", streamID, *exitCode)
		} else {
			log.Printf("stream %s failed to launch", streamID)
		}

		ls, err := streamRepo.GetByID(streamID)
		if err != nil {
			log.Printf("exit reconciliation: loading stream %s failed: %v", streamID, err)
			return
		}
		if err := streamRepo.MarkComplete(streamID, time.Now()); err != nil {
			log.Printf("exit reconciliation: marking stream %s complete failed: %v", streamID, err)
		}

		payload := gin.H{"stream_id": streamID}
		if exitCode != nil {
			payload["exit_code"] = *exitCode
		}
		hub.Notify(ls.UserID, models.EventStreamEnded, payload)
	})

	// Rows left 'live' by a previous instance have no process anymore.
	if n, err := streamRepo.SweepStaleLive(time.Now()); err != nil {
		log.Printf("Warning: sweeping stale live streams failed: %v", err)
	} else if n > 0 {
		log.Printf("Swept %d stale live stream(s) to complete", n)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userRepo, jwtService)
	channelHandler := handlers.NewChannelHandler(userRepo, channelRepo, tokenRepo, tokenManager, yt, jwtService, redis, cfg.OAuth.RedirectURL)
	videoHandler := handlers.NewVideoHandler(videoRepo, orchestrator, hub, redis, cfg.Storage.UploadDir)
	streamHandler := handlers.NewStreamHandler(streamRepo, videoRepo, orchestrator, supervisor, tokenManager, yt, hub)

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.API.RateLimitPerSec)
	rateLimiter.Cleanup()

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Middleware
	router.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Public routes
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
		// Platform redirects here after consent; state carries the user.
		authRoutes.GET("/youtube/callback", channelHandler.Callback)
	}

	// WebSocket endpoint
	router.GET("/ws", wsHandler.HandleWebSocket)

	// Protected routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtService))
	{
		// User routes
		api.GET("/me", authHandler.GetMe)
		api.PUT("/me/credentials", authHandler.UpdateCredentials)

		// Channel routes
		api.POST("/channels/connect", channelHandler.Connect)
		api.GET("/channels", channelHandler.List)
		api.PUT("/channels/:id/refresh", channelHandler.Refresh)
		api.DELETE("/channels/:id", channelHandler.Disconnect)

		// Video routes
		api.POST("/videos", videoHandler.Upload)
		api.GET("/videos", videoHandler.List)
		api.GET("/videos/:id", videoHandler.Get)
		api.DELETE("/videos/:id", videoHandler.Delete)
		api.POST("/videos/:id/publish", middleware.RateLimitMiddleware(rateLimiter), videoHandler.Publish)
		api.POST("/videos/:id/premiere", middleware.RateLimitMiddleware(rateLimiter), videoHandler.SchedulePremiere)

		// Live stream routes
		api.POST("/streams", middleware.RateLimitMiddleware(rateLimiter), streamHandler.Create)
		api.GET("/streams", streamHandler.List)
		api.GET("/streams/:id/status", streamHandler.Status)
		api.POST("/streams/:id/start", streamHandler.Start)
		api.POST("/streams/:id/stop", streamHandler.Stop)
		api.DELETE("/streams/:id", streamHandler.Delete)
	}

	// Start server
	addr := ":" + cfg.Server.Port
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("Starting CreatorCast server on %s (env: %s)", addr, cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Block until a termination signal, then stop child processes before the
	// listener so exit reconciliation still has a database to write to.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	supervisor.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	log.Println("Server stopped")
}
