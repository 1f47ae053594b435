package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"opinion-market/internal/auth"
	"opinion-market/internal/config"
	"opinion-market/internal/database"
	"opinion-market/internal/handlers"
	"opinion-market/internal/metrics"
	"opinion-market/internal/services"
	"opinion-market/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Start the price broadcast hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize services
	userService := services.NewUserService(database.GetDB(), cfg.App.InitialBalance, cfg.App.InitialRewardPoints)
	eventService := services.NewEventService(database.GetDB())
	tradeService := services.NewTradeService(database.GetDB(), hub)

	if err := eventService.SeedOpenMarketsGauge(context.Background()); err != nil {
		log.Fatalf("Failed to seed open-markets gauge: %v", err)
	}

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	eventHandler := handlers.NewEventHandler(eventService, tradeService)
	adminHandler := handlers.NewAdminHandler(userService)

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if cfg.Server.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.Server.FrontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Wallet-Address"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Live price stream
	router.GET("/ws", func(c *gin.Context) {
		hub.Serve(c.Writer, c.Request)
	})

	// Public routes
	router.POST("/api/users/sync", userHandler.SyncUser)
	publicEvents := router.Group("/api/events")
	publicEvents.Use(auth.OptionalIdentityMiddleware())
	{
		publicEvents.GET("", eventHandler.ListEvents)
		publicEvents.GET("/:id", eventHandler.GetEvent)
	}

	// API routes (identified callers)
	api := router.Group("/api")
	api.Use(auth.IdentityMiddleware())
	{
		// User endpoints
		api.GET("/users/me", userHandler.GetMe)
		api.GET("/users/transactions", userHandler.GetTransactions)

		// Event endpoints
		api.POST("/events", eventHandler.CreateEvent)
		api.POST("/events/:id/trade", eventHandler.ExecuteTrade)
		api.PUT("/events/:id", eventHandler.UpdateEvent)

		// Admin endpoints
		api.GET("/admin/users", adminHandler.ListUsers)
		api.PUT("/admin/users", adminHandler.SetUserRole)
	}

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
