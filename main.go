package main

import (
	"log"

	"livepoll/config"
	"livepoll/handlers"
	"livepoll/middleware"
	"livepoll/models"
	"livepoll/routes"
	"livepoll/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.Presenter{},
		&models.Session{},
		&models.Question{},
		&models.Response{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis-backed change propagation and presence
	redisClient := config.InitRedis(cfg)
	bus := services.NewRedisBus(redisClient)
	presence := services.NewRedisPresence(redisClient)

	// Initialize services
	authService := services.NewAuthService(db, cfg.JWTSecret)
	sessionService := services.NewSessionService(db, bus)
	questionService := services.NewQuestionService(db, bus)
	responseService := services.NewResponseService(db, bus, questionService)

	// Initialize WebSocket hub
	hub := services.NewHub(bus, presence, sessionService, questionService, responseService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	sessionHandler := handlers.NewSessionHandler(sessionService, questionService, responseService)
	questionHandler := handlers.NewQuestionHandler(questionService)
	responseHandler := handlers.NewResponseHandler(responseService)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, authHandler, sessionHandler, questionHandler, responseHandler, hub, sessionService, cfg.JWTSecret)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
