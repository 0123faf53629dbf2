package main

import (
	"fmt"
	"net/http"
	"time"

	"physiosync-go/internal/client"
	"physiosync-go/internal/config"
	"physiosync-go/internal/database"
	"physiosync-go/internal/handler"
	"physiosync-go/internal/repository"
	"physiosync-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.LoadConfig()
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.Info("Starting PhysioSync workflow server")

	logger.Info("Connecting to database...")
	if err := database.Connect(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	logger.Info("Running database migrations...")
	if err := database.Migrate(); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	if err := database.HealthCheck(); err != nil {
		logger.Fatalf("Database is not available: %v", err)
	}
	logger.Info("Database connected and ready")

	// Repositories
	analysisRepo := repository.NewAnalysisRepository(database.DB)

	// Services
	mocapClient := client.NewMocapAPIClient(
		cfg.MocapAPI.BaseURL,
		time.Duration(cfg.MocapAPI.Timeout)*time.Second,
		logger,
	)
	resultService := service.NewResultService(analysisRepo, logger)
	pipelineService := service.NewPipelineService(mocapClient, resultService, logger)
	sessionManager := service.NewSessionManager(pipelineService, logger)

	// Handlers
	sessionHandler := handler.NewSessionHandler(sessionManager, pipelineService, logger)
	analysisHandler := handler.NewAnalysisHandler(resultService, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	sessionHandler.RegisterRoutes(router)
	analysisHandler.RegisterRoutes(router)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "PhysioSync Workflow Server",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Server listening on %s", serverAddr)
	logger.Infof("API available at http://localhost:%d/api/v1", cfg.Server.Port)

	if err := router.Run(serverAddr); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}

// corsMiddleware allows the therapist frontend to call the API from its
// dev server or hosted origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
