package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"credit-underwriting-api/config"
	"credit-underwriting-api/controllers"
	"credit-underwriting-api/middleware"
	"credit-underwriting-api/routes"
	"credit-underwriting-api/services"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize logging and database
	config.InitLogging()
	config.InitDB()

	// Set Gin mode
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Add security headers middleware
	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Add CORS middleware
	router.Use(middleware.CORSMiddleware())

	// Create working directories if not exists
	for _, dir := range []string{uploadPath(), services.ReportsDir(), "models_trained"} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			log.Printf("Warning: Failed to create %s directory: %v", dir, err)
		}
	}

	// Connection registry for realtime notifications
	controllers.UseNotificationHub(services.NewNotificationHub())

	// Make sure a model artifact exists before the first prediction request;
	// trains in the background when none is on disk yet.
	if err := services.LoadModelArtifact(); err != nil {
		log.Println("No trained model artifact found, starting initial training")
		done := services.ModelTrainer.TrainAsync(config.DB)
		go func() {
			if err := <-done; err != nil {
				log.Printf("Initial model training failed: %v", err)
			}
		}()
	}

	// Setup routes and static mounts
	routes.SetupRoutes(router)
	router.Static("/uploads", uploadPath())
	router.Static("/reports", services.ReportsDir())

	// Start server
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)

	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func uploadPath() string {
	if p := os.Getenv("UPLOAD_PATH"); p != "" {
		return p
	}
	return "uploads"
}
