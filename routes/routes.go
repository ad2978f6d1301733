package routes

import (
	"credit-underwriting-api/controllers"
	"credit-underwriting-api/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	// API group
	api := router.Group("/api")
	{
		// Public routes
		public := api.Group("")
		{
			public.POST("/users/register", controllers.Register)
			public.POST("/users/login", controllers.Login)

			// Health check
			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "Credit Underwriting API is running",
				})
			})

			// Websocket notifications; authenticates via token query param
			public.GET("/ws", controllers.NotificationSocket)
		}

		// Protected routes (require authentication)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/profile", controllers.GetProfile)

			// Credit applications
			applications := protected.Group("/applications")
			{
				applications.POST("", controllers.CreateApplication)
				applications.GET("/me", controllers.GetMyApplications)
				applications.GET("/:id", controllers.GetMyApplication)
				applications.POST("/:id/documents", controllers.UploadDocuments)
			}

			// Admin: final decisions and model management
			admin := protected.Group("/admin")
			admin.Use(middleware.RequireAdmin())
			{
				admin.GET("/applications", controllers.GetAllApplications)
				admin.POST("/applications/:id/approve", controllers.ApproveApplication)
				admin.POST("/applications/:id/reject", controllers.RejectApplication)
				admin.POST("/train-model", controllers.TrainModel)
			}
		}
	}

	// 404 catch-all
	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "Endpoint not found"})
	})
}
