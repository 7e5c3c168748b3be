package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yukikurage/annotation-api/internal/config"
	"github.com/yukikurage/annotation-api/internal/constants"
	"github.com/yukikurage/annotation-api/internal/database"
	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/handlers"
	"github.com/yukikurage/annotation-api/internal/logging"
	"github.com/yukikurage/annotation-api/internal/middleware"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/repository"
	"github.com/yukikurage/annotation-api/internal/services"
)

type app struct {
	store       repository.Store
	auth        *services.AuthService
	tasks       *services.TaskService
	images      *services.ImageService
	annotations *services.AnnotationService
	reviews     *services.ReviewService
	quality     *services.QualityService
	exports     *services.ExportService
}

func newRouter(cfg *config.Config, store sessions.Store, a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	// Archives and images are already compressed
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`/download$`, `/file$`, `/thumbnail$`})))

	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(constants.SessionCookieName, store))

	authHandler := handlers.NewAuthHandler(a.auth)
	taskHandler := handlers.NewTaskHandler(a.tasks)
	imageHandler := handlers.NewImageHandler(a.images)
	annotationHandler := handlers.NewAnnotationHandler(a.annotations)
	reviewHandler := handlers.NewReviewHandler(a.reviews, a.quality)
	exportHandler := handlers.NewExportHandler(a.exports)

	requireAuth := middleware.RequireAuth(a.store.Users())
	staff := middleware.RequireRole(models.RoleAdmin, models.RoleEngineer)

	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := database.GetDB().DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			apierrors.RespondWithError(c, http.StatusServiceUnavailable,
				apierrors.NewAPIError(apierrors.ErrCodeServiceUnavailable, "Database unavailable"))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Annotation API is running",
		})
	})
	r.NoRoute(func(c *gin.Context) {
		apierrors.NotFound(c, "")
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", requireAuth, authHandler.GetCurrentUser)
		}

		api.POST("/users", requireAuth, middleware.RequireRole(models.RoleAdmin), authHandler.CreateUser)

		tasks := api.Group("/tasks")
		tasks.Use(requireAuth)
		{
			tasks.GET("", taskHandler.ListTasks)
			tasks.POST("", staff, taskHandler.CreateTask)
			tasks.GET("/stats", taskHandler.Stats)
			tasks.GET("/:id", middleware.RequireTaskAccess(a.tasks), taskHandler.GetTask)
			tasks.PUT("/:id", taskHandler.UpdateTask)
			tasks.DELETE("/:id", taskHandler.DeleteTask)
			tasks.POST("/:id/assign", taskHandler.AssignTask)
			tasks.POST("/:id/assign-multiple", taskHandler.AssignMultiple)
			tasks.POST("/:id/unassign", taskHandler.UnassignTask)
			tasks.POST("/:id/start", taskHandler.StartTask)
			tasks.POST("/:id/complete", taskHandler.CompleteTask)
			tasks.GET("/:id/assignments", taskHandler.ListAssignments)
			tasks.POST("/:id/images", imageHandler.UploadImages)
			tasks.GET("/:id/images", imageHandler.ListImages)
		}

		images := api.Group("/images")
		images.Use(requireAuth)
		{
			images.DELETE("/:id", imageHandler.DeleteImage)
			images.GET("/:id/file", imageHandler.ServeFile)
			images.GET("/:id/thumbnail", imageHandler.ServeThumbnail)
			images.GET("/:id/annotations", annotationHandler.ImageAnnotations)
			images.POST("/:id/review", reviewHandler.ReviewImage)
			images.DELETE("/:id/rejected", annotationHandler.DeleteRejected)
		}

		annotations := api.Group("/annotations")
		annotations.Use(requireAuth)
		{
			annotations.POST("", annotationHandler.CreateAnnotation)
			annotations.GET("", annotationHandler.ListAnnotations)
			annotations.GET("/:id", annotationHandler.GetAnnotation)
			annotations.PUT("/:id", annotationHandler.UpdateAnnotation)
			annotations.DELETE("/:id", annotationHandler.DeleteAnnotation)
			annotations.POST("/:id/review", reviewHandler.ReviewAnnotation)
		}

		quality := api.Group("/quality")
		quality.Use(requireAuth)
		{
			quality.GET("/pending-reviews", reviewHandler.PendingReviews)
			quality.GET("/metrics/:task_id", reviewHandler.TaskMetrics)
			quality.GET("/review-stats", reviewHandler.ReviewStats)
		}

		export := api.Group("/export")
		export.Use(requireAuth)
		{
			export.POST("", exportHandler.RequestExport)
			export.GET("/formats", exportHandler.Formats)
			export.GET("/history", exportHandler.History)
			export.GET("/:id/status", exportHandler.Status)
			export.GET("/:id/download", exportHandler.Download)
		}
	}

	return r
}
