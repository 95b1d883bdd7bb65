package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/audiodrive/backend-go/internal/api/handlers"
	"github.com/andresuchdata/audiodrive/backend-go/internal/api/middleware"
	"github.com/andresuchdata/audiodrive/backend-go/internal/auth"
	"github.com/andresuchdata/audiodrive/backend-go/internal/metrics"
	"github.com/andresuchdata/audiodrive/backend-go/internal/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

type Services struct {
	Files    handlers.FileService
	Analyzer handlers.Analyzer
	Store    store.Store
	Auth     *auth.Authenticator
	// Batch enables POST /api/analyze-folder/:folderId. May be nil.
	Batch handlers.FolderAnalyzer
	// OAuth enables /auth and /oauth2callback. May be nil.
	OAuth *oauth2.Config
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	if services == nil {
		return router
	}

	apiGroup := router.Group("/api")
	protected := apiGroup.Group("")
	if services.Auth != nil {
		authHandler := handlers.NewAuthHandler(services.Auth, services.OAuth)
		apiGroup.POST("/login", authHandler.Login)
		router.GET("/auth", authHandler.StartOAuth)
		router.GET("/oauth2callback", authHandler.OAuthCallback)

		protected.Use(services.Auth.Middleware())
	}

	if services.Files != nil {
		driveHandler := handlers.NewDriveHandler(services.Files)
		protected.GET("/files", driveHandler.ListFiles)
		protected.GET("/files/:fileId/path", driveHandler.GetPath)
		protected.GET("/download-folder/:folderId", driveHandler.DownloadFolder)
		apiGroup.GET("/download/:fileId", driveHandler.Download)
	}

	if services.Store != nil {
		selectionHandler := handlers.NewSelectionHandler(services.Store)
		selections := protected.Group("/selected-files")
		{
			selections.POST("", selectionHandler.Add)
			selections.GET("", selectionHandler.List)
			selections.DELETE("", selectionHandler.Remove)
		}

		if services.Files != nil && services.Analyzer != nil {
			analysisHandler := handlers.NewAnalysisHandler(services.Files, services.Analyzer, services.Store)
			protected.GET("/analyze/:fileId", analysisHandler.Analyze)
			protected.GET("/analysis-result/:fileId", analysisHandler.GetResult)
			apiGroup.GET("/analysis-results", analysisHandler.ListResults)
		}
	}

	if services.Batch != nil {
		protected.POST("/analyze-folder/:folderId", handlers.NewBatchHandler(services.Batch).AnalyzeFolder)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
