package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tradelens/backend/internal/controllers"
	"github.com/tradelens/backend/internal/middleware"
	"github.com/tradelens/backend/internal/store"
	"github.com/tradelens/backend/internal/storage"
)

// Options carries the optional collaborators of the store server.
type Options struct {
	Backuper  store.Backuper
	Uploader  storage.Uploader
	BackupDir string
}

// NewRouter builds a gin engine with the standard middleware and all routes.
func NewRouter(s store.Store, opts Options) *gin.Engine {
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CustomLoggerMiddleware())
	r.Use(gin.Recovery())

	SetupRoutes(r, s, opts)
	return r
}

// SetupRoutes configures all application routes
func SetupRoutes(r *gin.Engine, s store.Store, opts Options) {
	fileController := controllers.NewFileController(s)
	analysisController := controllers.NewAnalysisController(s)
	chatController := controllers.NewChatController(s)
	systemController := controllers.NewSystemController(s, opts.Backuper, opts.Uploader, opts.BackupDir)

	r.GET("/health", systemController.Health)
	r.GET("/stats", systemController.Stats)
	r.POST("/backup", systemController.Backup)

	files := r.Group("/files")
	{
		files.GET("", fileController.ListFiles)
		files.POST("", fileController.CreateFile)
		files.GET("/:id", fileController.GetFile)
		files.DELETE("/:id", fileController.DeleteFile)
		files.PUT("/:id/access", fileController.TouchFile)
	}

	analysis := r.Group("/analysis")
	{
		analysis.GET("", analysisController.ListAnalyses)
		analysis.POST("", analysisController.CreateAnalysis)
		analysis.GET("/:fileId", analysisController.GetAnalysis)
		analysis.DELETE("/:fileId", analysisController.DeleteAnalyses)
	}

	chat := r.Group("/chat")
	{
		chat.GET("", chatController.ListChats)
		chat.GET("/:fileId", chatController.GetChat)
		chat.POST("/:fileId", chatController.ReplaceChat)
		chat.DELETE("/:fileId", chatController.DeleteChat)
	}
}
