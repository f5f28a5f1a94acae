package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/drive-api/internal/handler"
	"github.com/noah-isme/drive-api/internal/middleware"
	"github.com/noah-isme/drive-api/internal/repository"
	"github.com/noah-isme/drive-api/internal/service"
	"github.com/noah-isme/drive-api/pkg/config"
	"github.com/noah-isme/drive-api/pkg/database"
	"github.com/noah-isme/drive-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/drive-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/drive-api/pkg/middleware/requestid"
	"github.com/noah-isme/drive-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	backend, err := storage.New(cfg.Storage)
	if err != nil {
		logr.Sugar().Fatalw("failed to init storage backend", "error", err)
	}
	backend = storage.Instrument(backend, metricsSvc)

	userRepo := repository.NewUserRepository(db)
	folderRepo := repository.NewFolderRepository(db)
	fileRepo := repository.NewFileRepository(db)
	permRepo := repository.NewPermissionRepository(db)
	shareRepo := repository.NewShareRepository(db)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	permSvc := service.NewPermissionService(folderRepo, fileRepo, permRepo, logr)
	folderSvc := service.NewFolderService(folderRepo, fileRepo, permRepo, userRepo, permSvc, backend, nil, logr)
	fileSvc := service.NewFileService(fileRepo, folderSvc, permRepo, userRepo, permSvc, backend, nil, logr)
	shareSvc := service.NewShareService(folderRepo, fileRepo, userRepo, shareRepo, permSvc, metricsSvc, nil, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	folderHandler := handler.NewFolderHandler(folderSvc)
	fileHandler := handler.NewFileHandler(fileSvc)
	shareHandler := handler.NewShareHandler(shareSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if metricsSvc != nil {
		r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	folders := protected.Group("/folders")
	folders.POST("", folderHandler.Create)
	folders.GET("", folderHandler.List)
	folders.GET("/:id", folderHandler.Get)
	folders.DELETE("/:id", folderHandler.Delete)
	folders.GET("/:id/archive", folderHandler.Archive)
	folders.POST("/:id/share", shareHandler.ShareFolder)

	files := protected.Group("/files")
	files.POST("", fileHandler.Upload)
	files.GET("/:id/download", fileHandler.Download)
	files.GET("/:id/url", fileHandler.DownloadURL)
	files.DELETE("/:id", fileHandler.Delete)
	files.POST("/:id/share", shareHandler.ShareFile)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "storage", cfg.Storage.Driver)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
