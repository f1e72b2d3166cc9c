package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rorocorp/uns/auth"
	"github.com/rorocorp/uns/config"
	"github.com/rorocorp/uns/handlers"
	"github.com/rorocorp/uns/system"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		log.Fatal("derive store config", zap.Error(err))
	}

	ctx := context.Background()
	sys, err := system.New(ctx, system.Config{
		Store:            storeCfg,
		NNTP:             cfg.NNTPConfig(),
		CacheDir:         cfg.CacheDir,
		SegmentSize:      cfg.SegmentSize,
		UploadWorkers:    cfg.UploadWorkers,
		DownloadWorkers:  cfg.DownloadWorkers,
		RedundancyCopies: cfg.RedundancyCopies,
		UploadBPS:        cfg.UploadBPS,
		From:             cfg.NNTPFrom,
		Newsgroups:       []string{cfg.NNTPGroup},
	}, log)
	if err != nil {
		log.Fatal("start system", zap.Error(err))
	}
	defer sys.Close()

	authSvc := auth.New(sys.Store(), sys, []byte(cfg.LinkSecret), cfg.CookieDomain, log)
	h := handlers.New(sys, authSvc, log)

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-CSRF-TOKEN", "Accept", "X-Requested-With", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	apiGroup := router.Group("/api")
	{
		authGroup := apiGroup.Group("/auth")
		{
			authGroup.POST("/register", authSvc.RegisterHandler)
			authGroup.POST("/challenge", authSvc.ChallengeHandler)
			authGroup.POST("/login", authSvc.LoginHandler)
			authGroup.GET("/checksession", authSvc.SessionCheckHandler)
		}

		foldersGroup := apiGroup.Group("/folders")
		foldersGroup.Use(authSvc.Authorize())
		{
			foldersGroup.POST("", h.AddFolderHandler)
			foldersGroup.GET("", h.ListFoldersHandler)
			foldersGroup.GET("/:folder_unique_id", h.GetFolderHandler)
			foldersGroup.POST("/:folder_unique_id/index", h.IndexFolderHandler)
			foldersGroup.POST("/:folder_unique_id/segment", h.SegmentFolderHandler)
			foldersGroup.POST("/:folder_unique_id/upload", h.UploadFolderHandler)
			foldersGroup.POST("/:folder_unique_id/publish", h.PublishFolderHandler)
			foldersGroup.POST("/:folder_unique_id/resync", h.ResyncFolderHandler)
			foldersGroup.DELETE("/:folder_unique_id", h.DeleteFolderHandler)
		}

		sharesGroup := apiGroup.Group("/shares")
		{
			sharesGroup.GET("/download", h.DownloadShareHandler)
			sharesGroup.GET("/genlink", authSvc.Authorize(), authSvc.GenerateDownloadLink)
		}
	}

	apiGroup.OPTIONS("/*path", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	addr := "0.0.0.0:" + cfg.HTTPPort
	if err := router.Run(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
