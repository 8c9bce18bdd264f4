package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"scrollpress/admin"
	"scrollpress/blog"
	"scrollpress/cache"
	"scrollpress/common"
	"scrollpress/database"
	"scrollpress/site"
	"scrollpress/store"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger := common.InitLogger(cfg.Server.Mode, cfg.Log)
	defer logger.Sync()

	gin.SetMode(cfg.Server.Mode)

	db, err := common.ConnectDb(cfg.Database)
	if err != nil {
		common.Errorw("database_connect_failed", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(db); err != nil {
		common.Errorw("migrations_failed", "error", err)
		os.Exit(1)
	}

	renderCache, err := cache.New(cfg.Cache)
	if err != nil {
		common.Errorw("render_cache_init_failed", "error", err)
		os.Exit(1)
	}
	switch rc := renderCache.(type) {
	case *cache.FileStore:
		if removed, err := rc.Prune(); err != nil {
			common.Warnw("render_cache_prune_failed", "error", err)
		} else {
			common.Infow("render_cache_pruned", "removed", removed)
		}
	case *cache.RedisStore:
		defer rc.Close()
		if err := rc.Ping(context.Background()); err != nil {
			common.Warnw("render_cache_redis_unreachable", "error", err)
		}
	}

	posts := store.New(db)

	router := gin.New()
	router.Use(gin.Recovery(), common.RequestIDMiddleware(), common.AccessLogMiddleware(logger))

	router.Static(cfg.Upload.URLPrefix, cfg.Upload.Dir)

	router.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := posts.DB().DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			common.RespondError(c, common.Internal("database unavailable", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	blogModule := blog.NewBlogModule(posts, blog.NewRenderer(renderCache))
	blogModule.RegisterRoutes(router)

	adminModule := admin.NewAdminModule(posts, cfg.Upload)
	adminModule.RegisterRoutes(router)

	siteModule := site.NewSiteModule(posts, cfg.Server.PublicURL)
	siteModule.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		common.Infow("server_starting", "addr", srv.Addr, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Errorw("server_failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		common.Errorw("server_shutdown_failed", "error", err)
	}
	common.Infow("server_stopped")
}
