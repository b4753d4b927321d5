package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joyzh1029/ALG/config"
	"github.com/joyzh1029/ALG/handler"
	"github.com/joyzh1029/ALG/middleware"
	"github.com/joyzh1029/ALG/service"
	"github.com/joyzh1029/ALG/utils"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.New()
	}

	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting helmet detection server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	redisService := service.NewRedisService(&cfg.Redis)
	ctx := context.Background()
	if err := redisService.Ping(ctx); err != nil {
		utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
	} else {
		utils.Logger.Info("redis connected successfully")
	}
	defer redisService.Close()

	primary, err := service.NewYOLODetector(cfg.Detector.Primary)
	if err != nil {
		utils.Logger.Fatal("failed to load primary detector", zap.Error(err))
	}
	defer primary.Close()

	helmet, err := service.NewYOLODetector(cfg.Detector.Helmet)
	if err != nil {
		utils.Logger.Fatal("failed to load helmet detector", zap.Error(err))
	}
	defer helmet.Close()

	pipeline, err := service.NewPipeline(cfg, primary, helmet)
	if err != nil {
		utils.Logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	detectHandler := handler.NewDetectHandler(cfg, redisService, pipeline)
	streamHandler := handler.NewStreamHandler(pipeline)

	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "Helmet Detection API is running"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"version": Version,
		})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/detect", detectHandler.Detect)
		api.GET("/frame/:md5", detectHandler.GetByMD5)
	}
	r.GET("/ws", streamHandler.Stream)

	utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := r.Run(cfg.Server.Port); err != nil {
		utils.Logger.Fatal("failed to start server", zap.Error(err))
	}
}
