// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/tendon-scan/internal/analysis"
	"github.com/yourusername/tendon-scan/internal/config"
	"github.com/yourusername/tendon-scan/internal/jobs"
	"github.com/yourusername/tendon-scan/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	router.MaxMultipartMemory = cfg.MaxFileSize

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	// ストレージと解析サービスの組み立て
	blobs, err := setupStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to set up storage: %v", err)
	}

	service, err := setupAnalysis(cfg, blobs)
	if err != nil {
		log.Fatalf("Failed to set up analysis service: %v", err)
	}

	// ジョブマネージャーの組み立てとワーカーの起動
	manager, err := setupJobs(cfg, service)
	if err != nil {
		log.Fatalf("Failed to set up jobs: %v", err)
	}
	manager.StartWorkers()

	// ルーティングの設定
	setupRoutes(router, service, manager, blobs)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s, storage: %s)", addr, cfg.GinMode, cfg.StorageBackend)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "tendon-scan-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, service *analysis.Service, manager *jobs.Manager, blobs storage.Store) {
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		api.POST("/upload", analysis.UploadHandler(service, manager))
		api.GET("/status/:jobId", jobs.StatusHandler(manager))
		api.GET("/results/:jobId", jobs.ResultsHandler(manager))
		api.GET("/download/:jobId/:filename", jobs.DownloadHandler(manager, blobs))
	}
}
