package main

import (
	"context"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/tendon-scan/internal/analysis"
	"github.com/yourusername/tendon-scan/internal/config"
	"github.com/yourusername/tendon-scan/internal/detect"
	"github.com/yourusername/tendon-scan/internal/jobs"
	"github.com/yourusername/tendon-scan/internal/storage"
)

func setupStorage(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewS3(ctx, storage.S3Options{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
	default:
		return storage.NewLocal(cfg.DataDir)
	}
}

func setupAnalysis(cfg *config.Config, blobs storage.Store) (*analysis.Service, error) {
	var detector detect.Detector
	if cfg.DetectorURL != "" {
		detector = detect.NewHTTPDetector(cfg.DetectorURL, time.Duration(cfg.DetectorTimeout)*time.Second)
	} else {
		// 検出サービス未設定の場合はレンダリングのみ行う
		log.Printf("DETECTOR_URL not set, using passthrough detector")
		detector = detect.Passthrough{}
	}

	analyzer, err := detect.NewPipeline(cfg.GhostscriptPath, cfg.RenderDPI, detector)
	if err != nil {
		return nil, err
	}
	return analysis.NewService(cfg, blobs, analyzer)
}

func setupJobs(cfg *config.Config, service *analysis.Service) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	store := jobs.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)
	return jobs.NewManager(cfg, service, store, log.Default())
}
