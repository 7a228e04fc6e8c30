// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxFileSize      int64 // アップロードPDFの最大サイズ（バイト）
	JobExpireMinutes int   // ジョブレコードと成果物の有効期限（分）

	// ジョブ/キュー設定
	QueueRedisURL     string // Asynq用Redis接続URL
	WorkerConcurrency int    // 同時に処理するジョブ数

	// ストレージ設定
	StorageBackend string // "local" または "s3"
	DataDir        string // ローカルストレージの保存先ディレクトリ
	S3Endpoint     string // S3互換ストレージのエンドポイント
	S3Bucket       string // S3バケット名
	S3AccessKey    string // S3アクセスキー
	S3SecretKey    string // S3シークレットキー
	S3UseSSL       bool   // S3接続にTLSを使用するか

	// 解析処理設定
	GhostscriptPath string // Ghostscript実行ファイルのパス
	RenderDPI       int    // ページ画像レンダリングのDPI
	DetectorURL     string // テンドン検出サービスのエンドポイント（空の場合はパススルー）
	DetectorTimeout int    // 検出サービス呼び出しのタイムアウト（秒）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// ファイル制限
		MaxFileSize:      getEnvAsInt64("MAX_FILE_SIZE", 50*1024*1024), // 50MiB
		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", 60),

		// ジョブ/キュー設定
		QueueRedisURL:     getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),

		// ストレージ設定
		StorageBackend: getEnv("STORAGE_BACKEND", "local"),
		DataDir:        getEnv("DATA_DIR", filepath.Join(os.TempDir(), "tendon-scan")),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3UseSSL:       getEnvAsBool("S3_USE_SSL", false),

		// 解析処理設定
		GhostscriptPath: getEnv("GHOSTSCRIPT_PATH", "gs"),
		RenderDPI:       getEnvAsInt("PDF_RENDER_DPI", 200),
		DetectorURL:     getEnv("DETECTOR_URL", ""),
		DetectorTimeout: getEnvAsInt("DETECTOR_TIMEOUT", 120),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}

	switch c.StorageBackend {
	case "local":
		// DataDir は起動時に作成される
	case "s3":
		if c.S3Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT is required when STORAGE_BACKEND=s3")
		}
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %s", c.StorageBackend)
	}

	// ローカル開発では検出サービスは任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.GhostscriptPath == "" {
			return fmt.Errorf("GHOSTSCRIPT_PATH is required in release mode")
		}
		if c.DetectorURL == "" {
			return fmt.Errorf("DETECTOR_URL is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
