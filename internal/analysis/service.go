// Package analysis は図面PDFの受付と非同期解析の実行を提供します。
package analysis

import (
	"errors"
	"time"

	"github.com/yourusername/tendon-scan/internal/config"
	"github.com/yourusername/tendon-scan/internal/detect"
	"github.com/yourusername/tendon-scan/internal/storage"
)

// Service は解析ジョブの準備と実行を担います。
type Service struct {
	cfg      *config.Config
	blobs    storage.Store
	analyzer detect.Analyzer
	now      func() time.Time
}

// NewService は Service を初期化します。
func NewService(cfg *config.Config, blobs storage.Store, analyzer detect.Analyzer) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if blobs == nil {
		return nil, errors.New("blobs is nil")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is nil")
	}
	return &Service{
		cfg:      cfg,
		blobs:    blobs,
		analyzer: analyzer,
		now:      time.Now,
	}, nil
}

// ProgressUpdate は実行中のジョブの進捗を表します。
type ProgressUpdate struct {
	Percent     int
	Message     string
	CurrentPage int
	TotalPages  int
}

// ProgressReporter は進捗更新用コールバックです。
type ProgressReporter func(update ProgressUpdate)

func reportProgress(cb ProgressReporter, update ProgressUpdate) {
	if cb == nil {
		return
	}
	if update.Percent < 0 {
		update.Percent = 0
	}
	if update.Percent > 100 {
		update.Percent = 100
	}
	cb(update)
}

// PageOutput は解析に成功した1ページ分の成果物を表します。
// Page は0始まりのページ番号です。
type PageOutput struct {
	Page     int
	Filename string
}

// Result は解析ジョブの最終成果を表します。
type Result struct {
	JobID      string
	TotalPages int
	Pages      []PageOutput
}
