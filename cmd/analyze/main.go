// Package main はPDFをアップロードして解析完了まで待機するCLIです。
// サーバーの非同期APIをコマンドラインから利用するための消費者実装で、
// ステータスのポーリングと成果物のダウンロードを行います。
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yourusername/tendon-scan/pkg/client"
)

func main() {
	var (
		server   = flag.String("server", "http://localhost:8080", "APIサーバーのベースURL")
		file     = flag.String("file", "", "アップロードするPDFファイル")
		outDir   = flag.String("out", ".", "成果物の保存先ディレクトリ")
		interval = flag.Duration("interval", client.DefaultPollInterval, "ステータス照会の間隔")
	)
	flag.Parse()

	if *file == "" {
		log.Fatal("usage: analyze -file <drawing.pdf> [-server URL] [-out DIR] [-interval 2s]")
	}

	// Ctrl-C でポーリングを完全に停止する
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(*server)

	jobID, err := api.Submit(ctx, *file)
	if err != nil {
		log.Fatalf("upload failed: %v", err)
	}
	log.Printf("job accepted: %s", jobID)

	status, err := api.Wait(ctx, jobID, *interval, func(s *client.StatusResponse) {
		if s == nil {
			log.Printf("status check failed, retrying...")
			return
		}
		log.Printf("[%s] %d%% %s", s.Status, s.Progress, s.Message)
	})
	if err != nil {
		log.Fatalf("polling aborted: %v", err)
	}

	if status.Status == client.StatusFailed {
		log.Fatalf("job failed: %s", status.Message)
	}

	results, err := api.Results(ctx, jobID)
	if err != nil {
		log.Fatalf("fetch results failed: %v", err)
	}
	log.Printf("job completed: %d/%d pages analyzed", len(results.Results), results.TotalPages)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create output dir failed: %v", err)
	}

	for _, page := range results.Results {
		dest := filepath.Join(*outDir, page.Filename)
		if err := downloadTo(ctx, api, jobID, page.Filename, dest); err != nil {
			log.Printf("download failed page=%d: %v", page.Page, err)
			continue
		}
		log.Printf("saved %s", dest)
	}
}

func downloadTo(ctx context.Context, api *client.Client, jobID, filename, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}

	err = api.Download(ctx, jobID, filename, out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dest)
		return err
	}
	return nil
}
