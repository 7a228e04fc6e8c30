package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

const defaultCleanupMin = 60

// RunJob はジョブIDに対応するPDF解析を実行します。
// ページ単位の失敗はスキップして継続し、全ページが失敗した場合のみ
// ジョブ全体を失敗として扱います。
func (s *Service) RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}

	manifest, err := s.loadManifest(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ジョブ情報の読み込みに失敗しました: %w", err)
	}

	workDir, err := os.MkdirTemp("", "tendon-scan-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	srcPath := filepath.Join(workDir, sourceFilename)
	if err := s.fetchSource(ctx, jobID, srcPath); err != nil {
		return nil, err
	}

	reportProgress(reporter, ProgressUpdate{
		Percent: 0,
		Message: "PDFをページ画像に変換しています...",
	})

	totalPages, err := s.analyzer.PageCount(ctx, srcPath)
	if err != nil {
		return nil, newError("UNSUPPORTED_PDF",
			fmt.Sprintf("PDFを開けませんでした（%s）。ファイルが破損していないか確認してください。", manifest.OriginalName), err)
	}
	if totalPages <= 0 {
		return nil, newError("UNSUPPORTED_PDF", "PDFにページが含まれていません。", nil)
	}

	pages := make([]PageOutput, 0, totalPages)

	for i := 0; i < totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reportProgress(reporter, ProgressUpdate{
			Percent:     (i * 100) / totalPages,
			Message:     fmt.Sprintf("%dページ中%dページ目を解析しています...", totalPages, i+1),
			CurrentPage: i + 1,
			TotalPages:  totalPages,
		})

		annotated, err := s.analyzer.AnalyzePage(ctx, srcPath, i+1)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// ページ単位の失敗は致命的ではない
			log.Printf("page analysis failed job=%s page=%d: %v", jobID, i+1, err)
			continue
		}

		name := fmt.Sprintf("page_%d.png", i)
		if _, err := s.blobs.Save(ctx, jobID, name, bytes.NewReader(annotated)); err != nil {
			log.Printf("page output store failed job=%s page=%d: %v", jobID, i+1, err)
			continue
		}

		pages = append(pages, PageOutput{Page: i, Filename: name})
	}

	if len(pages) == 0 {
		return nil, newError("ANALYSIS_FAILED",
			fmt.Sprintf("すべてのページ（%dページ）の解析に失敗しました。", totalPages), nil)
	}

	s.scheduleCleanup(jobID)

	return &Result{
		JobID:      jobID,
		TotalPages: totalPages,
		Pages:      pages,
	}, nil
}

func (s *Service) fetchSource(ctx context.Context, jobID, destPath string) error {
	rc, _, err := s.blobs.Open(ctx, jobID, sourceFilename)
	if err != nil {
		return fmt.Errorf("アップロードされたPDFの取得に失敗しました: %w", err)
	}
	defer rc.Close()

	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to create source file: %w", err)
	}

	_, err = io.Copy(dest, rc)
	if closeErr := dest.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to copy source file: %w", err)
	}
	return nil
}

// scheduleCleanup はジョブの有効期限経過後に成果物ブロブを削除します。
// レコード自体は Redis の TTL で期限切れになります。
func (s *Service) scheduleCleanup(jobID string) {
	expireMinutes := s.cfg.JobExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = defaultCleanupMin
	}
	blobs := s.blobs
	time.AfterFunc(time.Duration(expireMinutes)*time.Minute, func() {
		if err := blobs.DeleteJob(context.Background(), jobID); err != nil {
			log.Printf("job blob cleanup failed job=%s: %v", jobID, err)
		}
	})
}
