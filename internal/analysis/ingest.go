package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// sniffLen はMIME判定のために読み込む先頭バイト数です。
const sniffLen = 3072

// SubmitMultipart はアップロードされたPDFを検証して保存し、queued ジョブの
// マニフェストを返します。処理そのものはここでは開始しません。
// ファイル種別は拡張子とファイルシグネチャで判定し、クライアント申告の
// Content-Type は参照しません。検証に失敗した場合、ジョブは一切作成されません。
func (s *Service) SubmitMultipart(ctx context.Context, file *multipart.FileHeader) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, newError("INVALID_INPUT", "PDFファイルを選択してください。", nil)
	}
	if file.Filename == "" {
		return nil, newError("INVALID_INPUT", "ファイル名が指定されていません。", nil)
	}

	if file.Size > s.cfg.MaxFileSize {
		return nil, newError("FILE_TOO_LARGE",
			fmt.Sprintf("ファイルサイズが上限（%dMB）を超えています。", s.cfg.MaxFileSize/(1024*1024)), nil)
	}

	// 拡張子とファイルシグネチャの両方を検証する
	// クライアント申告のContent-Typeだけでは偽装可能なため信用しない
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		return nil, newError("INVALID_FILE_TYPE", "PDFファイルのみアップロードできます。", nil)
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	if !detected.Is("application/pdf") {
		return nil, newError("INVALID_FILE_TYPE",
			fmt.Sprintf("PDFファイルのみアップロードできます（判定: %s）。", detected.String()), nil)
	}

	jobID := uuid.NewString()

	size, err := s.blobs.Save(ctx, jobID, sourceFilename, io.MultiReader(bytes.NewReader(head), src))
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	manifest := &JobManifest{
		JobID:        jobID,
		OriginalName: filepath.Base(file.Filename),
		Size:         size,
		ContentType:  detected.String(),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.writeManifest(ctx, manifest); err != nil {
		_ = s.blobs.DeleteJob(ctx, jobID)
		return nil, fmt.Errorf("ジョブマニフェストの保存に失敗しました: %w", err)
	}

	return manifest, nil
}

// DiscardJob はジョブのブロブをすべて破棄します。
// キュー投入に失敗した場合の後始末に使用します。
func (s *Service) DiscardJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	return s.blobs.DeleteJob(ctx, jobID)
}
