package detect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// Analyzer はPDFのページ数取得とページ単位の解析を提供します。
// 解析本体（OCR・検出）は Detector として注入され、本実装はページの
// 切り出しと画像化のみを行います。
type Analyzer interface {
	PageCount(ctx context.Context, pdfPath string) (int, error)
	// AnalyzePage は1始まりのページ番号を受け取り、注釈付きPNGを返します。
	AnalyzePage(ctx context.Context, pdfPath string, page int) ([]byte, error)
}

// Pipeline は pdfcpu によるページ切り出しと Ghostscript による
// レンダリングを組み合わせた Analyzer 実装です。
type Pipeline struct {
	gsPath   string
	dpi      int
	detector Detector
}

// NewPipeline は Pipeline を作成します。
func NewPipeline(gsPath string, dpi int, detector Detector) (*Pipeline, error) {
	if gsPath == "" {
		return nil, fmt.Errorf("ghostscript path is required")
	}
	if dpi <= 0 {
		return nil, fmt.Errorf("dpi must be positive")
	}
	if detector == nil {
		return nil, fmt.Errorf("detector is nil")
	}
	return &Pipeline{gsPath: gsPath, dpi: dpi, detector: detector}, nil
}

// PageCount はPDFの総ページ数を返します。
func (p *Pipeline) PageCount(ctx context.Context, pdfPath string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := pdfapi.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return count, nil
}

// AnalyzePage は指定ページを単一ページPDFとして切り出し、PNGに
// レンダリングしたうえで Detector に渡します。
func (p *Pipeline) AnalyzePage(ctx context.Context, pdfPath string, page int) ([]byte, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1 (got %d)", page)
	}

	tmpDir, err := os.MkdirTemp("", "tendon-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create page workspace: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	partPath := filepath.Join(tmpDir, "part.pdf")
	if err := pdfapi.CollectFile(pdfPath, partPath, []string{strconv.Itoa(page)}, nil); err != nil {
		return nil, fmt.Errorf("failed to extract page %d: %w", page, err)
	}

	pngPath := filepath.Join(tmpDir, "page.png")
	if err := p.renderPage(ctx, partPath, pngPath); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(pngPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered page: %w", err)
	}

	return p.detector.Annotate(ctx, raw)
}
