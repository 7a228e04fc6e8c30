// Package detect は図面ページ画像に対するテンドン検出能力を提供します。
// 検出モデル自体は外部サービスとして扱い、本パッケージはその呼び出しと
// ページ画像の生成のみを担います。
package detect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
)

// Detector は1ページ分の画像を受け取り、注釈付き画像を返す能力です。
type Detector interface {
	Annotate(ctx context.Context, pageImage []byte) ([]byte, error)
}

// HTTPDetector は外部検出サービスへページ画像を送信する Detector 実装です。
type HTTPDetector struct {
	url    string
	client *http.Client
}

// NewHTTPDetector は HTTPDetector を作成します。
func NewHTTPDetector(url string, timeout time.Duration) *HTTPDetector {
	return &HTTPDetector{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Annotate はページ画像をPOSTし、注釈付きPNGを受け取ります。
func (d *HTTPDetector) Annotate(ctx context.Context, pageImage []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(pageImage))
	if err != nil {
		return nil, fmt.Errorf("failed to build detector request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	annotated, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read detector response: %w", err)
	}
	if len(annotated) == 0 {
		return nil, fmt.Errorf("detector returned empty response")
	}
	return annotated, nil
}

// Passthrough は検出サービス未設定時の開発用 Detector 実装です。
// ページ画像をデコードし、正規化したPNGとして再エンコードして返します。
type Passthrough struct{}

// Annotate は入力画像をそのままPNGとして返します。
func (Passthrough) Annotate(ctx context.Context, pageImage []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(pageImage))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page image: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode page image: %w", err)
	}
	return buf.Bytes(), nil
}
