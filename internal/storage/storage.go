// Package storage はジョブ単位のブロブストレージ抽象化レイヤーを提供します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound は指定されたブロブが存在しない場合に返されます。
var ErrNotFound = errors.New("blob not found")

// Store はジョブIDとファイル名で識別されるブロブの保存先です。
// 入力PDFと生成されたページ画像の両方がここに保存されます。
type Store interface {
	// Save はブロブを保存し、書き込んだバイト数を返します。
	Save(ctx context.Context, jobID, name string, r io.Reader) (int64, error)
	// Open はブロブの読み取りストリームとサイズを返します。
	// 存在しない場合は ErrNotFound を返します。
	Open(ctx context.Context, jobID, name string) (io.ReadCloser, int64, error)
	// DeleteJob はジョブに属するすべてのブロブを削除します。
	DeleteJob(ctx context.Context, jobID string) error
}

// validateKey はジョブIDとファイル名がキーとして安全であることを確認します。
// パス区切り文字や ".." を含む名前はパストラバーサルの可能性があるため拒否します。
func validateKey(jobID, name string) error {
	for _, part := range []string{jobID, name} {
		if part == "" {
			return fmt.Errorf("empty key component")
		}
		if strings.ContainsAny(part, "/\\") || part == "." || part == ".." || strings.Contains(part, "..") {
			return fmt.Errorf("invalid key component: %q", part)
		}
	}
	return nil
}
