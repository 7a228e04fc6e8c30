package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local はローカルファイルシステム上のブロブストレージ実装です（開発環境用）。
// 保存先は <root>/<jobID>/<name> です。
type Local struct {
	root string
}

// NewLocal は保存先ディレクトリを作成して Local を返します。
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: root}, nil
}

// Save はブロブをジョブディレクトリ配下に保存します。
func (l *Local) Save(ctx context.Context, jobID, name string, r io.Reader) (int64, error) {
	if err := validateKey(jobID, name); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dir := filepath.Join(l.root, jobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("failed to create job dir: %w", err)
	}

	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, fmt.Errorf("failed to create blob: %w", err)
	}

	written, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("failed to write blob: %w", err)
	}
	return written, nil
}

// Open はブロブを読み取り用に開きます。
func (l *Local) Open(ctx context.Context, jobID, name string) (io.ReadCloser, int64, error) {
	if err := validateKey(jobID, name); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	path := filepath.Join(l.root, jobID, name)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("failed to open blob: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("failed to stat blob: %w", err)
	}
	return file, info.Size(), nil
}

// DeleteJob はジョブディレクトリを丸ごと削除します。
func (l *Local) DeleteJob(ctx context.Context, jobID string) error {
	if err := validateKey(jobID, "x"); err != nil {
		return err
	}
	err := os.RemoveAll(filepath.Join(l.root, jobID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove job dir: %w", err)
	}
	return nil
}
