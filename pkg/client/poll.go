package client

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrJobNotFound はポーリング対象のジョブが存在しない場合に返されます。
var ErrJobNotFound = errors.New("job not found")

// Wait はジョブが終端状態（completed / failed）になるまで一定間隔で
// ステータスを照会します。一時的な通信エラーではポーリングを継続し、
// ジョブが存在しない場合と ctx のキャンセル時のみ打ち切ります。
// ctx のキャンセル後は一切リクエストを発行しません。
//
// onUpdate が非nilの場合、照会のたびに呼び出されます。一時的な照会失敗の
// ときは nil が渡されます（ジョブの失敗とは区別されます）。
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration, onUpdate func(*StatusResponse)) (*StatusResponse, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, jobID)
		switch {
		case err == nil:
			if onUpdate != nil {
				onUpdate(status)
			}
			if status.Terminal() {
				return status, nil
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case isNotFound(err):
			return nil, ErrJobNotFound
		default:
			// 一時的なエラーでは停止しない
			if onUpdate != nil {
				onUpdate(nil)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
