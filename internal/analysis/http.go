package analysis

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SubmitService はアップロードの受付を提供します。
type SubmitService interface {
	SubmitMultipart(ctx context.Context, file *multipart.FileHeader) (*JobManifest, error)
	DiscardJob(ctx context.Context, jobID string) error
}

// JobScheduler はジョブを非同期キューに投入するためのインターフェースです。
type JobScheduler interface {
	Schedule(ctx context.Context, manifest *JobManifest) error
}

// UploadHandler は POST /api/upload のハンドラーを返します。
// 検証と保存が成功した時点で 202 を返し、処理の完了は待ちません。
func UploadHandler(svc SubmitService, scheduler JobScheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data の file フィールドでPDFを送信してください。",
			})
			return
		}

		manifest, err := svc.SubmitMultipart(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if err := scheduler.Schedule(c.Request.Context(), manifest); err != nil {
			if cleanupErr := svc.DiscardJob(c.Request.Context(), manifest.JobID); cleanupErr != nil {
				err = fmt.Errorf("%w (cleanup failed: %v)", err, cleanupErr)
			}
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"jobId":   manifest.JobID,
			"message": "ファイルを受け付けました。解析を開始します。",
		})
	}
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		if apiErr.Code == "FILE_TOO_LARGE" {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
