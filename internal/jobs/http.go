package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/tendon-scan/internal/storage"
)

// RecordSource はジョブレコードの読み取りを提供します。
// ここから先は読み取り専用で、レコードを変更するハンドラーはありません。
type RecordSource interface {
	GetRecord(ctx context.Context, jobID string) (*Record, error)
}

// StatusHandler は GET /api/status/:jobId のハンドラーを返します。
func StatusHandler(src RecordSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := lookupRecord(c, src)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"jobId":       record.JobID,
			"status":      record.Status,
			"progress":    record.Progress,
			"message":     record.Message,
			"currentPage": record.CurrentPage,
			"totalPages":  record.TotalPages,
		})
	}
}

// ResultsHandler は GET /api/results/:jobId のハンドラーを返します。
// 完了していないジョブに対しては 409 を返します。
func ResultsHandler(src RecordSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := lookupRecord(c, src)
		if !ok {
			return
		}

		if record.Status != StatusCompleted {
			c.JSON(http.StatusConflict, gin.H{
				"code":    "JOB_NOT_READY",
				"message": fmt.Sprintf("ジョブはまだ完了していません（現在: %s）。", record.Status),
			})
			return
		}

		results := record.Results
		if results == nil {
			results = []PageResult{}
		}
		c.JSON(http.StatusOK, gin.H{
			"jobId":      record.JobID,
			"totalPages": record.TotalPages,
			"results":    results,
		})
	}
}

// DownloadHandler は GET /api/download/:jobId/:filename のハンドラーを返します。
// ファイル名が当該ジョブの成果物一覧に含まれる場合のみブロブを返します。
// これにより別ジョブの成果物やパストラバーサルによる取得を防ぎます。
func DownloadHandler(src RecordSource, blobs storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := lookupRecord(c, src)
		if !ok {
			return
		}

		filename := c.Param("filename")
		if !resultContains(record.Results, filename) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "FILE_NOT_FOUND",
				"message": "指定されたファイルはこのジョブの成果物に含まれていません。",
			})
			return
		}

		rc, size, err := blobs.Open(c.Request.Context(), record.JobID, filename)
		if err != nil {
			if err == storage.ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "FILE_NOT_FOUND",
					"message": "成果物ファイルが見つかりませんでした。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "成果物の取得に失敗しました。",
			})
			return
		}
		defer rc.Close()

		encodedName := url.PathEscape(filename)
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"; filename*=UTF-8''%s", filename, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", record.JobID)
		c.DataFromReader(http.StatusOK, size, "image/png", rc, nil)
	}
}

func lookupRecord(c *gin.Context, src RecordSource) (*Record, bool) {
	jobID := c.Param("jobId")
	if strings.TrimSpace(jobID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "jobId を指定してください。",
		})
		return nil, false
	}

	record, err := src.GetRecord(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "ジョブ情報の取得に失敗しました。",
		})
		return nil, false
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "JOB_NOT_FOUND",
			"message": "指定されたジョブは存在しません。",
		})
		return nil, false
	}
	return record, true
}

func resultContains(results []PageResult, filename string) bool {
	if filename == "" {
		return false
	}
	for _, r := range results {
		if r.Filename == filename {
			return true
		}
	}
	return false
}
