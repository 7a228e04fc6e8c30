package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal は状態が終端（これ以上遷移しない）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PageResult は解析に成功した1ページ分の成果物を表します。
type PageResult struct {
	Page     int    `json:"page"`
	Filename string `json:"filename"`
}

// ProgressUpdate は処理中の進捗更新を表します。
type ProgressUpdate struct {
	Percent     int    `json:"percent"`
	Message     string `json:"message"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
}

// Record はジョブの現在状態を表します。
// Results は完了時にのみ設定され、以降変更されません。
type Record struct {
	JobID        string       `json:"jobId"`
	Status       Status       `json:"status"`
	Progress     int          `json:"progress"`
	Message      string       `json:"message"`
	CurrentPage  int          `json:"currentPage"`
	TotalPages   int          `json:"totalPages"`
	Results      []PageResult `json:"results,omitempty"`
	OriginalName string       `json:"originalName,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}
