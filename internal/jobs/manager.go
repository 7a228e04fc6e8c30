// Package jobs は非同期解析ジョブの投入と状態管理を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/yourusername/tendon-scan/internal/analysis"
	"github.com/yourusername/tendon-scan/internal/config"
)

const (
	taskTypeAnalyze = "analysis:process"
	queueAnalysis   = "analysis"
)

// recordStore はマネージャーが必要とするレコード操作です。*Store が実装します。
type recordStore interface {
	Get(ctx context.Context, jobID string) (*Record, error)
	Create(ctx context.Context, record *Record) error
	Delete(ctx context.Context, jobID string) error
	MarkProcessing(ctx context.Context, jobID, message string) error
	UpdateProgress(ctx context.Context, jobID string, update ProgressUpdate) error
	MarkCompleted(ctx context.Context, jobID string, totalPages int, results []PageResult, message string) error
	MarkFailed(ctx context.Context, jobID, message string) error
}

// taskEnqueuer はタスクのキュー投入操作です。*asynq.Client が実装します。
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	cfg      *config.Config
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	enqueuer taskEnqueuer
	store    recordStore
	service  *analysis.Service
	logger   *log.Logger
}

// TaskPayload は解析ジョブのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, service *analysis.Service, store *Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if service == nil {
		return nil, errors.New("service is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queueAnalysis: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:      cfg,
		client:   client,
		server:   server,
		mux:      mux,
		enqueuer: client,
		store:    store,
		service:  service,
		logger:   logger,
	}
	mux.HandleFunc(taskTypeAnalyze, manager.handleAnalyzeTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// Schedule はアップロード済みのジョブをキューに投入します。
// queued 状態のレコード作成とキュー投入をこの順で行い、投入前に
// ステータス照会が404になることを防ぎます。
func (m *Manager) Schedule(ctx context.Context, manifest *analysis.JobManifest) error {
	if manifest == nil {
		return fmt.Errorf("manifest is nil")
	}
	if manifest.JobID == "" {
		return fmt.Errorf("manifest.JobID is required")
	}

	record := &Record{
		JobID:        manifest.JobID,
		Message:      "ファイルを受け付けました。解析開始までお待ちください...",
		OriginalName: manifest.OriginalName,
	}
	if err := m.store.Create(ctx, record); err != nil {
		return err
	}

	body, err := json.Marshal(&TaskPayload{JobID: manifest.JobID})
	if err != nil {
		return err
	}

	// 失敗したジョブは再投入しない（呼び出し側が再アップロードする）
	task := asynq.NewTask(taskTypeAnalyze, body, asynq.Queue(queueAnalysis))
	if _, err := m.enqueuer.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		// 作成済みのレコードを残すと誰も進めないジョブが queued のまま見え続ける
		if delErr := m.store.Delete(ctx, manifest.JobID); delErr != nil && m.logger != nil {
			m.logger.Printf("failed to delete record after enqueue failure job=%s: %v", manifest.JobID, delErr)
		}
		return err
	}
	return nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleAnalyzeTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}

	if err := m.store.MarkProcessing(ctx, payload.JobID, "解析を開始しています..."); err != nil {
		return err
	}

	result, err := m.service.RunJob(ctx, payload.JobID, func(update analysis.ProgressUpdate) {
		if err := m.store.UpdateProgress(ctx, payload.JobID, ProgressUpdate{
			Percent:     update.Percent,
			Message:     update.Message,
			CurrentPage: update.CurrentPage,
			TotalPages:  update.TotalPages,
		}); err != nil && m.logger != nil {
			m.logger.Printf("failed to update progress job=%s: %v", payload.JobID, err)
		}
	})
	if err != nil {
		return m.failJob(ctx, payload.JobID, err)
	}
	return m.finishJob(ctx, payload.JobID, result)
}

func (m *Manager) finishJob(ctx context.Context, jobID string, result *analysis.Result) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	results := make([]PageResult, len(result.Pages))
	for i, page := range result.Pages {
		results[i] = PageResult{Page: page.Page, Filename: page.Filename}
	}

	message := "解析が完了しました。"
	if len(results) < result.TotalPages {
		message = fmt.Sprintf("解析が完了しました（%dページ中%dページ成功）。", result.TotalPages, len(results))
	}
	if err := m.store.MarkCompleted(ctx, jobID, result.TotalPages, results, message); err != nil {
		// 完了情報を保存できなくてもレコードを processing のまま放置しない
		return m.failJob(ctx, jobID, fmt.Errorf("完了情報の保存に失敗しました: %w", err))
	}
	return nil
}

// failJob はジョブを failed 状態へ遷移させます。エラー発生時にジョブを
// processing のまま放置しないことがここでの責務です。
func (m *Manager) failJob(ctx context.Context, jobID string, cause error) error {
	message := failureMessage(cause)

	if err := m.store.MarkFailed(ctx, jobID, message); err != nil {
		if errors.Is(err, ErrTerminal) {
			return nil
		}
		if m.logger != nil {
			m.logger.Printf("failed to mark job failed job=%s: %v", jobID, err)
		}
		return err
	}
	if m.logger != nil {
		m.logger.Printf("job failed job=%s: %v", jobID, cause)
	}
	// レコードは終端状態に達しているため、タスクとしては成功扱いにする
	return nil
}

func failureMessage(cause error) string {
	var apiErr *analysis.Error
	if errors.As(cause, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return "解析が中断されました。再度アップロードしてください。"
	}
	return fmt.Sprintf("解析中にエラーが発生しました: %v", cause)
}
