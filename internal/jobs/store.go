package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "job:"
)

// ErrTerminal は終端状態のレコードを変更しようとした場合に返されます。
var ErrTerminal = errors.New("job is in a terminal state")

// Store はジョブ状態を Redis に保存します。
// TTL によりレコードは有効期限後に自動削除されます。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はジョブ情報を取得します。存在しない場合は (nil, nil) を返します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete はジョブレコードを削除します。存在しない場合もエラーにしません。
// キュー投入に失敗したジョブの後始末に使用します。
func (s *Store) Delete(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	return s.rdb.Del(ctx, jobKey(jobID)).Err()
}

// Create は queued 状態の新規レコードを保存します。
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("record.JobID is required")
	}
	now := time.Now().UTC()
	record.Status = StatusQueued
	record.Progress = 0
	record.CreatedAt = now
	record.UpdatedAt = now
	if s.ttl > 0 {
		record.ExpiresAt = now.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err()
}

// MarkProcessing はジョブを processing 状態へ遷移させます。
func (s *Store) MarkProcessing(ctx context.Context, jobID, message string) error {
	return s.updatePartial(ctx, jobID, func(record *Record) {
		record.Status = StatusProcessing
		record.Progress = 0
		record.Message = message
	})
}

// UpdateProgress は処理中の進捗を更新します。
// 進捗率は後退しないようクランプされます。
func (s *Store) UpdateProgress(ctx context.Context, jobID string, update ProgressUpdate) error {
	return s.updatePartial(ctx, jobID, func(record *Record) {
		applyProgress(record, update)
	})
}

// applyProgress は進捗更新をレコードに反映します。
// 進捗率と処理中ページ番号は単調増加を保証するため後退させません。
func applyProgress(record *Record, update ProgressUpdate) {
	if update.Percent > record.Progress {
		record.Progress = update.Percent
	}
	if update.CurrentPage > record.CurrentPage {
		record.CurrentPage = update.CurrentPage
	}
	if update.TotalPages > 0 {
		record.TotalPages = update.TotalPages
	}
	record.Message = update.Message
}

// MarkCompleted はジョブ完了時の最終情報を保存します。
// Results はこの時点で確定し、以降は変更されません。
func (s *Store) MarkCompleted(ctx context.Context, jobID string, totalPages int, results []PageResult, message string) error {
	return s.updatePartial(ctx, jobID, func(record *Record) {
		record.Status = StatusCompleted
		record.Progress = 100
		record.Message = message
		record.TotalPages = totalPages
		record.CurrentPage = totalPages
		record.Results = results
	})
}

// MarkFailed はジョブ失敗時の情報を保存します。
func (s *Store) MarkFailed(ctx context.Context, jobID, message string) error {
	return s.updatePartial(ctx, jobID, func(record *Record) {
		record.Status = StatusFailed
		record.Message = message
	})
}

func (s *Store) updatePartial(ctx context.Context, jobID string, mutate func(*Record)) error {
	key := jobKey(jobID)
	for {
		tx := s.rdb.TxPipeline()
		data, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return fmt.Errorf("job not found: %s", jobID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if err := checkMutable(&record); err != nil {
			return err
		}
		mutate(&record)
		record.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		tx.Set(ctx, key, payload, s.ttl)
		_, err = tx.Exec(ctx)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}

// checkMutable はレコードが更新可能かを確認します。
// 終端状態のレコードは不変です。
func checkMutable(record *Record) error {
	if record.Status.Terminal() {
		return ErrTerminal
	}
	return nil
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
