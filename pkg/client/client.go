// Package client は tendon-scan API のクライアントとポーリング処理を提供します。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultPollInterval はステータス照会のデフォルト間隔です。
const DefaultPollInterval = 2 * time.Second

// ジョブステータス値。サーバー側の定義と一致します。
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Client は API サーバーへのアクセスを提供します。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New は Client を作成します。
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError はサーバーが返したエラー応答を表します。
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// StatusResponse は GET /api/status/:jobId の応答です。
type StatusResponse struct {
	JobID       string `json:"jobId"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
}

// Terminal はジョブが終端状態に達したかどうかを返します。
func (s *StatusResponse) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// PageResult は解析に成功した1ページ分の成果物です。
type PageResult struct {
	Page     int    `json:"page"`
	Filename string `json:"filename"`
}

// ResultsResponse は GET /api/results/:jobId の応答です。
type ResultsResponse struct {
	JobID      string       `json:"jobId"`
	TotalPages int          `json:"totalPages"`
	Results    []PageResult `json:"results"`
}

// Submit はPDFファイルをアップロードしてジョブIDを返します。
func (c *Client) Submit(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var accepted struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(req, http.StatusAccepted, &accepted); err != nil {
		return "", err
	}
	if accepted.JobID == "" {
		return "", fmt.Errorf("server returned empty jobId")
	}
	return accepted.JobID, nil
}

// Status はジョブの現在状態を取得します。
func (c *Client) Status(ctx context.Context, jobID string) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	var status StatusResponse
	if err := c.do(req, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Results は完了したジョブの成果物一覧を取得します。
func (c *Client) Results(ctx context.Context, jobID string) (*ResultsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/results/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	var results ResultsResponse
	if err := c.do(req, http.StatusOK, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

// Download は成果物ファイルを w へ書き込みます。
func (c *Client) Download(ctx context.Context, jobID, filename string, w io.Writer) error {
	url := fmt.Sprintf("%s/api/download/%s/%s", c.baseURL, jobID, filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Code == "" {
		apiErr.Code = "UNKNOWN"
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
