package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeTempPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drawing.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\n%%EOF\n"), 0o640); err != nil {
		t.Fatalf("failed to write temp pdf: %v", err)
	}
	return path
}

func TestSubmitReturnsJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		file.Close()
		if header.Filename != "drawing.pdf" {
			t.Errorf("unexpected filename: %s", header.Filename)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"jobId": "job-1"})
	}))
	defer server.Close()

	jobID, err := New(server.URL).Submit(context.Background(), writeTempPDF(t))
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if jobID != "job-1" {
		t.Fatalf("unexpected jobId: %s", jobID)
	}
}

func TestSubmitRejectedUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "FILE_TOO_LARGE",
			"message": "ファイルサイズが上限を超えています。",
		})
	}))
	defer server.Close()

	_, err := New(server.URL).Submit(context.Background(), writeTempPDF(t))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusRequestEntityTooLarge || apiErr.Code != "FILE_TOO_LARGE" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestWaitStopsOnCompleted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		status := StatusProcessing
		progress := 50
		if n >= 3 {
			status = StatusCompleted
			progress = 100
		}
		json.NewEncoder(w).Encode(StatusResponse{
			JobID:    "job-1",
			Status:   status,
			Progress: progress,
		})
	}))
	defer server.Close()

	var updates int
	status, err := New(server.URL).Wait(context.Background(), "job-1", 10*time.Millisecond, func(s *StatusResponse) {
		if s != nil {
			updates++
		}
	})
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if status.Status != StatusCompleted {
		t.Fatalf("unexpected status: %s", status.Status)
	}
	if updates < 3 {
		t.Fatalf("expected at least 3 updates, got %d", updates)
	}
}

func TestWaitStopsOnFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(StatusResponse{
			JobID:   "job-1",
			Status:  StatusFailed,
			Message: "解析に失敗しました。",
		})
	}))
	defer server.Close()

	status, err := New(server.URL).Wait(context.Background(), "job-1", 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if status.Status != StatusFailed {
		t.Fatalf("unexpected status: %s", status.Status)
	}
}

func TestWaitContinuesPastTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(StatusResponse{JobID: "job-1", Status: StatusCompleted, Progress: 100})
	}))
	defer server.Close()

	var transient int
	status, err := New(server.URL).Wait(context.Background(), "job-1", 10*time.Millisecond, func(s *StatusResponse) {
		if s == nil {
			transient++
		}
	})
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if status.Status != StatusCompleted {
		t.Fatalf("unexpected status: %s", status.Status)
	}
	if transient != 2 {
		t.Fatalf("expected 2 transient notifications, got %d", transient)
	}
}

func TestWaitStopsOnJobNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "JOB_NOT_FOUND",
			"message": "指定されたジョブは存在しません。",
		})
	}))
	defer server.Close()

	_, err := New(server.URL).Wait(context.Background(), "missing-job", 10*time.Millisecond, nil)
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestWaitStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(StatusResponse{JobID: "job-1", Status: StatusProcessing})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	api := New(server.URL)

	done := make(chan error, 1)
	go func() {
		_, err := api.Wait(ctx, "job-1", 20*time.Millisecond, nil)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancel")
	}

	// キャンセル後はリクエストが増えないこと
	after := calls.Load()
	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != after {
		t.Fatalf("requests continued after cancel: %d -> %d", after, got)
	}
}

func TestResultsAndDownload(t *testing.T) {
	artifact := []byte("fake-png-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/results/job-1":
			json.NewEncoder(w).Encode(ResultsResponse{
				JobID:      "job-1",
				TotalPages: 1,
				Results:    []PageResult{{Page: 0, Filename: "page_0.png"}},
			})
		case "/api/download/job-1/page_0.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(artifact)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	api := New(server.URL)
	results, err := api.Results(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Results returned error: %v", err)
	}
	if len(results.Results) != 1 || results.Results[0].Filename != "page_0.png" {
		t.Fatalf("unexpected results: %+v", results)
	}

	var buf bytes.Buffer
	if err := api.Download(context.Background(), "job-1", "page_0.png", &buf); err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), artifact) {
		t.Fatal("downloaded artifact differs")
	}
}
