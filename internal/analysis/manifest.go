package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const (
	manifestFilename = "manifest.json"
	sourceFilename   = "source.pdf"
)

// JobManifest はジョブ入力のメタデータを保持します。
// 入力PDFと同じくブロブストレージに保存されます。
type JobManifest struct {
	JobID        string    `json:"jobId"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *Service) writeManifest(ctx context.Context, manifest *JobManifest) error {
	if manifest == nil {
		return fmt.Errorf("manifest is nil")
	}
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if _, err := s.blobs.Save(ctx, manifest.JobID, manifestFilename, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("failed to store manifest: %w", err)
	}
	return nil
}

func (s *Service) loadManifest(ctx context.Context, jobID string) (*JobManifest, error) {
	rc, _, err := s.blobs.Open(ctx, jobID, manifestFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest JobManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}
