package analysis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/yourusername/tendon-scan/internal/config"
	"github.com/yourusername/tendon-scan/internal/storage"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type stubAnalyzer struct {
	pages    int
	countErr error
	pageErr  func(page int) error
	output   []byte
}

func (a *stubAnalyzer) PageCount(ctx context.Context, pdfPath string) (int, error) {
	if a.countErr != nil {
		return 0, a.countErr
	}
	return a.pages, nil
}

func (a *stubAnalyzer) AnalyzePage(ctx context.Context, pdfPath string, page int) ([]byte, error) {
	if a.pageErr != nil {
		if err := a.pageErr(page); err != nil {
			return nil, err
		}
	}
	if a.output != nil {
		return a.output, nil
	}
	return []byte("png-data"), nil
}

func newTestService(t *testing.T, analyzer *stubAnalyzer) (*Service, *storage.Local, string) {
	t.Helper()
	root := t.TempDir()
	blobs, err := storage.NewLocal(root)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	cfg := &config.Config{
		MaxFileSize:      1024 * 1024,
		JobExpireMinutes: 1,
	}
	svc, err := NewService(cfg, blobs, analyzer)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc, blobs, root
}

func makeFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		t.Fatalf("failed to parse multipart form: %v", err)
	}
	files := req.MultipartForm.File["file"]
	if len(files) != 1 {
		t.Fatalf("unexpected file count: %d", len(files))
	}
	return files[0]
}

func TestSubmitMultipartStoresSourceAndManifest(t *testing.T) {
	svc, blobs, _ := newTestService(t, &stubAnalyzer{pages: 1})

	manifest, err := svc.SubmitMultipart(context.Background(), makeFileHeader(t, "drawing.pdf", pdfBytes))
	if err != nil {
		t.Fatalf("SubmitMultipart returned error: %v", err)
	}
	if manifest.JobID == "" {
		t.Fatal("expected non-empty job id")
	}
	if manifest.OriginalName != "drawing.pdf" {
		t.Fatalf("unexpected original name: %s", manifest.OriginalName)
	}
	if manifest.Size != int64(len(pdfBytes)) {
		t.Fatalf("unexpected size: %d, want %d", manifest.Size, len(pdfBytes))
	}

	rc, _, err := blobs.Open(context.Background(), manifest.JobID, "source.pdf")
	if err != nil {
		t.Fatalf("stored source missing: %v", err)
	}
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("failed to read stored source: %v", err)
	}
	if !bytes.Equal(stored, pdfBytes) {
		t.Fatal("stored source differs from upload")
	}

	if _, _, err := blobs.Open(context.Background(), manifest.JobID, "manifest.json"); err != nil {
		t.Fatalf("stored manifest missing: %v", err)
	}
}

func TestSubmitMultipartRejectsNonPDFExtension(t *testing.T) {
	svc, _, root := newTestService(t, &stubAnalyzer{pages: 1})

	_, err := svc.SubmitMultipart(context.Background(), makeFileHeader(t, "notes.txt", []byte("plain text")))
	assertErrorCode(t, err, "INVALID_FILE_TYPE")
	assertNoJobs(t, root)
}

func TestSubmitMultipartRejectsFakePDF(t *testing.T) {
	svc, _, root := newTestService(t, &stubAnalyzer{pages: 1})

	// 拡張子は .pdf だが中身がPDFではない
	_, err := svc.SubmitMultipart(context.Background(), makeFileHeader(t, "fake.pdf", []byte("<html>not a pdf</html>")))
	assertErrorCode(t, err, "INVALID_FILE_TYPE")
	assertNoJobs(t, root)
}

func TestSubmitMultipartRejectsOversizedFile(t *testing.T) {
	analyzer := &stubAnalyzer{pages: 1}
	svc, _, root := newTestService(t, analyzer)
	svc.cfg.MaxFileSize = 16

	_, err := svc.SubmitMultipart(context.Background(), makeFileHeader(t, "big.pdf", pdfBytes))
	assertErrorCode(t, err, "FILE_TOO_LARGE")
	assertNoJobs(t, root)
}

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Fatalf("unexpected code: %s, want %s", apiErr.Code, code)
	}
}

func assertNoJobs(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("failed to read storage root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no stored jobs, found %d entries", len(entries))
	}
}
