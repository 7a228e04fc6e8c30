package analysis

import (
	"context"
	"fmt"
	"testing"
)

func submitTestJob(t *testing.T, svc *Service) string {
	t.Helper()
	manifest, err := svc.SubmitMultipart(context.Background(), makeFileHeader(t, "drawing.pdf", pdfBytes))
	if err != nil {
		t.Fatalf("SubmitMultipart returned error: %v", err)
	}
	return manifest.JobID
}

func TestRunJobAllPagesSucceed(t *testing.T) {
	svc, blobs, _ := newTestService(t, &stubAnalyzer{pages: 3})
	jobID := submitTestJob(t, svc)

	var updates []ProgressUpdate
	result, err := svc.RunJob(context.Background(), jobID, func(u ProgressUpdate) {
		updates = append(updates, u)
	})
	if err != nil {
		t.Fatalf("RunJob returned error: %v", err)
	}

	if result.TotalPages != 3 {
		t.Fatalf("unexpected total pages: %d", result.TotalPages)
	}
	if len(result.Pages) != 3 {
		t.Fatalf("unexpected result count: %d", len(result.Pages))
	}
	for i, page := range result.Pages {
		if page.Page != i {
			t.Fatalf("unexpected page index at %d: %d", i, page.Page)
		}
		want := fmt.Sprintf("page_%d.png", i)
		if page.Filename != want {
			t.Fatalf("unexpected filename: %s, want %s", page.Filename, want)
		}
		rc, _, err := blobs.Open(context.Background(), jobID, page.Filename)
		if err != nil {
			t.Fatalf("annotated page missing: %v", err)
		}
		rc.Close()
	}

	// 進捗率とページ番号が後退していないこと
	lastPercent, lastPage := -1, 0
	for _, u := range updates {
		if u.Percent < lastPercent {
			t.Fatalf("progress went backwards: %d -> %d", lastPercent, u.Percent)
		}
		if u.CurrentPage < lastPage {
			t.Fatalf("current page went backwards: %d -> %d", lastPage, u.CurrentPage)
		}
		if u.Percent == 100 {
			t.Fatal("progress reached 100 before completion")
		}
		lastPercent, lastPage = u.Percent, u.CurrentPage
	}
}

func TestRunJobSkipsFailedPage(t *testing.T) {
	analyzer := &stubAnalyzer{
		pages: 5,
		pageErr: func(page int) error {
			if page == 3 {
				return fmt.Errorf("detector crashed")
			}
			return nil
		},
	}
	svc, _, _ := newTestService(t, analyzer)
	jobID := submitTestJob(t, svc)

	result, err := svc.RunJob(context.Background(), jobID, nil)
	if err != nil {
		t.Fatalf("RunJob returned error: %v", err)
	}
	if result.TotalPages != 5 {
		t.Fatalf("unexpected total pages: %d", result.TotalPages)
	}
	if len(result.Pages) != 4 {
		t.Fatalf("unexpected result count: %d", len(result.Pages))
	}
	for _, page := range result.Pages {
		if page.Page == 2 {
			t.Fatal("failed page should not appear in results")
		}
	}
}

func TestRunJobFailsWhenAllPagesFail(t *testing.T) {
	analyzer := &stubAnalyzer{
		pages: 3,
		pageErr: func(page int) error {
			return fmt.Errorf("detector down")
		},
	}
	svc, _, _ := newTestService(t, analyzer)
	jobID := submitTestJob(t, svc)

	_, err := svc.RunJob(context.Background(), jobID, nil)
	assertErrorCode(t, err, "ANALYSIS_FAILED")
}

func TestRunJobFailsWhenPDFCannotBeOpened(t *testing.T) {
	analyzer := &stubAnalyzer{countErr: fmt.Errorf("broken xref")}
	svc, _, _ := newTestService(t, analyzer)
	jobID := submitTestJob(t, svc)

	_, err := svc.RunJob(context.Background(), jobID, nil)
	assertErrorCode(t, err, "UNSUPPORTED_PDF")
}

func TestRunJobUnknownJob(t *testing.T) {
	svc, _, _ := newTestService(t, &stubAnalyzer{pages: 1})

	if _, err := svc.RunJob(context.Background(), "no-such-job", nil); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestRunJobCancelled(t *testing.T) {
	svc, _, _ := newTestService(t, &stubAnalyzer{pages: 3})
	jobID := submitTestJob(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.RunJob(ctx, jobID, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
