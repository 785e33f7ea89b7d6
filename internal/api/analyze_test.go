package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/pipeline"
)

type stubLauncher struct {
	mu   sync.Mutex
	jobs []pipeline.AudioJob
}

func (s *stubLauncher) Launch(job pipeline.AudioJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

func multipartBody(t *testing.T, filenames ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range filenames {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("fake audio bytes"))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestAnalyze_AcceptsUploads(t *testing.T) {
	launcher := &stubLauncher{}
	h := NewAnalyzeHandler(launcher, t.TempDir(), zerolog.Nop())

	body, contentType := multipartBody(t, "board meeting.wav", "call.mp3")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Files []string `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Files) != 2 {
		t.Fatalf("accepted files = %v, want 2", resp.Files)
	}
	if resp.Files[0] != "board_meeting.wav" {
		t.Errorf("sanitized name = %q, want board_meeting.wav", resp.Files[0])
	}

	if len(launcher.jobs) != 2 {
		t.Fatalf("launched jobs = %d, want 2", len(launcher.jobs))
	}
	for _, job := range launcher.jobs {
		if _, err := os.Stat(job.SourcePath); err != nil {
			t.Errorf("staged file missing for %s: %v", job.OriginalName, err)
		}
	}
	if launcher.jobs[0].OriginalName != "board_meeting.wav" {
		t.Errorf("job original name = %q", launcher.jobs[0].OriginalName)
	}
}

func TestAnalyze_RejectsUnsupportedFormat(t *testing.T) {
	launcher := &stubLauncher{}
	h := NewAnalyzeHandler(launcher, t.TempDir(), zerolog.Nop())

	body, contentType := multipartBody(t, "notes.txt")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(launcher.jobs) != 0 {
		t.Errorf("jobs launched for unsupported upload: %v", launcher.jobs)
	}
}

func TestAnalyze_MixedBatchAcceptsGoodFiles(t *testing.T) {
	launcher := &stubLauncher{}
	h := NewAnalyzeHandler(launcher, t.TempDir(), zerolog.Nop())

	body, contentType := multipartBody(t, "good.m4a", "bad.flac")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp struct {
		Files    []string        `json:"files"`
		Rejected []ErrorResponse `json:"rejected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Files) != 1 || len(resp.Rejected) != 1 {
		t.Errorf("files = %v, rejected = %v", resp.Files, resp.Rejected)
	}
}

func TestAnalyze_NoFiles(t *testing.T) {
	h := NewAnalyzeHandler(&stubLauncher{}, t.TempDir(), zerolog.Nop())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "nothing attached")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
