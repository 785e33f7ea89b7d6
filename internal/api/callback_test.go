package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/detect"
)

type stubApplier struct {
	applied []string
	metrics []detect.Metrics
	err     error
}

func (s *stubApplier) ApplyAuthenticity(ctx context.Context, token string, m detect.Metrics) error {
	s.applied = append(s.applied, token)
	s.metrics = append(s.metrics, m)
	return s.err
}

func postCallback(h *CallbackHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect-callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Callback(rec, req)
	return rec
}

func TestCallback_AppliesMetrics(t *testing.T) {
	applier := &stubApplier{}
	h := NewCallbackHandler(applier, zerolog.Nop())

	body := `{"item":{"uuid":"tok-1","metrics":{"label":"authentic","score":[0.9,0.8],"consistency":0.85,"aggregated_score":0.88}}}`
	rec := postCallback(h, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(applier.applied) != 1 || applier.applied[0] != "tok-1" {
		t.Fatalf("applied tokens = %v, want [tok-1]", applier.applied)
	}
	m := applier.metrics[0]
	if m.Label != "authentic" || m.AggregatedScore != 0.88 || len(m.Score) != 2 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestCallback_MissingTokenIsIgnored(t *testing.T) {
	applier := &stubApplier{}
	h := NewCallbackHandler(applier, zerolog.Nop())

	for _, body := range []string{
		`{}`,
		`{"item":{}}`,
		`{"item":{"uuid":"tok-1"}}`,
		`{"item":{"uuid":"tok-1","metrics":null}}`,
		`{"item":{"metrics":{"label":"authentic"}}}`,
	} {
		rec := postCallback(h, body)
		if rec.Code != http.StatusOK {
			t.Errorf("body %s: status = %d, want 200", body, rec.Code)
		}
	}
	if len(applier.applied) != 0 {
		t.Errorf("applied = %v, want none for incomplete payloads", applier.applied)
	}
}

func TestCallback_MalformedJSON(t *testing.T) {
	h := NewCallbackHandler(&stubApplier{}, zerolog.Nop())
	rec := postCallback(h, `{"item":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCallback_ApplyError(t *testing.T) {
	applier := &stubApplier{err: errors.New("database down")}
	h := NewCallbackHandler(applier, zerolog.Nop())

	rec := postCallback(h, `{"item":{"uuid":"tok-1","metrics":{"label":"spoofed"}}}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
