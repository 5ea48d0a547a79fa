package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func pass(name string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return nil }}
}

func failing(name, msg string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return errors.New(msg) }}
}

func readyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode readyz body: %v", err)
	}
	return rec.Code, body
}

// ── liveness ─────────────────────────────────────────────────────────────────

func TestHealthz_IgnoresFailingChecks(t *testing.T) {
	t.Parallel()

	h := New(failing("llm", "circuit breaker is open"))
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || len(body.Checks) != 0 {
		t.Errorf("body = %+v, want bare ok", body)
	}
}

// ── readiness ────────────────────────────────────────────────────────────────

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{pass("generated_dir"), pass("llm"), pass("tts")},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"generated_dir": "ok", "llm": "ok", "tts": "ok"},
		},
		{
			name:       "open breaker",
			checkers:   []Checker{pass("generated_dir"), failing("places", "circuit breaker is open")},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"generated_dir": "ok", "places": "fail: circuit breaker is open"},
		},
		{
			name:       "everything down",
			checkers:   []Checker{failing("generated_dir", "read-only file system"), failing("tts", "circuit breaker is open")},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{
				"generated_dir": "fail: read-only file system",
				"tts":           "fail: circuit breaker is open",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := readyz(t, New(tt.checkers...), context.Background())

			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			if body.Status != tt.wantBody {
				t.Errorf("body status = %q, want %q", body.Status, tt.wantBody)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %v, want %d entries", body.Checks, len(tt.wantChecks))
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	llmStarted := make(chan struct{})
	ttsStarted := make(chan struct{})

	// Each check waits for the other to start, so they only pass when run
	// at the same time.
	waitFor := func(own, other chan struct{}) func(context.Context) error {
		return func(ctx context.Context) error {
			close(own)
			select {
			case <-other:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("other check never started")
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	h := New(
		Checker{Name: "llm", Check: waitFor(llmStarted, ttsStarted)},
		Checker{Name: "tts", Check: waitFor(ttsStarted, llmStarted)},
	)
	code, body := readyz(t, h, context.Background())

	if code != http.StatusOK {
		t.Errorf("status = %d, want 200; checks = %v", code, body.Checks)
	}
}

func TestReadyz_CancelledRequestFails(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "generated_dir", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, body := readyz(t, h, ctx)

	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if got := body.Checks["generated_dir"]; got != "fail: "+context.Canceled.Error() {
		t.Errorf("generated_dir = %q", got)
	}
}

// ── routing ──────────────────────────────────────────────────────────────────

func TestRegister(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New(pass("generated_dir")).Register(mux)

	tests := []struct {
		method, path string
		wantStatus   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodPost, "/readyz", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
