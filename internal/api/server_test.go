package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"clipvault/internal/alarm"
	"clipvault/internal/config"
	"clipvault/internal/finder"
	"clipvault/internal/keys"
	"clipvault/internal/metrics"
	"clipvault/internal/storage"
	"clipvault/internal/types"
)

// capturePublisher records published alarm records for assertions.
type capturePublisher struct {
	mu      sync.Mutex
	records []*types.AlarmRecord
	delays  []time.Duration
	err     error
}

func (p *capturePublisher) PublishAlarm(_ context.Context, rec *types.AlarmRecord, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.records = append(p.records, rec)
	p.delays = append(p.delays, delay)
	return nil
}

type serverFixture struct {
	server    *Server
	store     *storage.MemStore
	publisher *capturePublisher
	scheme    *keys.Scheme
}

func newServerFixture(t *testing.T, mutate func(cfg *config.Config)) *serverFixture {
	t.Helper()

	cfg := &config.Config{
		Environment: "local",
		Service:     "clipvault",
		Security: config.SecurityConfig{
			CorsAllowedOrigins: []string{"*"},
		},
		Build: config.BuildInfo{Version: "test", Commit: "abc123"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := &capturePublisher{}
	ingestion := alarm.NewIngestionService(publisher, 2*time.Minute, metrics.NoopMetrics{}, logger)

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	scheme := keys.NewScheme(loc)
	store := storage.NewMemStore()
	videoFinder := finder.New(store, scheme, 30, 90, time.Hour, metrics.NoopMetrics{}, logger)

	srv, err := NewServer(cfg, ingestion, videoFinder, logger)
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	srv.MountRoutes()

	return &serverFixture{server: srv, store: store, publisher: publisher, scheme: scheme}
}

func (f *serverFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

const validWebhook = `{
	"alarm": {
		"name": "Motion detected",
		"triggers": [{"key": "motion", "device": "AA:BB:CC", "eventId": "evt1"}],
		"eventPath": "/exports/evt1"
	},
	"timestamp": 1700000000000
}`

func TestHandleAlarmEvent_AcceptsValidWebhook(t *testing.T) {
	f := newServerFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/alarmevent", strings.NewReader(validWebhook))
	rec := f.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data alarm.Ack `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.EventID != "evt1" || resp.Data.Device != "AA:BB:CC" {
		t.Errorf("ack = %+v", resp.Data)
	}
	if resp.Data.EstimatedProcessingTime != "2m0s" {
		t.Errorf("EstimatedProcessingTime = %q", resp.Data.EstimatedProcessingTime)
	}
	if len(f.publisher.records) != 1 {
		t.Fatalf("published %d records, want 1", len(f.publisher.records))
	}
	if f.publisher.delays[0] != 2*time.Minute {
		t.Errorf("delay = %v", f.publisher.delays[0])
	}
}

func TestHandleAlarmEvent_RejectsInvalidBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode types.ErrorCode
	}{
		{"empty body", "", types.ErrCodeValidationEmptyBody},
		{"malformed json", "{nope", types.ErrCodeValidationInvalidJSON},
		{"missing alarm", `{"timestamp": 1700000000000}`, types.ErrCodeValidationMissingAlarm},
		{"no triggers", `{"alarm": {"name": "x", "triggers": []}, "timestamp": 1}`, types.ErrCodeValidationMissingTriggers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture(t, nil)

			req := httptest.NewRequest(http.MethodPost, "/alarmevent", strings.NewReader(tt.body))
			rec := f.do(t, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			detail := decodeError(t, rec)
			if detail.Code != string(tt.wantCode) {
				t.Errorf("code = %q, want %q", detail.Code, tt.wantCode)
			}
			if detail.RequestID == "" {
				t.Error("error envelope missing request_id")
			}
			if len(f.publisher.records) != 0 {
				t.Error("rejected webhook must not be published")
			}
		})
	}
}

func TestHandleVideoByEventID_ReturnsSignedResult(t *testing.T) {
	f := newServerFixture(t, nil)

	ts := time.Now().Add(-24 * time.Hour).UnixMilli()
	pair := f.scheme.Derive("evt42", "AA:BB", ts)
	meta, _ := json.Marshal(map[string]string{"name": "motion"})
	if err := f.store.Put(context.Background(), pair.MetadataKey, meta, "application/json"); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}
	if err := f.store.Put(context.Background(), pair.VideoKey, []byte("clip"), "video/mp4"); err != nil {
		t.Fatalf("seed video: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/?eventId=evt42", nil)
	rec := f.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data finder.Result `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.EventID != "evt42" || resp.Data.VideoKey != pair.VideoKey {
		t.Errorf("result = %+v", resp.Data)
	}
	if resp.Data.DownloadURL == "" {
		t.Error("DownloadURL is empty")
	}
}

func TestHandleVideoByEventID_RequiresEventID(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	detail := decodeError(t, rec)
	if detail.Code != string(types.ErrCodeValidationMissingField) {
		t.Errorf("code = %q", detail.Code)
	}
}

func TestHandleLatestVideo_NotFoundWhenEmpty(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/latestvideo", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	detail := decodeError(t, rec)
	if detail.Code != string(types.ErrCodeNotFoundRecentVideo) {
		t.Errorf("code = %q", detail.Code)
	}
}

func TestHandleHealth_ReportsBuildMetadata(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data["status"] != "ok" || resp.Data["version"] != "test" {
		t.Errorf("health = %v", resp.Data)
	}
}

func TestUnknownRouteReturnsStructuredNotFound(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	detail := decodeError(t, rec)
	if detail.Code != string(types.ErrCodeNotFoundRoute) {
		t.Errorf("code = %q", detail.Code)
	}
}

func TestRequestID_GeneratedAndEchoed(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id response header not set")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-fixed")
	rec = f.do(t, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-fixed" {
		t.Errorf("X-Request-Id = %q, want propagated value", got)
	}
}

func TestCORSPreflightAnsweredDirectly(t *testing.T) {
	f := newServerFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/latestvideo", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := f.do(t, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Allow-Origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestAPIKeyGuard(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash key: %v", err)
	}
	withGuard := func(cfg *config.Config) {
		cfg.Security.QueryAPIKeyHash = types.SecretString(hash)
	}

	t.Run("missing key is rejected", func(t *testing.T) {
		f := newServerFixture(t, withGuard)
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/latestvideo", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
		if detail := decodeError(t, rec); detail.Code != string(types.ErrCodeAuthKeyMissing) {
			t.Errorf("code = %q", detail.Code)
		}
	})

	t.Run("wrong key is rejected", func(t *testing.T) {
		f := newServerFixture(t, withGuard)
		req := httptest.NewRequest(http.MethodGet, "/latestvideo", nil)
		req.Header.Set("X-Api-Key", "wrong")
		rec := f.do(t, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
		if detail := decodeError(t, rec); detail.Code != string(types.ErrCodeAuthKeyInvalid) {
			t.Errorf("code = %q", detail.Code)
		}
	})

	t.Run("correct key passes", func(t *testing.T) {
		f := newServerFixture(t, withGuard)
		req := httptest.NewRequest(http.MethodGet, "/latestvideo", nil)
		req.Header.Set("X-Api-Key", "letmein")
		rec := f.do(t, req)
		// Empty store, so the guard passing surfaces as 404 from the finder.
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("webhook route bypasses the guard", func(t *testing.T) {
		f := newServerFixture(t, withGuard)
		req := httptest.NewRequest(http.MethodPost, "/alarmevent", strings.NewReader(validWebhook))
		rec := f.do(t, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("empty hash disables the guard", func(t *testing.T) {
		f := newServerFixture(t, nil)
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/latestvideo", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestRequestLoggerInjectsContextLogger(t *testing.T) {
	f := newServerFixture(t, nil)
	f.server.Router().Get("/ctxlog", func(w http.ResponseWriter, r *http.Request) {
		if types.LoggerFromContext(r.Context()) == nil {
			Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
				"no logger in request context", nil))
			return
		}
		JSON(w, r, http.StatusOK, APIResponse{Data: "ok"})
	})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/ctxlog", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

// recordingLogger implements types.Logger and records error messages.
type recordingLogger struct {
	errorMsgs []string
}

func (l *recordingLogger) Info(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any) {}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.errorMsgs = append(l.errorMsgs, msg)
}
func (l *recordingLogger) With(...any) types.Logger { return l }

func TestError_LogsInternalCauseThroughContextLogger(t *testing.T) {
	logger := &recordingLogger{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithLogger(req.Context(), logger))
	rec := httptest.NewRecorder()

	Error(rec, req, errors.New("connection pool exhausted"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(logger.errorMsgs) != 1 {
		t.Errorf("logged errors = %d, want the internal cause recorded once", len(logger.errorMsgs))
	}
}

func TestError_DoesNotLogClientErrors(t *testing.T) {
	logger := &recordingLogger{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithLogger(req.Context(), logger))
	rec := httptest.NewRecorder()

	Error(rec, req, types.NewAppError(types.ErrCodeValidationMissingField,
		"eventId is required", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(logger.errorMsgs) != 0 {
		t.Errorf("logged errors = %v, want none for a 4xx", logger.errorMsgs)
	}
}

func TestRecovererConvertsPanicToStructured500(t *testing.T) {
	f := newServerFixture(t, nil)
	f.server.Router().Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("code = %q", detail.Code)
	}
}
