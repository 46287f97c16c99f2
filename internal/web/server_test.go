package web

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/mailclean/internal/config"
	"github.com/JonMunkholm/mailclean/internal/core"
	"github.com/JonMunkholm/mailclean/internal/engine"
	"github.com/JonMunkholm/mailclean/internal/policy"
)

const sampleCSV = "Name,Email\nUser,user@gmial.com\nAdmin,admin@company.com\nJane,jane@example.com\n"

func testConfig() *config.Config {
	return &config.Config{
		Upload:     config.UploadConfig{MaxFileSize: 1 << 20},
		Security:   config.SecurityConfig{EnableCSP: true},
		Classifier: config.ClassifierConfig{Provider: "none"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	p, err := policy.Default(policy.Options{PublicSuffixFallback: true})
	require.NoError(t, err)
	eng, err := engine.New(p, engine.DefaultOptions())
	require.NoError(t, err)

	proc := core.NewProcessor(eng, nil, core.ProcessorConfig{Workers: 2, BatchSize: 2})
	svc := core.NewService(proc, core.NewRunLimiter(2, 50*time.Millisecond), core.ServiceConfig{
		RunTimeout: 5 * time.Second,
		Retention:  time.Minute,
	})
	s := NewServer(svc, cfg)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func uploadRequest(t *testing.T, path, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er), rec.Body.String())
	return er
}

type resultBody struct {
	RunID    string          `json:"run_id"`
	Phase    core.RunPhase   `json:"phase"`
	Counters engine.Counters `json:"counters"`
	Reports  engine.Reports  `json:"reports"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Runs.MaxConcurrent)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestPolicy(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/policy", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body policyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, engine.DefaultConfidenceThreshold, body.ConfidenceThreshold)
	assert.True(t, body.ExcludeRoleAccounts)
	assert.Positive(t, body.Policy.TLDs)
	assert.NotEmpty(t, body.Policy.Providers)
	assert.Equal(t, "none", body.Classifier)
}

func TestClean(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := serve(s, uploadRequest(t, "/api/clean", "contacts.csv", sampleCSV, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body resultBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.RunID)
	assert.Equal(t, core.PhaseComplete, body.Phase)
	assert.Equal(t, engine.Counters{Total: 3, Accepted: 1, Fixed: 1, Removed: 1}, body.Counters)
	assert.Len(t, body.Reports.Changes, 1)
	assert.Len(t, body.Reports.Rejected, 1)
}

func TestClean_Errors(t *testing.T) {
	tests := []struct {
		name       string
		cfg        func(*config.Config)
		fileName   string
		content    string
		fields     map[string]string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "no file",
			fields:     map[string]string{"columns": "Email"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE004",
		},
		{
			name:       "unsupported format",
			fileName:   "contacts.pdf",
			content:    "%PDF-1.4",
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   "FILE002",
		},
		{
			name:       "no email column",
			fileName:   "people.csv",
			content:    "Name,Phone\nAda,555\n",
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE003",
		},
		{
			name:       "explicit column missing",
			fileName:   "contacts.csv",
			content:    sampleCSV,
			fields:     map[string]string{"columns": "Work Email"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE003",
		},
		{
			name:       "file too large",
			cfg:        func(c *config.Config) { c.Upload.MaxFileSize = 64 },
			fileName:   "contacts.csv",
			content:    strings.Repeat(sampleCSV, 10),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "FILE001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.cfg != nil {
				tt.cfg(cfg)
			}
			s := newTestServer(t, cfg)
			rec := serve(s, uploadRequest(t, "/api/clean", tt.fileName, tt.content, tt.fields))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

// startRun starts a run and waits for its result.
func startRun(t *testing.T, s *Server, fileName, content string) string {
	t.Helper()
	rec := serve(s, uploadRequest(t, "/api/runs", fileName, content, nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var started startRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.RunID)
	assert.Equal(t, "/api/runs/"+started.RunID, rec.Header().Get("Location"))

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+started.RunID+"/result", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return started.RunID
}

func TestRunLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig())
	runID := startRun(t, s, "contacts.csv", sampleCSV)

	t.Run("progress snapshot", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var p progressResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		assert.Equal(t, core.PhaseComplete, p.Phase)
		assert.Equal(t, 100, p.Percent)
		assert.Equal(t, 3, p.Entries)
	})

	t.Run("result without waiting", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/result?wait=false", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body resultBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, runID, body.RunID)
		assert.Equal(t, 1, body.Counters.Fixed)
	})

	t.Run("rejected report csv", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/reports/rejected", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "rejected.csv")
		assert.True(t, strings.HasPrefix(rec.Body.String(), "sheet,row_number,col_name,raw_email"), rec.Body.String())
		assert.Contains(t, rec.Body.String(), "admin@company.com")
	})

	t.Run("changes report json", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/reports/changes?format=json", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "user@gmail.com")
	})

	t.Run("unknown report", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/reports/bounces", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VAL003", decodeError(t, rec).Code)
	})

	t.Run("unknown report format", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/reports/changes?format=pdf", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cleaned output", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/output", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "contacts_cleaned.csv")
		out := rec.Body.String()
		assert.Contains(t, out, "user@gmail.com")
		assert.Contains(t, out, "jane@example.com")
		assert.NotContains(t, out, "admin@company.com")
	})

	t.Run("progress stream of finished run", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/progress", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		body := rec.Body.String()
		assert.Contains(t, body, "id: 100\nevent: progress\n")
		assert.Contains(t, body, "event: complete\n")
		assert.Contains(t, body, `"phase":"complete"`)
	})

	t.Run("cancel finished run is harmless", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/runs/"+runID+"/cancel", nil))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})
}

func TestRun_FailedRunHasNoOutput(t *testing.T) {
	s := newTestServer(t, testConfig())
	runID := startRun(t, s, "people.csv", "Name,Phone\nAda,555\n")

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/result", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body resultBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, core.PhaseFailed, body.Phase)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/output", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRun(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil),
		httptest.NewRequest(http.MethodGet, "/api/runs/nope/result", nil),
		httptest.NewRequest(http.MethodGet, "/api/runs/nope/progress", nil),
		httptest.NewRequest(http.MethodPost, "/api/runs/nope/cancel", nil),
		httptest.NewRequest(http.MethodGet, "/api/runs/nope/output", nil),
	} {
		t.Run(req.Method+" "+req.URL.Path, func(t *testing.T) {
			rec := serve(s, req)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "RUN003", decodeError(t, rec).Code)
		})
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	s := newTestServer(t, cfg)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays open")

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/policy", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/policy", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = serve(s, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, UploadLimit: 1}
	s := newTestServer(t, cfg)

	rec := serve(s, uploadRequest(t, "/api/clean", "contacts.csv", sampleCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, uploadRequest(t, "/api/clean", "contacts.csv", sampleCSV, nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/policy", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "other endpoints use the general limit")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyRuns, http.StatusTooManyRequests},
		{core.ErrRunNotFinished, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errNoOutput, http.StatusNotFound},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "contacts_cleaned.xlsx", outputName("contacts.xlsx", "xlsx"))
	assert.Equal(t, "list_cleaned.csv", outputName("list.txt", "csv"))
	assert.Equal(t, "output_cleaned.csv", outputName("", "csv"))
}
