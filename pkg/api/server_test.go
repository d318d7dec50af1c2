package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emanuelteklu/cc-sidecar/pkg/agent"
	"github.com/emanuelteklu/cc-sidecar/pkg/auth"
	"github.com/emanuelteklu/cc-sidecar/pkg/config"
	"github.com/emanuelteklu/cc-sidecar/pkg/diag"
	"github.com/emanuelteklu/cc-sidecar/pkg/filestore"
	"github.com/emanuelteklu/cc-sidecar/pkg/ops"
	"github.com/emanuelteklu/cc-sidecar/pkg/pathguard"
	"github.com/emanuelteklu/cc-sidecar/pkg/stream"
)

const (
	testSecret = "api-test-secret-with-enough-length-for-hs256"
	adminID    = "admin-subject"
)

// Mock implementations for testing

type fakeAgent struct {
	events   []stream.Event
	hold     bool // keep the stream open until the request ends
	messages []agent.ChatMessage
	extra    string
	released chan struct{} // closed once the stream goroutine exits, if set
}

func (f *fakeAgent) Stream(ctx context.Context, messages []agent.ChatMessage, extra string) <-chan stream.Event {
	f.messages = messages
	f.extra = extra
	out := make(chan stream.Event)
	go func() {
		if f.released != nil {
			defer close(f.released)
		}
		defer close(out)
		for _, ev := range f.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if f.hold {
			<-ctx.Done()
		}
	}()
	return out
}

type fakeHealth struct{ health diag.Health }

func (f fakeHealth) Check(context.Context) diag.Health { return f.health }

type fakeSignals struct{ commits []diag.Commit }

func (f fakeSignals) Scan(context.Context) []diag.Commit { return f.commits }

type testEnv struct {
	srv   *Server
	paths config.PathsConfig
}

// Helper function to create a test server with common dependencies
func newTestServer(t *testing.T, opts ...func(*ServerConfig)) *testEnv {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Paths = config.PathsConfig{
		ClawdbotDir: filepath.Join(root, "clawdbot"),
		OpsDir:      filepath.Join(root, "ops"),
		TaskQueue:   filepath.Join(root, "clawdbot", "data", "task-queue.json"),
		TokenUsage:  filepath.Join(root, "ops", "token-usage.json"),
		ResearchDir: filepath.Join(root, "clawdbot", "overnight"),
	}
	cfg.Paths.AllowedRoots = []string{cfg.Paths.ClawdbotDir, cfg.Paths.OpsDir}

	guard, err := pathguard.New(cfg.Paths.AllowedRoots...)
	if err != nil {
		t.Fatal(err)
	}

	sc := ServerConfig{
		Config:            cfg,
		Verifier:          auth.NewVerifier(auth.Options{Secret: testSecret, AdminSubject: adminID}),
		Workspace:         ops.NewWorkspace(filestore.New(guard), cfg.Paths),
		HeartbeatInterval: time.Hour,
	}
	for _, opt := range opts {
		opt(&sc)
	}
	return &testEnv{srv: NewServer(sc), paths: cfg.Paths}
}

func token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := auth.SignToken(testSecret, subject, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, body, tok string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q is not JSON: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestHealthz(t *testing.T) {
	env := newTestServer(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestServer(t)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/health"},
		{http.MethodGet, "/api/overnight"},
		{http.MethodPost, "/api/overnight"},
		{http.MethodGet, "/api/research"},
		{http.MethodGet, "/api/research/some-brief"},
		{http.MethodGet, "/api/tokens"},
		{http.MethodPost, "/api/agent/run"},
		{http.MethodGet, "/metrics"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := env.do(t, rt.method, rt.path, "", "")
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if got := errorBody(t, rec); got != "Missing authorization header" {
				t.Errorf("error = %q", got)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestAuthWrongSubject(t *testing.T) {
	env := newTestServer(t)
	rec := env.do(t, http.MethodGet, "/api/overnight", "", token(t, "someone-else"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := errorBody(t, rec); got != "Not authorized" {
		t.Errorf("error = %q", got)
	}
}

func TestAuthBadSignature(t *testing.T) {
	env := newTestServer(t)
	bad, err := auth.SignToken("a-completely-different-secret-value", adminID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	rec := env.do(t, http.MethodGet, "/api/overnight", "", bad)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := errorBody(t, rec); !strings.HasPrefix(got, "Invalid token") {
		t.Errorf("error = %q", got)
	}
}

func TestDevModeAcceptsAnonymous(t *testing.T) {
	env := newTestServer(t, func(sc *ServerConfig) {
		sc.Verifier = auth.NewVerifier(auth.Options{})
	})
	rec := env.do(t, http.MethodGet, "/api/overnight", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	env := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/agent/run", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Allow-Origin %q for unknown origin", got)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestServer(t)
	env.do(t, http.MethodGet, "/healthz", "", "")

	rec := env.do(t, http.MethodGet, "/metrics", "", token(t, adminID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sidecar_http_requests_total") {
		t.Error("metrics output missing request counter")
	}

	public := newTestServer(t, func(sc *ServerConfig) {
		sc.Config.Telemetry.PublicMetrics = true
	})
	if rec := public.do(t, http.MethodGet, "/metrics", "", ""); rec.Code != http.StatusOK {
		t.Errorf("public metrics status = %d", rec.Code)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestServer(t)
	rec := env.do(t, http.MethodGet, "/api/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := errorBody(t, rec); got != "Not Found" {
		t.Errorf("error = %q", got)
	}
}

func TestShutdownCancelsStreams(t *testing.T) {
	fa := &fakeAgent{
		events:   []stream.Event{stream.Text{Content: "working"}},
		hold:     true,
		released: make(chan struct{}),
	}
	env := newTestServer(t, func(sc *ServerConfig) { sc.Agent = fa })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	go func() { _ = env.srv.Serve(ln) }()

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	req, _ := http.NewRequest(http.MethodPost, "http://"+ln.Addr().String()+"/api/agent/run", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token(t, adminID))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 64)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("reading first frame: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-fa.released:
	case <-time.After(5 * time.Second):
		t.Fatal("agent stream not cancelled by shutdown")
	}
}
