package webui

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alantheprice/sitebuilder/pkg/agent"
	"github.com/alantheprice/sitebuilder/pkg/events"
	"github.com/alantheprice/sitebuilder/pkg/preview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu     sync.Mutex
	tokens []string
	result *agent.RunResult
	err    error
	reqs   []agent.RunRequest
}

func (f *fakeRunner) Run(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	for _, tok := range f.tokens {
		if req.OnToken != nil {
			req.OnToken(tok)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &agent.RunResult{Success: true}, nil
	}
	return f.result, nil
}

func (f *fakeRunner) requests() []agent.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agent.RunRequest(nil), f.reqs...)
}

type testEnv struct {
	root   string
	bus    *events.EventBus
	runner *fakeRunner
	server *Server
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	root := t.TempDir()
	bus := events.NewEventBus()
	runner := &fakeRunner{}
	opts := Options{
		Addr:      "127.0.0.1:0",
		Root:      root,
		Agent:     runner,
		Publisher: preview.NewPublisher(root, bus, nil),
		Events:    bus,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return &testEnv{root: root, bus: bus, runner: runner, server: NewServer(opts)}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeJSON(t, rec)["status"])
}

func TestRootRedirectsToPreview(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/preview/", rec.Header().Get("Location"))
}

func TestServeStopsWhenContextCancelled(t *testing.T) {
	env := newTestEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, env.server.IsRunning())
	assert.False(t, CheckPortAvailable(ln.Addr().String()))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, env.server.IsRunning())
	assert.NoError(t, env.server.Shutdown(), "second shutdown is a no-op")
}

func TestRunFailsOnBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	env := newTestEnv(t, func(o *Options) { o.Addr = ln.Addr().String() })
	err = env.server.Run(context.Background())
	require.Error(t, err)
	assert.False(t, env.server.IsRunning())
}
