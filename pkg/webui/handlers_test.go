package webui

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alantheprice/sitebuilder/pkg/blocks"
	"github.com/alantheprice/sitebuilder/pkg/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishHello(t *testing.T, env *testEnv) {
	t.Helper()
	_, err := env.server.Store().Add(blocks.Block{
		ID:    "hello",
		Type:  blocks.TypeText,
		Props: map[string]any{"content": "Hello"},
	}, "")
	require.NoError(t, err)
}

func TestPreviewFileServed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/preview/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing published yet")

	publishHello(t, env)

	rec = env.do(t, http.MethodGet, "/preview/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "<p>Hello</p>")
}

func TestPreviewEventsStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/preview/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Unrelated events are not forwarded.
	env.bus.Publish(events.EventTypeStreamChunk, events.StreamChunkEvent("tok"))
	publishHello(t, env)

	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	select {
	case line := <-lines:
		assert.Equal(t, "data: preview-updated\n", line)
	case <-time.After(2 * time.Second):
		t.Fatal("no preview event received")
	}
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	var hello map[string]interface{}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "connection_status", hello["type"])
	return conn
}

func TestPreviewWebSocketPushesOnlyPreviewUpdates(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	conn := dialWS(t, ts, "/ws/preview")

	// A token flood from an agent run must not crowd out the update.
	for i := 0; i < 500; i++ {
		env.bus.Publish(events.EventTypeStreamChunk, events.StreamChunkEvent("tok"))
	}
	publishHello(t, env)

	var ev events.UIEvent
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventTypePreviewUpdated, ev.Type)
}

func TestEventsWebSocketForwardsEverything(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	conn := dialWS(t, ts, "/ws/events")
	require.Eventually(t, func() bool { return env.server.countConnections() == 1 }, time.Second, 10*time.Millisecond)

	env.bus.Publish(events.EventTypeStreamChunk, events.StreamChunkEvent("tok"))

	var ev events.UIEvent
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventTypeStreamChunk, ev.Type)

	conn.Close()
	require.Eventually(t, func() bool {
		return env.server.countConnections() == 0 && env.bus.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond, "closing the client releases its subscription")
}
