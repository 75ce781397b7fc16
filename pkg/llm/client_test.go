package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatStreamingSendsRequestAndDecodesTokens(t *testing.T) {
	var gotBody chatRequestBody
	var gotAuth, gotAccept, gotTitle string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotTitle = r.Header.Get("X-Title")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		// Split a frame across two writes to exercise line reassembly end to end.
		full := frame("Hello")
		fmt.Fprint(w, full[:10])
		flusher.Flush()
		fmt.Fprint(w, full[10:])
		fmt.Fprint(w, frame(" world"))
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL + "/", Title: "Site Builder"})
	var tokens []string
	done := false

	text, err := client.Chat(context.Background(), ChatRequest{
		Model:  "test/model",
		APIKey: "sk-test",
		Stream: true,
		Messages: []Message{
			{Role: RoleSystem, Content: "rules"},
			{Role: RoleUser, Content: "make a page"},
		},
	}, StreamHandlers{
		OnToken: func(tok string) { tokens = append(tokens, tok) },
		OnDone:  func() { done = true },
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, []string{"Hello", " world"}, tokens)
	assert.True(t, done)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "text/event-stream", gotAccept)
	assert.Equal(t, "Site Builder", gotTitle)
	assert.Equal(t, "test/model", gotBody.Model)
	assert.True(t, gotBody.Stream)
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "make a page"},
	}, gotBody.Messages)
}

func TestChatNonStreaming(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "content", body: `{"choices":[{"message":{"role":"assistant","content":"[]"}}]}`, want: "[]"},
		{name: "no choices", body: `{"choices":[]}`, want: ""},
		{name: "missing content", body: `{"choices":[{"message":{"role":"assistant"}}]}`, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body chatRequestBody
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.False(t, body.Stream)
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()

			client := NewClient(Options{BaseURL: server.URL})
			text, err := client.Chat(context.Background(), ChatRequest{Model: "m", APIKey: "k"}, StreamHandlers{
				OnToken: func(string) { t.Fatal("no tokens expected in non-streaming mode") },
			})

			require.NoError(t, err)
			assert.Equal(t, tc.want, text)
		})
	}
}

func TestChatNon2xxIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL})
	_, err := client.Chat(context.Background(), ChatRequest{Model: "m", APIKey: "bad", Stream: true}, StreamHandlers{})

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusUnauthorized, transportErr.StatusCode)
	assert.Contains(t, transportErr.Body, "invalid key")
}

func TestChatUnreachableEndpointIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(Options{BaseURL: url, Timeout: 2 * time.Second})
	_, err := client.Chat(context.Background(), ChatRequest{Model: "m", APIKey: "k", Stream: true}, StreamHandlers{})

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Zero(t, transportErr.StatusCode)
}

func TestChatCancellationStopsStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, frame("first"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(Options{BaseURL: server.URL})
	text, err := client.Chat(ctx, ChatRequest{Model: "m", APIKey: "k", Stream: true}, StreamHandlers{
		OnToken: func(string) { cancel() },
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "first", text)
}
