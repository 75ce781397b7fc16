// Package llm talks to an OpenAI-compatible chat-completion endpoint and
// decodes its incremental token stream.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

const maxErrorBody = 4096

// FramePolicy decides what happens to a stream frame that is not valid JSON.
type FramePolicy int

const (
	// FramePolicyLenient drops unparsable frames and keeps reading.
	FramePolicyLenient FramePolicy = iota
	// FramePolicyStrict aborts the stream with a *FrameError.
	FramePolicyStrict
)

// ParseFramePolicy maps "strict" / "lenient" (case-insensitive) to a policy.
func ParseFramePolicy(s string) (FramePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return FramePolicyLenient, nil
	case "strict":
		return FramePolicyStrict, nil
	default:
		return FramePolicyLenient, fmt.Errorf("unknown frame policy %q", s)
	}
}

func (p FramePolicy) String() string {
	if p == FramePolicyStrict {
		return "strict"
	}
	return "lenient"
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	HTTPClient  *http.Client
	Timeout     time.Duration
	FramePolicy FramePolicy
	Referer     string
	Title       string
	Logger      *zap.Logger
}

// Client issues chat-completion requests.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     FramePolicy
	referer    string
	title      string
	logger     *zap.Logger
}

// NewClient creates a client; zero-valued options fall back to defaults.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		policy:     opts.FramePolicy,
		referer:    opts.Referer,
		title:      opts.Title,
		logger:     logger,
	}
}

// Chat sends req and returns the final assistant text. In streaming mode the
// handlers observe every token; the returned text is the concatenation of
// those tokens.
func (c *Client) Chat(ctx context.Context, req ChatRequest, handlers StreamHandlers) (string, error) {
	reqBody, err := json.Marshal(chatRequestBody{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   req.Stream,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	start := time.Now()
	c.logger.Debug("completion request",
		zap.String("url", url),
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Bool("stream", req.Stream))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("completion request cancelled: %w", ctx.Err())
		}
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("completion API error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return "", &TransportError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var text string
	if req.Stream {
		text, err = c.readStream(ctx, resp.Body, handlers)
	} else {
		text, err = c.readSingle(resp.Body)
	}
	c.logger.Debug("completion finished",
		zap.String("model", req.Model),
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return text, err
}

func (c *Client) readSingle(body io.Reader) (string, error) {
	var resp ChatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if resp.Error != nil {
		return "", &TransportError{Err: fmt.Errorf("remote error: %s", resp.Error.Message)}
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
