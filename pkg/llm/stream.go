package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// readStream consumes server-sent `data:` frames from body. Lines are
// reassembled across reads, so a frame split over several network chunks
// decodes exactly as if it arrived whole.
func (c *Client) readStream(ctx context.Context, body io.Reader, handlers StreamHandlers) (string, error) {
	reader := bufio.NewReader(body)
	var text strings.Builder

	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			done, err := c.handleLine(line, &text, handlers)
			if err != nil {
				return text.String(), err
			}
			if done {
				handlers.done()
				return text.String(), nil
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return text.String(), fmt.Errorf("stream cancelled: %w", ctx.Err())
			}
			return text.String(), &TransportError{Err: fmt.Errorf("error reading stream: %w", readErr)}
		}
	}

	c.logger.Debug("stream ended without sentinel", zap.Int("chars", text.Len()))
	handlers.done()
	return text.String(), nil
}

// handleLine processes one event line and reports whether the sentinel was seen.
func (c *Client) handleLine(line string, text *strings.Builder, handlers StreamHandlers) (bool, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return false, nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneSentinel {
		return true, nil
	}

	var chunk StreamingChatResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		if c.policy == FramePolicyStrict {
			return false, &FrameError{Payload: payload, Err: err}
		}
		c.logger.Debug("discarding malformed stream frame", zap.String("payload", payload), zap.Error(err))
		return false, nil
	}

	if chunk.Error != nil {
		return false, &TransportError{Err: fmt.Errorf("remote error: %s", chunk.Error.Message)}
	}
	if len(chunk.Choices) == 0 {
		return false, nil
	}

	if token := chunk.Choices[0].Delta.Content; token != "" {
		text.WriteString(token)
		handlers.token(token)
	}
	return false, nil
}
