// Package agent runs one prompt against a workspace: it builds the model
// context, streams a completion, parses the reply as file patches and
// applies them.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alantheprice/sitebuilder/pkg/events"
	"github.com/alantheprice/sitebuilder/pkg/llm"
	"github.com/alantheprice/sitebuilder/pkg/patch"
	"go.uber.org/zap"
)

// Completer is the part of llm.Client the agent needs.
type Completer interface {
	Chat(ctx context.Context, req llm.ChatRequest, handlers llm.StreamHandlers) (string, error)
}

// Options configures an Agent.
type Options struct {
	// DefaultModel is used when a request names no model.
	DefaultModel string
	// ManifestLimit appends up to this many workspace files to the system
	// message. Zero leaves the manifest out.
	ManifestLimit int
	// Events receives stream_chunk, file_changed and query_completed
	// notifications. Optional.
	Events *events.EventBus
	Logger *zap.Logger
}

// Agent orchestrates a single run. It is safe for concurrent use; runs
// against the same root are serialised by the patch applier.
type Agent struct {
	client  Completer
	applier *patch.Applier
	opts    Options
	logger  *zap.Logger
}

// RunRequest describes one run.
type RunRequest struct {
	Root    string
	APIKey  string
	Model   string
	Prompt  string
	OnToken func(token string)
}

// RunResult is the outcome reported back to callers.
type RunResult struct {
	Success bool              `json:"success"`
	Patches []patch.FilePatch `json:"patches,omitempty"`
	Changes []patch.Change    `json:"changes,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// New creates an Agent.
func New(client Completer, applier *patch.Applier, opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if applier == nil {
		applier = patch.NewApplier(logger, nil)
	}
	return &Agent{client: client, applier: applier, opts: opts, logger: logger}
}

// Run executes req. Transport failures and workspace I/O failures are
// returned as errors. A reply that cannot be parsed, or a batch whose paths
// are refused, is reported as an unsuccessful result and nothing is written.
func (a *Agent) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if strings.TrimSpace(req.Root) == "" {
		return nil, errors.New("workspace root is required")
	}
	model := req.Model
	if model == "" {
		model = a.opts.DefaultModel
	}

	start := time.Now()
	logger := a.logger.With(zap.String("root", req.Root), zap.String("model", model))
	logger.Info("agent run started", zap.Int("prompt_len", len(req.Prompt)))

	wctx, err := BuildContext(req.Root)
	if err != nil {
		return nil, err
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: wctx.SystemMessage(a.opts.ManifestLimit)},
		{Role: llm.RoleUser, Content: req.Prompt},
	}

	text, err := a.client.Chat(ctx, llm.ChatRequest{
		Model:    model,
		APIKey:   req.APIKey,
		Messages: messages,
		Stream:   true,
	}, llm.StreamHandlers{
		OnToken: func(token string) {
			if req.OnToken != nil {
				req.OnToken(token)
			}
			a.publish(events.EventTypeStreamChunk, events.StreamChunkEvent(token))
		},
	})
	if err != nil {
		logger.Error("completion failed", zap.Error(err))
		a.publish(events.EventTypeError, events.ErrorEvent("completion failed", err))
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	patches, err := ParsePatches(text)
	if err != nil {
		logger.Warn("model reply rejected", zap.Error(err), zap.Int("reply_len", len(text)))
		return a.finish(req.Prompt, start, &RunResult{Success: false, Error: InvalidPatchFormat}), nil
	}

	report, err := a.applier.Apply(ctx, req.Root, patches)
	if err != nil {
		if errors.Is(err, patch.ErrRejected) {
			logger.Warn("patch batch rejected", zap.Error(err))
			return a.finish(req.Prompt, start, &RunResult{Success: false, Error: "patch rejected: " + err.Error()}), nil
		}
		logger.Error("patch apply failed", zap.Error(err))
		a.publish(events.EventTypeError, events.ErrorEvent("patch apply failed", err))
		return nil, fmt.Errorf("failed to apply patches: %w", err)
	}

	for _, c := range report.Changes {
		a.publish(events.EventTypeFileChanged, events.FileChangedEvent(c.Path, string(c.Action), c.Insertions, c.Deletions))
	}
	logger.Info("patches applied", zap.Int("count", len(report.Changes)), zap.String("summary", report.Summary()))

	return a.finish(req.Prompt, start, &RunResult{Success: true, Patches: patches, Changes: report.Changes}), nil
}

func (a *Agent) finish(prompt string, start time.Time, result *RunResult) *RunResult {
	a.publish(events.EventTypeQueryCompleted, events.QueryCompletedEvent(prompt, result.Success, len(result.Patches), time.Since(start)))
	return result
}

func (a *Agent) publish(eventType string, data any) {
	if a.opts.Events != nil {
		a.opts.Events.Publish(eventType, data)
	}
}
