package webui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alantheprice/sitebuilder/pkg/agent"
	"github.com/alantheprice/sitebuilder/pkg/workspace"
	"go.uber.org/zap"
)

const maxRequestBody = 4 << 20

type builderRequest struct {
	Prompt string `json:"prompt"`
	APIKey string `json:"apiKey"`
	Model  string `json:"model"`
}

func (b builderRequest) complete() bool {
	return strings.TrimSpace(b.Prompt) != "" && b.APIKey != "" && b.Model != ""
}

// handleBuilder runs one agent request and answers with the result.
func (s *Server) handleBuilder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req builderRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil || !req.complete() {
		writeError(w, http.StatusBadRequest, "Missing fields")
		return
	}

	s.countQuery()
	result, err := s.opts.Agent.Run(r.Context(), agent.RunRequest{
		Root:   s.opts.Root,
		APIKey: req.APIKey,
		Model:  req.Model,
		Prompt: req.Prompt,
	})
	if err != nil {
		s.logger.Error("builder request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAgentStream runs one agent request and streams its tokens as
// server-sent events, followed by a done event carrying the result.
func (s *Server) handleAgentStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	req := builderRequest{Prompt: q.Get("prompt"), APIKey: q.Get("apiKey"), Model: q.Get("model")}
	if !req.complete() {
		http.Error(w, "Missing parameters", http.StatusBadRequest)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.countQuery()
	result, err := s.opts.Agent.Run(r.Context(), agent.RunRequest{
		Root:   s.opts.Root,
		APIKey: req.APIKey,
		Model:  req.Model,
		Prompt: req.Prompt,
		OnToken: func(token string) {
			sse.data(token)
		},
	})
	if err != nil {
		if r.Context().Err() == nil {
			s.logger.Error("agent stream failed", zap.Error(err))
		}
		sse.event("error", map[string]string{"error": "Internal error"})
		return
	}
	sse.event("done", result)
}

// handleAPIFiles lists the workspace files the agent would see.
func (s *Server) handleAPIFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	files, err := workspace.ListFiltered(s.opts.Root)
	if err != nil {
		s.logger.Error("failed to list workspace", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list files")
		return
	}
	if files == nil {
		files = []workspace.FileManifestEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "success",
		"files":   files,
	})
}

// handleAPIFile returns one workspace file.
func (s *Server) handleAPIFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := r.URL.Query().Get("path")
	content, err := workspace.Read(s.opts.Root, path)
	switch {
	case errors.Is(err, workspace.ErrPathEscape), errors.Is(err, workspace.ErrEmptyPath):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, "File not found")
		return
	case err != nil:
		s.logger.Error("failed to read file", zap.String("path", path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "success",
		"path":    path,
		"content": content,
	})
}

// handleAPIStats reports server counters.
func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	s.mutex.RLock()
	queries := s.queryCount
	s.mutex.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":      time.Since(s.startTime).String(),
		"queries":     queries,
		"connections": s.countConnections(),
		"subscribers": s.opts.Events.SubscriberCount(),
		"blocks":      len(s.store.Snapshot()),
	})
}

func (s *Server) countQuery() {
	s.mutex.Lock()
	s.queryCount++
	s.mutex.Unlock()
}

// sseWriter frames server-sent events and flushes after each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

// data writes one unnamed event. A payload containing newlines is split
// across data lines, which clients join back with "\n".
func (s *sseWriter) data(payload string) {
	var b strings.Builder
	for _, line := range strings.Split(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	io.WriteString(s.w, b.String())
	s.flusher.Flush()
}

// event writes a named event whose data is v encoded as JSON.
func (s *sseWriter) event(name string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		payload = []byte(`{}`)
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload)
	s.flusher.Flush()
}
