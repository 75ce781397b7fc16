// Package preview writes the rendered document to the workspace and tells
// connected viewers to reload it.
package preview

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"

	"github.com/alantheprice/sitebuilder/pkg/blocks"
	"github.com/alantheprice/sitebuilder/pkg/events"
	"github.com/alantheprice/sitebuilder/pkg/render"
	"github.com/alantheprice/sitebuilder/pkg/workspace"
	"go.uber.org/zap"
)

const (
	// Dir is the preview directory relative to the workspace root.
	Dir = "preview"
	// File is the preview document inside Dir.
	File = "index.html"
)

// Publisher renders forests to <root>/preview/index.html.
type Publisher struct {
	root   string
	bus    *events.EventBus
	logger *zap.Logger

	mu   sync.Mutex
	last [sha256.Size]byte
}

// NewPublisher creates a Publisher for root. bus may be nil, in which case
// nothing is notified.
func NewPublisher(root string, bus *events.EventBus, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{root: root, bus: bus, logger: logger}
}

// Dir returns the preview directory under root.
func (p *Publisher) Dir() string {
	return filepath.Join(p.root, Dir)
}

// Path returns the preview document path.
func (p *Publisher) Path() string {
	return filepath.Join(p.root, Dir, File)
}

// Publish renders forest, replaces the preview document atomically and then
// notifies subscribers.
func (p *Publisher) Publish(ctx context.Context, forest []blocks.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := []byte(render.HTML(forest))

	p.mu.Lock()
	err := p.write(doc)
	if err == nil {
		p.last = sha256.Sum256(doc)
	}
	p.mu.Unlock()
	if err != nil {
		p.logger.Error("failed to write preview", zap.String("path", p.Path()), zap.Error(err))
		return err
	}

	p.logger.Debug("preview written", zap.Int("bytes", len(doc)), zap.Int("blocks", len(forest)))
	p.notify("publish")
	return nil
}

func (p *Publisher) write(doc []byte) error {
	dir := p.Dir()
	rel := filepath.ToSlash(filepath.Join(Dir, File))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return &workspace.IOError{Op: "mkdir", Path: Dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".index-*.html")
	if err != nil {
		return &workspace.IOError{Op: "write", Path: rel, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		cleanup()
		return &workspace.IOError{Op: "write", Path: rel, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &workspace.IOError{Op: "write", Path: rel, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return &workspace.IOError{Op: "chmod", Path: rel, Err: err}
	}
	if err := os.Rename(tmpName, p.Path()); err != nil {
		cleanup()
		return &workspace.IOError{Op: "rename", Path: rel, Err: err}
	}
	return nil
}

// observe records content found on disk and reports whether it differs from
// what was last written or observed.
func (p *Publisher) observe(doc []byte) bool {
	sum := sha256.Sum256(doc)
	p.mu.Lock()
	defer p.mu.Unlock()
	if sum == p.last {
		return false
	}
	p.last = sum
	return true
}

func (p *Publisher) notify(source string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.EventTypePreviewUpdated, map[string]any{
		"path":   filepath.ToSlash(filepath.Join(Dir, File)),
		"source": source,
	})
}
