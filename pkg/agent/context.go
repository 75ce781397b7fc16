package agent

import (
	"fmt"
	"strings"

	"github.com/alantheprice/sitebuilder/pkg/workspace"
)

// SystemPrompt is the fixed instruction block sent as the system message.
const SystemPrompt = `You are an AI Website Builder agent.
You receive: user instructions + project file tree + selected files.
Your job: generate or modify files to build a complete working website.
Respond with ONLY a JSON array of patches, each of the form {"path": "relative/file/path", "content": "full new file content"}.
Never output explanations, markdown fences or any text outside the JSON array.
Use minimal changes. Preserve existing structure.`

// Context is everything the model is given about a workspace.
type Context struct {
	SystemPrompt string
	Files        []workspace.FileManifestEntry

	// ReadFile reads a workspace file on demand.
	ReadFile func(path string) (string, error)
}

// BuildContext lists root and binds a lazy reader to it. The file list is
// filtered through the workspace ignore rules.
func BuildContext(root string) (*Context, error) {
	files, err := workspace.ListFiltered(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace: %w", err)
	}

	return &Context{
		SystemPrompt: SystemPrompt,
		Files:        files,
		ReadFile: func(path string) (string, error) {
			return workspace.Read(root, path)
		},
	}, nil
}

// SystemMessage returns the system prompt, followed by up to limit manifest
// entries when limit is positive.
func (c *Context) SystemMessage(limit int) string {
	if limit <= 0 || len(c.Files) == 0 {
		return c.SystemPrompt
	}
	return c.SystemPrompt + "\n\n" + c.Manifest(limit)
}

// Manifest renders the first limit files as a plain list.
func (c *Context) Manifest(limit int) string {
	var b strings.Builder
	b.WriteString("Project files:\n")

	shown := c.Files
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, f := range shown {
		fmt.Fprintf(&b, "- %s (%d bytes)\n", f.Path, f.Size)
	}
	if omitted := len(c.Files) - len(shown); omitted > 0 {
		fmt.Fprintf(&b, "... and %d more\n", omitted)
	}
	return strings.TrimRight(b.String(), "\n")
}
