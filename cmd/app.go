package cmd

import (
	"fmt"
	"os"

	"github.com/alantheprice/sitebuilder/pkg/agent"
	"github.com/alantheprice/sitebuilder/pkg/events"
	"github.com/alantheprice/sitebuilder/pkg/llm"
	"github.com/alantheprice/sitebuilder/pkg/patch"
	"github.com/alantheprice/sitebuilder/pkg/workspace"
	"go.uber.org/zap"
)

// workspaceRoot resolves the configured workspace and makes sure it exists.
func workspaceRoot() (string, error) {
	root, err := cfg.WorkspaceRoot()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace %s: %w", root, err)
	}
	return root, nil
}

// newAgent wires the model client and patch applier from cfg.
func newAgent(bus *events.EventBus, locker *workspace.Locker) *agent.Agent {
	clientOpts := cfg.LLM.ClientOptions()
	clientOpts.Logger = logger.Named("llm")

	log := logger.Named("agent")
	return agent.New(llm.NewClient(clientOpts), patch.NewApplier(log, locker), agent.Options{
		DefaultModel:  cfg.LLM.Model,
		ManifestLimit: cfg.Agent.ManifestLimit,
		Events:        bus,
		Logger:        log,
	})
}

func zapRoot(root string) zap.Field {
	return zap.String("workspace", root)
}
