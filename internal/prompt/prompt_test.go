package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/feature"
)

func TestBuild(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InitScript = "./scripts/dev.sh"
	cfg.ToolServers = map[string]config.ToolServer{
		"playwright": {Command: "npx", Args: []string{"@playwright/mcp@latest"}},
	}

	f := &feature.Feature{
		ID:          "feat-2",
		Title:       "Add request logging",
		Description: "Log every request with method, path, and latency.",
		Steps:       []string{"Add middleware", "Wire it into the router", "Cover with a test"},
	}

	got, err := Build(f, cfg)
	require.NoError(t, err)

	assert.Contains(t, got, "Implement Feature feat-2: Add request logging")
	assert.Contains(t, got, "Log every request with method, path, and latency.")
	assert.Contains(t, got, "1. Add middleware")
	assert.Contains(t, got, "3. Cover with a test")
	assert.Contains(t, got, "Run `./scripts/dev.sh`")
	assert.Contains(t, got, "tool servers are available for verification: playwright")
	assert.Contains(t, got, cfg.ProgressFile)
	assert.Contains(t, got, "One feature per session")
}

func TestBuildMinimalFeature(t *testing.T) {
	cfg := config.DefaultConfig()
	f := &feature.Feature{ID: "feat-1", Title: "Bootstrap project"}

	got, err := Build(f, cfg)
	require.NoError(t, err)

	assert.Contains(t, got, "Implement Feature feat-1: Bootstrap project")
	assert.NotContains(t, got, "Implementation Steps", "steps section omitted when empty")
	assert.NotContains(t, got, "tool servers", "tool instruction omitted when none declared")
}
