package agent

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/errors"
	"github.com/drover-dev/drover/internal/log"
)

type fakeProber struct {
	err    error
	probed []string
}

func (p *fakeProber) Probe(_ context.Context, name string, _ config.ToolServer) error {
	p.probed = append(p.probed, name)
	return p.err
}

// shAgent builds a gateway whose "agent" is an inline shell script.
func shAgent(t *testing.T, script string) *Gateway {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ProjectDir = t.TempDir()
	cfg.Agent = config.Agent{Command: "sh", Args: []string{"-c", script}}
	return &Gateway{cfg: cfg, logger: log.Default(), prober: &fakeProber{}}
}

func TestInvokeSuccess(t *testing.T) {
	g := shAgent(t, `cat >/dev/null; printf '{"changed":true,"summary":"added endpoint","session_id":"s-42","cost_usd":0.31}'`)

	result, err := g.Invoke(context.Background(), &Request{
		FeatureID:    "feat-1",
		Prompt:       "implement it",
		WorkspaceDir: g.cfg.ProjectDir,
	})
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, "added endpoint", result.Summary)
	assert.Equal(t, "s-42", result.SessionID)
	assert.InDelta(t, 0.31, result.CostUSD, 1e-9)
}

func TestInvokeNonZeroExit(t *testing.T) {
	g := shAgent(t, `echo "model overloaded" >&2; exit 1`)

	_, err := g.Invoke(context.Background(), &Request{FeatureID: "feat-1", WorkspaceDir: g.cfg.ProjectDir})
	require.Error(t, err)

	var derr *errors.DroverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, errors.ErrCodeAgentFailed, derr.Code)
	assert.Equal(t, errors.ClassTransient, derr.Class)
	assert.Contains(t, derr.Message, "model overloaded")
}

func TestInvokeBadOutput(t *testing.T) {
	g := shAgent(t, `cat >/dev/null; echo "this is not json"`)

	_, err := g.Invoke(context.Background(), &Request{FeatureID: "feat-1", WorkspaceDir: g.cfg.ProjectDir})
	require.Error(t, err)

	var derr *errors.DroverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, errors.ErrCodeAgentBadOutput, derr.Code)
	assert.True(t, errors.IsTransient(err))
}

func TestInvokeTimeout(t *testing.T) {
	g := shAgent(t, `sleep 5`)
	g.cfg.InvocationTimeoutSeconds = 1

	_, err := g.Invoke(context.Background(), &Request{FeatureID: "feat-1", WorkspaceDir: g.cfg.ProjectDir})
	require.Error(t, err)

	var derr *errors.DroverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, errors.ErrCodeAgentTimeout, derr.Code)
	assert.True(t, errors.IsTransient(err))
}

func TestInvokeCommandNotFound(t *testing.T) {
	g := shAgent(t, "")
	g.cfg.Agent = config.Agent{Command: "drover-no-such-agent-binary"}

	_, err := g.Invoke(context.Background(), &Request{FeatureID: "feat-1", WorkspaceDir: g.cfg.ProjectDir})
	require.Error(t, err)

	var derr *errors.DroverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, errors.ErrCodeAgentNotFound, derr.Code)
	assert.True(t, errors.IsEnvironment(err))
}

func TestInvokeToolServerProbeFailure(t *testing.T) {
	g := shAgent(t, `cat >/dev/null; touch agent-ran; printf '{}'`)
	g.prober = &fakeProber{err: stderrors.New("connection refused")}

	_, err := g.Invoke(context.Background(), &Request{
		FeatureID:    "feat-1",
		WorkspaceDir: g.cfg.ProjectDir,
		ToolServers:  map[string]config.ToolServer{"playwright": {Command: "npx"}},
	})
	require.Error(t, err)

	var derr *errors.DroverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, errors.ErrCodeToolServerUnavailable, derr.Code)
	assert.True(t, errors.IsTransient(err))

	assert.NoFileExists(t, g.cfg.ProjectDir+"/agent-ran", "agent must not start when a probe fails")
}

func TestInvokeProbesInNameOrder(t *testing.T) {
	g := shAgent(t, `cat >/dev/null; printf '{}'`)
	prober := &fakeProber{}
	g.prober = prober

	_, err := g.Invoke(context.Background(), &Request{
		FeatureID:    "feat-1",
		WorkspaceDir: g.cfg.ProjectDir,
		ToolServers: map[string]config.ToolServer{
			"zeta":  {Command: "zeta-server"},
			"alpha": {Command: "alpha-server"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, prober.probed)
}
