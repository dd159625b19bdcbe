// Package agent invokes the external coding agent for one feature
// session and classifies the ways that can fail.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/errors"
	"github.com/drover-dev/drover/internal/log"
)

// Request describes one agent invocation.
type Request struct {
	FeatureID string
	// Prompt is written to the agent's stdin verbatim.
	Prompt string
	// WorkspaceDir is the working directory for the agent process.
	WorkspaceDir string
	// ToolServers are probed for readiness before the agent starts.
	ToolServers map[string]config.ToolServer
}

// Result is the agent's structured report, decoded from its stdout.
type Result struct {
	// Changed reports whether the agent modified the tree; the loop
	// skips the commit step entirely when false.
	Changed   bool    `json:"changed"`
	Summary   string  `json:"summary"`
	SessionID string  `json:"session_id"`
	CostUSD   float64 `json:"cost_usd"`
}

// Invoker runs one agent session. Implemented by Gateway; faked in
// orchestrator tests.
type Invoker interface {
	Invoke(ctx context.Context, req *Request) (*Result, error)
}

// Gateway invokes the configured agent executable. The prompt goes in on
// stdin and a JSON Result comes back on stdout; a non-zero exit with
// stderr is a failed session.
type Gateway struct {
	cfg    *config.Config
	logger *log.Logger
	prober Prober
}

// NewGateway creates a gateway for the configured agent.
func NewGateway(cfg *config.Config, logger *log.Logger) *Gateway {
	return &Gateway{cfg: cfg, logger: logger, prober: &mcpProber{}}
}

// Invoke runs one agent session for the request's feature. Declared tool
// servers are probed first; a probe failure is transient and the agent is
// not started.
func (g *Gateway) Invoke(ctx context.Context, req *Request) (*Result, error) {
	if err := g.probeToolServers(ctx, req.ToolServers); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.InvocationTimeout())
	defer cancel()

	args := append([]string{}, g.cfg.Agent.Args...)
	if g.cfg.Agent.Model != "" {
		args = append(args, "--model", g.cfg.Agent.Model)
	}

	g.logger.Debug("invoking agent",
		"feature_id", req.FeatureID,
		"command", g.cfg.Agent.Command,
		"timeout", g.cfg.InvocationTimeout().String(),
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.cfg.Agent.Command, args...)
	cmd.Dir = req.WorkspaceDir
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, g.classifyRunError(ctx, req, err, stderr.Bytes())
	}

	var result Result
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &result); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAgentBadOutput,
			fmt.Sprintf("agent produced unparseable output for feature %s", req.FeatureID), err).
			WithClass(errors.ClassTransient).
			WithSuggestion("Check that the agent command emits a single JSON result on stdout")
	}

	g.logger.Debug("agent session finished",
		"feature_id", req.FeatureID,
		"session_id", result.SessionID,
		"changed", result.Changed,
		"cost_usd", result.CostUSD,
	)

	return &result, nil
}

func (g *Gateway) classifyRunError(ctx context.Context, req *Request, err error, stderr []byte) error {
	switch {
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.NewAgentTimeoutError(req.FeatureID, g.cfg.InvocationTimeout().String())

	case stderrors.Is(ctx.Err(), context.Canceled):
		return errors.Wrap(errors.ErrCodeAgentCancelled,
			fmt.Sprintf("agent invocation for feature %s was cancelled", req.FeatureID), ctx.Err()).
			WithClass(errors.ClassTransient)

	case stderrors.Is(err, exec.ErrNotFound):
		return errors.Wrap(errors.ErrCodeAgentNotFound,
			fmt.Sprintf("agent command %q not found", g.cfg.Agent.Command), err).
			WithClass(errors.ClassEnvironment).
			WithSuggestion("Install the agent CLI or set agent.command in drover.yaml")
	}

	msg := fmt.Sprintf("agent session for feature %s failed", req.FeatureID)
	if detail := stderrTail(stderr); detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	return errors.Wrap(errors.ErrCodeAgentFailed, msg, err).
		WithClass(errors.ClassTransient)
}

func (g *Gateway) probeToolServers(ctx context.Context, servers map[string]config.ToolServer) error {
	if len(servers) == 0 {
		return nil
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := g.prober.Probe(ctx, name, servers[name]); err != nil {
			return errors.NewToolServerUnavailableError(name, err)
		}
		g.logger.Debug("tool server ready", "tool_server", name)
	}

	return nil
}

// stderrTail keeps enough of the agent's stderr to diagnose a failure
// without flooding the backlog's last_error field.
func stderrTail(stderr []byte) string {
	const maxTail = 512

	s := strings.TrimSpace(string(stderr))
	if len(s) > maxTail {
		s = "..." + s[len(s)-maxTail:]
	}
	return s
}
