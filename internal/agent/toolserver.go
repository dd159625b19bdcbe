package agent

import (
	"context"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/guard"
)

// probeTimeout bounds one readiness check. Tool servers answer a ping
// within seconds or they are not going to answer at all.
const probeTimeout = 15 * time.Second

// Prober checks that a declared tool server is reachable.
type Prober interface {
	Probe(ctx context.Context, name string, ts config.ToolServer) error
}

// mcpProber launches the tool server process, performs the MCP handshake
// over stdio, and pings it once.
type mcpProber struct{}

func (mcpProber) Probe(ctx context.Context, name string, ts config.ToolServer) error {
	if err := guard.CheckArgv(ts.Command, ts.Args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "drover", Version: "dev"}, nil)
	transport := &mcp.CommandTransport{Command: exec.CommandContext(ctx, ts.Command, ts.Args...)}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return err
	}
	defer session.Close()

	return session.Ping(ctx, nil)
}
