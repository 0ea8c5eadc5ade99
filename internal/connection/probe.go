package connection

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/calyptra/skillflow/internal/errdefs"
	"github.com/calyptra/skillflow/internal/model"
)

// ProbeTools spawns a locally-invoked tool server over stdio, performs
// the protocol handshake and returns its advertised tool names. Used to
// refresh a connection's tool list; hosted connections are never probed.
func ProbeTools(ctx context.Context, conn model.Connection) ([]string, error) {
	if conn.Hosted {
		return nil, errdefs.Connection(fmt.Sprintf("connection %s is hosted, not probeable", conn.Name), nil)
	}
	if conn.Command == "" {
		return nil, errdefs.Connection(fmt.Sprintf("connection %s has no command", conn.Name), nil)
	}

	c, err := client.NewStdioMCPClient(conn.Command, conn.Env, conn.Args...)
	if err != nil {
		return nil, errdefs.Connection(fmt.Sprintf("spawn tool server for %s", conn.Name), err)
	}
	defer c.Close()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "skillflow",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, errdefs.Connection(fmt.Sprintf("initialize tool server for %s", conn.Name), err)
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, errdefs.Connection(fmt.Sprintf("list tools for %s", conn.Name), err)
	}

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	return names, nil
}
