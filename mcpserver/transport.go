// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mcpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServeStdio serves a single session over stdin/stdout until ctx is done or
// the client disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio", "name", serverName)
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves the streamable HTTP transport. Every session shares the
// same server and therefore the same tools.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, &mcp.StreamableHTTPOptions{
		Logger: s.slog,
	})
}

// ConnectInMemory starts a session on an in-memory pipe and returns the
// client end. The session ends when the client closes its side.
func (s *Server) ConnectInMemory(ctx context.Context) (*mcp.InMemoryTransport, error) {
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	if _, err := s.mcpServer.Connect(ctx, serverTransport, nil); err != nil {
		return nil, fmt.Errorf("failed to connect in-memory MCP session: %w", err)
	}
	return clientTransport, nil
}
