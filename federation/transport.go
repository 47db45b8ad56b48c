package federation

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"toolhub/logger"
)

// ProtocolType defines the connection protocol toward a peer.
type ProtocolType string

const (
	ProtocolSSE  ProtocolType = "sse"
	ProtocolHTTP ProtocolType = "http"
)

// detectProtocol picks a transport from the peer's base URL. URLs with an
// /sse path segment use the SSE transport; everything else uses streamable
// HTTP.
func detectProtocol(baseURL string) ProtocolType {
	if strings.Contains(baseURL, "/sse") {
		return ProtocolSSE
	}
	return ProtocolHTTP
}

// httpConnector manages streamable-HTTP connections.
type httpConnector struct {
	url     string
	headers map[string]string
	logger  logger.Logger
}

func newHTTPConnector(url string, headers map[string]string, log logger.Logger) *httpConnector {
	return &httpConnector{url: url, headers: headers, logger: log}
}

// Connect creates and starts a streamable-HTTP client. Start uses a
// background context so the connection outlives the caller's deadline; the
// caller's context governs the individual MCP calls.
func (h *httpConnector) Connect(ctx context.Context) (*client.Client, error) {
	var options []transport.StreamableHTTPCOption
	if len(h.headers) > 0 {
		options = append(options, transport.WithHTTPHeaders(h.headers))
	}

	httpTransport, err := transport.NewStreamableHTTP(h.url, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP transport: %w", err)
	}

	c := client.NewClient(httpTransport)
	if err := c.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to start HTTP client: %w", err)
	}
	return c, nil
}

// sseConnector manages SSE connections.
type sseConnector struct {
	url     string
	headers map[string]string
	logger  logger.Logger
}

func newSSEConnector(url string, headers map[string]string, log logger.Logger) *sseConnector {
	return &sseConnector{url: url, headers: headers, logger: log}
}

// Connect creates and starts an SSE client. As with HTTP, Start uses a
// background context to keep the stream alive beyond the caller's deadline.
func (s *sseConnector) Connect(ctx context.Context) (*client.Client, error) {
	var options []transport.ClientOption
	if len(s.headers) > 0 {
		options = append(options, transport.WithHeaders(s.headers))
	}
	options = append(options, transport.WithSSELogger(logger.ToUtilLogger(s.logger)))

	sseTransport, err := transport.NewSSE(s.url, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSE transport: %w", err)
	}

	c := client.NewClient(sseTransport)
	if err := c.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to start SSE client: %w", err)
	}
	return c, nil
}
