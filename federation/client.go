package federation

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"toolhub/logger"
)

// protocolVersion is the MCP protocol revision spoken toward peers.
const protocolVersion = "2024-11-05"

// PeerClient is the protocol surface the gateway needs from one peer. The
// concrete implementation is Client; tests substitute fakes.
type PeerClient interface {
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error)
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, arguments map[string]string) (*mcp.GetPromptResult, error)
	Close() error
}

// RetryConfig defines the retry behavior for peer connections.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
	}
}

// Client wraps the underlying MCP client for one configured peer.
type Client struct {
	config      RemoteServerConfig
	mcpClient   *client.Client
	serverInfo  *mcp.Implementation
	retryConfig RetryConfig
	logger      logger.Logger
}

// NewClient creates a client for the given peer configuration. No
// connection is made until Connect.
func NewClient(config RemoteServerConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Client{
		config:      config,
		retryConfig: DefaultRetryConfig(),
		logger:      log,
	}
}

// headers assembles the configured headers plus the bearer token, if any.
func (c *Client) headers() map[string]string {
	headers := make(map[string]string, len(c.config.Headers)+1)
	for k, v := range c.config.Headers {
		headers[k] = v
	}
	if c.config.AuthToken != "" {
		headers["Authorization"] = "Bearer " + c.config.AuthToken
	}
	return headers
}

// Connect establishes the connection with bounded retries and a linear
// backoff between attempts.
func (c *Client) Connect(ctx context.Context) error {
	maxAttempts := c.retryConfig.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * c.retryConfig.InitialDelay
			c.logger.Debug("retrying peer connection",
				logger.String("peer", c.config.DisplayName()),
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
			}
		}

		err := c.connectOnce(ctx)
		if err == nil {
			c.logger.Info("connected to peer",
				logger.String("peer", c.config.DisplayName()),
				logger.String("url", c.config.BaseURL),
				logger.Int("attempt", attempt))
			return nil
		}

		lastErr = err
		c.logger.Warn("peer connection attempt failed",
			logger.String("peer", c.config.DisplayName()),
			logger.Int("attempt", attempt),
			logger.Error(err))
	}

	return fmt.Errorf("failed to connect to peer '%s' after %d attempts: %w",
		c.config.DisplayName(), maxAttempts, lastErr)
}

// connectOnce performs a single connection attempt: open the transport,
// start it, and run the MCP initialize handshake.
func (c *Client) connectOnce(ctx context.Context) error {
	var (
		mcpClient *client.Client
		err       error
	)

	switch detectProtocol(c.config.BaseURL) {
	case ProtocolSSE:
		mcpClient, err = newSSEConnector(c.config.BaseURL, c.headers(), c.logger).Connect(ctx)
	default:
		mcpClient, err = newHTTPConnector(c.config.BaseURL, c.headers(), c.logger).Connect(ctx)
	}
	if err != nil {
		return err
	}

	initResult, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "toolhub",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		_ = mcpClient.Close() // Ignore errors during cleanup
		return fmt.Errorf("failed to initialize peer connection: %w", err)
	}

	c.mcpClient = mcpClient
	c.serverInfo = &initResult.ServerInfo
	return nil
}

// ServerInfo returns the peer's implementation info once connected.
func (c *Client) ServerInfo() *mcp.Implementation {
	return c.serverInfo
}

// ListTools returns all tools the peer exposes.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if c.mcpClient == nil {
		return nil, fmt.Errorf("client not connected")
	}

	result, err := c.mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool on the peer with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	if c.mcpClient == nil {
		return nil, fmt.Errorf("client not connected")
	}

	result, err := c.mcpClient.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: arguments,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %s: %w", name, err)
	}
	return result, nil
}

// ListPrompts returns all prompts the peer exposes.
func (c *Client) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	if c.mcpClient == nil {
		return nil, fmt.Errorf("client not connected")
	}

	result, err := c.mcpClient.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	return result.Prompts, nil
}

// GetPrompt fetches a prompt from the peer.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*mcp.GetPromptResult, error) {
	if c.mcpClient == nil {
		return nil, fmt.Errorf("client not connected")
	}

	result, err := c.mcpClient.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{
			Name:      name,
			Arguments: arguments,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt %s: %w", name, err)
	}
	return result, nil
}

// Close closes the connection to the peer.
func (c *Client) Close() error {
	if c.mcpClient != nil {
		return c.mcpClient.Close()
	}
	return nil
}
