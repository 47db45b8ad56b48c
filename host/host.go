// Package host wires the MCP server surface: local tools and federated
// proxies are registered through the same default middleware stack
// (error boundary, tier gate, telemetry, optional response cache), and
// session lifecycle is reported to the status monitor.
package host

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"toolhub/cache"
	"toolhub/federation"
	"toolhub/logger"
	"toolhub/middleware"
	"toolhub/monitor"
	"toolhub/usage"
)

// emptyObjectSchema is used for tools registered without an input schema.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// Options configures the host server.
type Options struct {
	ServiceName    string
	ServiceVersion string

	Monitor *monitor.Monitor
	Cache   *cache.Store
	Usage   *usage.Tracker
	Logger  logger.Logger

	// TierResolver derives the caller's tier for one request. Nil means
	// every caller holds the baseline tier.
	TierResolver func(ctx context.Context) middleware.Tier
}

// ToolDefinition describes one locally registered tool.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage

	// RequiredTier gates the tool; empty means available to every tier.
	RequiredTier middleware.Tier

	// CacheTTL enables response caching when positive. CacheNamespace
	// defaults to the tool name.
	CacheTTL       time.Duration
	CacheNamespace string
}

// Server is the tool-serving host.
type Server struct {
	mcp          *server.MCPServer
	monitor      *monitor.Monitor
	cache        *cache.Store
	usage        *usage.Tracker
	logger       logger.Logger
	tierResolver func(ctx context.Context) middleware.Tier
}

// NewServer creates the host and installs session lifecycle hooks.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoop()
	}

	s := &Server{
		monitor:      opts.Monitor,
		cache:        opts.Cache,
		usage:        opts.Usage,
		logger:       opts.Logger,
		tierResolver: opts.TierResolver,
	}

	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		s.monitor.RecordSessionConnected(session.SessionID())
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		s.monitor.RecordSessionDisconnected(session.SessionID())
	})

	s.mcp = server.NewMCPServer(
		opts.ServiceName,
		opts.ServiceVersion,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks),
	)
	return s
}

// Underlying exposes the wrapped MCP server for transports.
func (s *Server) Underlying() *server.MCPServer {
	return s.mcp
}

// ServeStdio runs the host over stdio until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// RegisterTool registers a local tool behind the default middleware stack.
func (s *Server) RegisterTool(def ToolDefinition, terminal middleware.Handler) {
	stages := []middleware.Stage{
		middleware.ErrorBoundary(s.logger),
		middleware.RequireTier(def.RequiredTier, s.logger),
		middleware.Telemetry(s.monitor, nil),
	}
	if def.CacheTTL > 0 {
		namespace := def.CacheNamespace
		if namespace == "" {
			namespace = def.Name
		}
		stages = append(stages, middleware.Cached(s.cache, namespace, def.CacheTTL, nil))
	}

	handler := middleware.Compose(def.Name, terminal, stages...)
	s.addTool(def.Name, def.Description, def.InputSchema, handler)
}

// RegisterProxyTool registers a federated proxy tool. Proxies run behind
// the same default stack as local tools and are tier-agnostic.
func (s *Server) RegisterProxyTool(name, description string, inputSchema json.RawMessage, handler middleware.Handler) {
	s.RegisterTool(ToolDefinition{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	}, handler)
}

// RegisterProxyPrompt registers a federated proxy prompt under its local
// name, preserving the remote prompt's description and argument schema.
func (s *Server) RegisterProxyPrompt(name string, prompt mcp.Prompt, handler federation.PromptHandler) {
	local := mcp.Prompt{
		Name:        name,
		Description: prompt.Description,
		Arguments:   prompt.Arguments,
	}
	s.mcp.AddPrompt(local, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return handler(ctx, req.Params.Arguments)
	})
}

// addTool adapts a composed pipeline handler to the MCP tool surface. The
// caller receives either the rendered result or exactly one user-facing
// error message.
func (s *Server) addTool(name, description string, schema json.RawMessage, handler middleware.Handler) {
	if len(schema) == 0 {
		schema = emptyObjectSchema
	}
	tool := mcp.NewToolWithRawSchema(name, description, schema)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := &middleware.ToolCall{
			Name:    name,
			Args:    req.GetArguments(),
			Session: s.sessionFor(ctx),
		}

		result, err := handler(ctx, call)
		if err != nil {
			if ue, ok := middleware.AsUserError(err); ok {
				return mcp.NewToolResultError(ue.Message), nil
			}
			// The error boundary normalizes everything; this is a
			// safety net for stacks assembled without it.
			s.logger.Error("unnormalized tool error", err, logger.String("tool", name))
			return mcp.NewToolResultError("The tool " + name + " failed unexpectedly."), nil
		}

		if s.usage != nil && call.Session != nil {
			s.usage.RecordCall(ctx, call.Session.ID, name)
		}
		return mcp.NewToolResultText(result), nil
	})
}

// sessionFor builds the per-call session from the MCP client session, if
// any, resolving the caller's tier.
func (s *Server) sessionFor(ctx context.Context) *middleware.Session {
	sess := &middleware.Session{Logger: s.logger}
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		sess.ID = s.monitor.RecordSessionConnected(cs.SessionID())
	}
	if s.tierResolver != nil {
		sess.Tier = s.tierResolver(ctx)
	}
	if sess.Tier != "" && sess.ID != "" {
		s.monitor.AnnotateSession(sess.ID, string(sess.Tier), "", "")
	}
	return sess
}
