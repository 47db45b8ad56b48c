package federation

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"toolhub/logger"
	"toolhub/middleware"
)

// PeerState tracks one peer through bring-up.
type PeerState string

const (
	StatePending           PeerState = "pending"
	StateConnecting        PeerState = "connecting"
	StateConnected         PeerState = "connected"
	StateToolsRegistered   PeerState = "tools_registered"
	StatePromptsRegistered PeerState = "prompts_registered"
	StatePromptsSkipped    PeerState = "prompts_skipped"
	StateActive            PeerState = "active"
	StateConnectFailed     PeerState = "connect_failed"
	StateSkipped           PeerState = "skipped"
)

// OutcomeRegistered and OutcomeSkipped are the two terminal statuses a peer
// bring-up can report.
const (
	OutcomeRegistered = "registered"
	OutcomeSkipped    = "skipped"
)

// PromptHandler serves one proxied prompt.
type PromptHandler func(ctx context.Context, arguments map[string]string) (*mcp.GetPromptResult, error)

// Registrar is the host-side surface the gateway registers proxies against.
// Implementations wrap each proxy tool in the host's default middleware
// stack.
type Registrar interface {
	RegisterProxyTool(name, description string, inputSchema json.RawMessage, handler middleware.Handler)
	RegisterProxyPrompt(name string, prompt mcp.Prompt, handler PromptHandler)
}

// PeerOutcome reports the result of one peer's bring-up.
type PeerOutcome struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	ToolCount   int    `json:"toolCount"`
	PromptCount int    `json:"promptCount"`
}

// DialFunc opens a client toward one configured peer.
type DialFunc func(config RemoteServerConfig, log logger.Logger) PeerClient

// Gateway owns the connection lifecycle of all configured peers.
type Gateway struct {
	configs   []RemoteServerConfig
	registrar Registrar
	logger    logger.Logger
	dial      DialFunc

	mu       sync.Mutex
	handles  []*peerHandle
	disposed bool
}

type peerHandle struct {
	config RemoteServerConfig
	client PeerClient
	state  PeerState
}

// NewGateway creates a gateway for the given static peer list.
func NewGateway(configs []RemoteServerConfig, registrar Registrar, log logger.Logger) *Gateway {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Gateway{
		configs:   configs,
		registrar: registrar,
		logger:    log,
		dial: func(config RemoteServerConfig, log logger.Logger) PeerClient {
			return NewClient(config, log)
		},
	}
}

// WithDialer overrides how peer clients are opened. Tests use this to
// substitute fakes.
func (g *Gateway) WithDialer(dial DialFunc) *Gateway {
	g.dial = dial
	return g
}

// RegisterAll brings up every configured peer concurrently and returns one
// outcome per peer, in configuration order. A peer's failure is isolated:
// it yields a skipped outcome with a reason and never aborts the others. No
// error escapes.
func (g *Gateway) RegisterAll(ctx context.Context) []PeerOutcome {
	outcomes := make([]PeerOutcome, len(g.configs))

	var wg sync.WaitGroup
	for i, config := range g.configs {
		wg.Add(1)
		go func(i int, config RemoteServerConfig) {
			defer wg.Done()
			outcomes[i] = g.registerPeer(ctx, config)
		}(i, config)
	}
	wg.Wait()

	registered, skipped := 0, 0
	for _, outcome := range outcomes {
		if outcome.Status == OutcomeRegistered {
			registered++
		} else {
			skipped++
		}
	}
	g.logger.Info("peer registration finished",
		logger.Int("registered", registered),
		logger.Int("skipped", skipped))

	return outcomes
}

// registerPeer walks one peer through the bring-up state machine. Every
// failure path is contained here and reported as a skipped outcome.
func (g *Gateway) registerPeer(ctx context.Context, config RemoteServerConfig) PeerOutcome {
	handle := &peerHandle{config: config, state: StatePending}
	peerLog := g.logger.With(logger.String("peer", config.DisplayName()))

	handle.state = StateConnecting
	client := g.dial(config, peerLog)
	if err := client.Connect(ctx); err != nil {
		handle.state = StateConnectFailed
		peerLog.Warn("skipping peer: connection failed", logger.Error(err))
		handle.state = StateSkipped
		return PeerOutcome{
			ID:     config.ID,
			Status: OutcomeSkipped,
			Reason: err.Error(),
		}
	}
	handle.client = client
	handle.state = StateConnected

	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		_ = client.Close()
		handle.state = StateSkipped
		return PeerOutcome{
			ID:     config.ID,
			Status: OutcomeSkipped,
			Reason: "gateway disposed during bring-up",
		}
	}
	g.handles = append(g.handles, handle)
	g.mu.Unlock()

	tools, err := client.ListTools(ctx)
	if err != nil {
		handle.state = StateSkipped
		peerLog.Warn("skipping peer: tool enumeration failed", logger.Error(err))
		return PeerOutcome{
			ID:     config.ID,
			Status: OutcomeSkipped,
			Reason: err.Error(),
		}
	}

	prefix := config.Prefix()
	for _, tool := range tools {
		localName := LocalName(prefix, tool.Name)
		schema, marshalErr := json.Marshal(tool.InputSchema)
		if marshalErr != nil {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		g.registrar.RegisterProxyTool(localName, tool.Description, schema,
			g.proxyToolHandler(handle, tool.Name))
	}
	handle.state = StateToolsRegistered
	peerLog.Info("registered proxied tools", logger.Int("tool_count", len(tools)))

	// Prompt enumeration is best-effort: a failure here must not undo the
	// tool registration above.
	promptCount := 0
	prompts, err := client.ListPrompts(ctx)
	if err != nil {
		handle.state = StatePromptsSkipped
		peerLog.Warn("prompt enumeration failed, continuing without prompts", logger.Error(err))
	} else {
		for _, prompt := range prompts {
			localName := LocalName(prefix, prompt.Name)
			g.registrar.RegisterProxyPrompt(localName, prompt,
				g.proxyPromptHandler(handle, prompt.Name))
		}
		promptCount = len(prompts)
		handle.state = StatePromptsRegistered
	}

	handle.state = StateActive
	return PeerOutcome{
		ID:          config.ID,
		Status:      OutcomeRegistered,
		ToolCount:   len(tools),
		PromptCount: promptCount,
	}
}

// proxyToolHandler forwards an invocation to the peer under the original
// unprefixed name with the caller's arguments verbatim. The caller only
// ever sees an extracted error message, never the raw peer payload.
func (g *Gateway) proxyToolHandler(handle *peerHandle, remoteName string) middleware.Handler {
	return func(ctx context.Context, call *middleware.ToolCall) (string, error) {
		requestID := uuid.NewString()

		result, err := handle.client.CallTool(ctx, remoteName, call.Args)
		if err != nil {
			g.logger.Error("remote tool call failed", err,
				logger.String("peer", handle.config.DisplayName()),
				logger.String("tool", remoteName),
				logger.String("request_id", requestID))
			return "", middleware.NewUserErrorf(
				"The remote tool %s is currently unavailable.", call.Name)
		}
		if result != nil && result.IsError {
			return "", middleware.NewUserError(ExtractErrorMessage(result))
		}
		return RenderResult(result), nil
	}
}

// proxyPromptHandler performs the getPrompt round-trip, filtering empty
// optional argument values before sending.
func (g *Gateway) proxyPromptHandler(handle *peerHandle, remoteName string) PromptHandler {
	return func(ctx context.Context, arguments map[string]string) (*mcp.GetPromptResult, error) {
		requestID := uuid.NewString()

		filtered := make(map[string]string, len(arguments))
		for k, v := range arguments {
			if v != "" {
				filtered[k] = v
			}
		}

		result, err := handle.client.GetPrompt(ctx, remoteName, filtered)
		if err != nil {
			g.logger.Error("remote prompt fetch failed", err,
				logger.String("peer", handle.config.DisplayName()),
				logger.String("prompt", remoteName),
				logger.String("request_id", requestID))
			return nil, middleware.NewUserErrorf(
				"The remote prompt %s is currently unavailable.", remoteName)
		}
		return result, nil
	}
}

// Peers returns the current state of every peer the gateway holds a
// connection for.
func (g *Gateway) Peers() map[string]PeerState {
	g.mu.Lock()
	defer g.mu.Unlock()

	states := make(map[string]PeerState, len(g.handles))
	for _, handle := range g.handles {
		states[handle.config.ID] = handle.state
	}
	return states
}

// Dispose closes every live peer connection. It is idempotent: repeated
// triggers (explicit stop, signals) run the teardown exactly once.
func (g *Gateway) Dispose() {
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return
	}
	g.disposed = true
	handles := g.handles
	g.handles = nil
	g.mu.Unlock()

	for _, handle := range handles {
		if handle.client == nil {
			continue
		}
		if err := handle.client.Close(); err != nil {
			g.logger.Warn("error closing peer connection",
				logger.String("peer", handle.config.DisplayName()),
				logger.Error(err))
		}
	}
	if len(handles) > 0 {
		g.logger.Info("closed peer connections", logger.Int("count", len(handles)))
	}
}
