// Package federation connects to configured remote MCP peers, enumerates
// their tool and prompt catalogs, and re-exposes them under namespaced
// local identities wired through the host's middleware stack.
package federation

// RemoteServerConfig describes one federated peer. The list is static,
// supplied once at startup.
type RemoteServerConfig struct {
	ID         string            `json:"id" mapstructure:"id"`
	Label      string            `json:"label,omitempty" mapstructure:"label"`
	ToolPrefix string            `json:"tool_prefix,omitempty" mapstructure:"tool_prefix"`
	BaseURL    string            `json:"base_url" mapstructure:"base_url"`
	AuthToken  string            `json:"auth_token,omitempty" mapstructure:"auth_token"`
	Headers    map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Tags       []string          `json:"tags,omitempty" mapstructure:"tags"`
}

// DisplayName returns a human-readable name for logging.
func (c RemoteServerConfig) DisplayName() string {
	if c.Label != "" {
		return c.Label
	}
	return c.ID
}

// Prefix returns the namespace applied to this peer's proxied identities.
func (c RemoteServerConfig) Prefix() string {
	if c.ToolPrefix != "" {
		return c.ToolPrefix
	}
	return c.ID
}
