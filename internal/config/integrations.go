package config

// IntegrationsConfig configures external service integrations.
type IntegrationsConfig struct {
	// code-graph-mcp-server
	CodeGraph CodeGraphIntegration `yaml:"code_graph" json:"code_graph,omitempty"`

	// BrowserNERD
	Browser BrowserIntegration `yaml:"browser" json:"browser,omitempty"`

	// scraper_service
	Scraper ScraperIntegration `yaml:"scraper" json:"scraper,omitempty"`

	// Servers maps an MCP server id ("code_graph", "browser", "scraper", ...)
	// to its settings.
	Servers map[string]MCPServerIntegration `yaml:"servers" json:"servers,omitempty"`
}

// MCPServerIntegration configures one external MCP server.
type MCPServerIntegration struct {
	Enabled bool   `yaml:"enabled" json:"enabled,omitempty"`
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`
}

// IsServerEnabled reports whether serverID is present in Servers and enabled.
func (i IntegrationsConfig) IsServerEnabled(serverID string) bool {
	s, ok := i.Servers[serverID]
	return ok && s.Enabled
}

// CodeGraphIntegration configures the code graph MCP server.
type CodeGraphIntegration struct {
	Enabled bool   `yaml:"enabled" json:"enabled,omitempty"`
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`
}

// BrowserIntegration configures BrowserNERD.
type BrowserIntegration struct {
	Enabled bool   `yaml:"enabled" json:"enabled,omitempty"`
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`
}

// ScraperIntegration configures the scraper service.
type ScraperIntegration struct {
	Enabled bool   `yaml:"enabled" json:"enabled,omitempty"`
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`
}
