// Package config loads and resolves the orchestrator's configuration:
// LLM credentials, agent loop bounds, conversation limits, run manager
// concurrency, knowledge store tuning, enrichment policy, URL validation,
// and the HTTP surface. Files are JSON5 with environment overrides
// layered on top.
package config

import "sync"

// TrustLevel gates capability-sensitive templates (login_keep_session
// requires "local").
type TrustLevel string

const (
	TrustLocal  TrustLevel = "local"
	TrustRemote TrustLevel = "remote"
)

// Config is the root configuration for the browser agent control plane.
type Config struct {
	Providers    ProvidersConfig    `json:"providers"`
	Agent        AgentConfig        `json:"agent"`
	Conversation ConversationConfig `json:"conversation"`
	RunManager   RunManagerConfig   `json:"runManager"`
	Knowledge    KnowledgeConfig    `json:"knowledge"`
	Enrichment   EnrichmentConfig   `json:"enrichment"`
	URLPolicy    URLPolicyConfig    `json:"urlValidation"`
	Browser      BrowserConfig      `json:"browser"`
	HTTP         HTTPConfig         `json:"http"`
	MCP          map[string]MCPServerConfig `json:"mcpServers,omitempty"`
	Telemetry    TelemetryConfig    `json:"telemetry"`
	TrustLevel   TrustLevel         `json:"trustLevel"`
	DataDir      string             `json:"dataDir"`

	mu sync.RWMutex
}

// ProviderConfig is one LLM backend's credentials.
type ProviderConfig struct {
	APIBase string `json:"apiBase,omitempty"`
	APIKey  string `json:"-"`
	Model   string `json:"model,omitempty"`
}

// ProvidersConfig holds every configured LLM backend plus the default one
// the agent loop and planner llm_fallback use.
type ProvidersConfig struct {
	Default   string         `json:"default"`
	Anthropic ProviderConfig `json:"anthropic"`
	OpenAI    ProviderConfig `json:"openai"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxIterations        int   `json:"maxIterations"`
	MaxConsecutiveErrors int   `json:"maxConsecutiveErrors"`
	MaxToolCalls         int   `json:"maxToolCalls"`
	MaxDurationMs        int64 `json:"maxDurationMs"`
}

// ConversationConfig bounds the Conversation Manager.
type ConversationConfig struct {
	MaxMessages       int `json:"maxMessages"`
	CompressThreshold int `json:"compressThreshold"`
	KeepRecent        int `json:"keepRecent"`
	CharsPerToken      int `json:"charsPerToken"`
}

// RunManagerConfig bounds run concurrency and backpressure.
type RunManagerConfig struct {
	MaxConcurrentRuns int `json:"maxConcurrentRuns"`
	MaxQueuedRuns     int `json:"maxQueuedRuns"`
}

// KnowledgeConfig tunes the Knowledge Store.
type KnowledgeConfig struct {
	MaxDomains             int     `json:"maxDomains"`
	MaxPatternsPerDomain   int     `json:"maxPatternsPerDomain"`
	MaxArchivesPerDomain   int     `json:"maxArchivesPerDomain"`
	CardCache              int     `json:"cardCache"`
	FlushDelayMs           int     `json:"flushDelayMs"`
	ArchiveChangeThreshold float64 `json:"archiveChangeThreshold"`
	ConfidenceDecayBase    float64 `json:"confidenceDecayBase"`
	MinConfidence          float64 `json:"minConfidence"`
	InjectionCharBudget    int     `json:"injectionCharBudget"`
}

// EnrichmentConfig tunes the Result Enricher's detail policy.
type EnrichmentConfig struct {
	DetailLevel    string `json:"detailLevel"` // brief|normal|full
	AdaptivePolicy bool   `json:"adaptivePolicy"`
}

// URLPolicyConfig tunes URL validation at the tool surface boundary.
type URLPolicyConfig struct {
	AllowFile    bool `json:"allowFile"`
	BlockPrivate bool `json:"blockPrivate"`
}

// BrowserConfig controls the underlying go-rod driver.
type BrowserConfig struct {
	Headless       bool   `json:"headless"`
	BinPath        string `json:"binPath,omitempty"`
	ControlURL     string `json:"controlUrl,omitempty"` // connect to an already-running Chrome instead of launching
	NavTimeoutMs   int    `json:"navTimeoutMs"`
	DefaultTimeout int    `json:"defaultTimeoutMs"`
}

// HTTPConfig controls the REST/SSE surface.
type HTTPConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// MCPServerConfig describes one external MCP server whose tools are
// bridged into the tool catalog.
type MCPServerConfig struct {
	Transport  string            `json:"transport"` // "stdio", "sse" or "streamable-http"
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	URL        string            `json:"url,omitempty"`
	Enabled    bool              `json:"enabled"`
	ToolPrefix string            `json:"toolPrefix,omitempty"`
	TimeoutSec int               `json:"timeoutSec,omitempty"`
}

// IsEnabled reports whether this MCP server should be connected.
func (c MCPServerConfig) IsEnabled() bool { return c.Enabled }

// TelemetryConfig controls the in-memory span collector (internal/tracing).
type TelemetryConfig struct {
	Enabled bool `json:"enabled"`
	Verbose bool `json:"verbose"`
	RingSize int `json:"ringSize"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Providers = src.Providers
	c.Agent = src.Agent
	c.Conversation = src.Conversation
	c.RunManager = src.RunManager
	c.Knowledge = src.Knowledge
	c.Enrichment = src.Enrichment
	c.URLPolicy = src.URLPolicy
	c.Browser = src.Browser
	c.HTTP = src.HTTP
	c.MCP = src.MCP
	c.Telemetry = src.Telemetry
	c.TrustLevel = src.TrustLevel
	c.DataDir = src.DataDir
}
