package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with every knob set to its documented
// default.
func Default() *Config {
	return &Config{
		Providers: ProvidersConfig{
			Default:   "anthropic",
			Anthropic: ProviderConfig{Model: "claude-sonnet-4-5-20250929"},
			OpenAI:    ProviderConfig{Model: "gpt-4.1"},
		},
		Agent: AgentConfig{
			MaxIterations:        20,
			MaxConsecutiveErrors: 3,
			MaxToolCalls:         200,
			MaxDurationMs:        10 * 60 * 1000,
		},
		Conversation: ConversationConfig{
			MaxMessages:       40,
			CompressThreshold: 30,
			KeepRecent:        20,
			CharsPerToken:     4,
		},
		RunManager: RunManagerConfig{
			MaxConcurrentRuns: 10,
			MaxQueuedRuns:     100,
		},
		Knowledge: KnowledgeConfig{
			MaxDomains:             200,
			MaxPatternsPerDomain:   30,
			MaxArchivesPerDomain:   5,
			CardCache:              10,
			FlushDelayMs:           5000,
			ArchiveChangeThreshold: 0.5,
			ConfidenceDecayBase:    0.95,
			MinConfidence:          0.1,
			InjectionCharBudget:    2000,
		},
		Enrichment: EnrichmentConfig{
			DetailLevel:    "normal",
			AdaptivePolicy: true,
		},
		URLPolicy: URLPolicyConfig{
			AllowFile:    false,
			BlockPrivate: true,
		},
		Browser: BrowserConfig{
			Headless:       true,
			NavTimeoutMs:   30000,
			DefaultTimeout: 10000,
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8787,
		},
		Telemetry: TelemetryConfig{
			Enabled:  true,
			RingSize: 2000,
		},
		TrustLevel: TrustLocal,
		DataDir:    "~/.browseragent",
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays environment variables onto the config. Env
// vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	envStr("BROWSERAGENT_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("BROWSERAGENT_ANTHROPIC_BASE_URL", &c.Providers.Anthropic.APIBase)
	envStr("BROWSERAGENT_ANTHROPIC_MODEL", &c.Providers.Anthropic.Model)
	envStr("BROWSERAGENT_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("BROWSERAGENT_OPENAI_BASE_URL", &c.Providers.OpenAI.APIBase)
	envStr("BROWSERAGENT_OPENAI_MODEL", &c.Providers.OpenAI.Model)
	envStr("BROWSERAGENT_DEFAULT_PROVIDER", &c.Providers.Default)

	envInt("BROWSERAGENT_MAX_CONCURRENT_RUNS", &c.RunManager.MaxConcurrentRuns)
	envInt("BROWSERAGENT_MAX_QUEUED_RUNS", &c.RunManager.MaxQueuedRuns)
	envInt("BROWSERAGENT_MAX_ITERATIONS", &c.Agent.MaxIterations)

	envStr("BROWSERAGENT_HOST", &c.HTTP.Host)
	envInt("BROWSERAGENT_PORT", &c.HTTP.Port)

	envStr("BROWSERAGENT_DATA_DIR", &c.DataDir)
	envBool("BROWSERAGENT_HEADLESS", &c.Browser.Headless)
	envStr("BROWSERAGENT_BROWSER_BIN", &c.Browser.BinPath)
	envStr("BROWSERAGENT_BROWSER_CONTROL_URL", &c.Browser.ControlURL)

	if v := os.Getenv("BROWSERAGENT_TRUST_LEVEL"); v != "" {
		c.TrustLevel = TrustLevel(v)
	}
	envBool("BROWSERAGENT_URL_BLOCK_PRIVATE", &c.URLPolicy.BlockPrivate)
	envBool("BROWSERAGENT_URL_ALLOW_FILE", &c.URLPolicy.AllowFile)
	envBool("BROWSERAGENT_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("BROWSERAGENT_TELEMETRY_VERBOSE", &c.Telemetry.Verbose)
}

// ApplyEnvOverrides re-applies environment variable overrides, e.g. after
// a config reload from disk.
func (c *Config) ApplyEnvOverrides() { c.applyEnvOverrides() }

// Save writes the config to a JSON file (not JSON5 — round-tripping
// through the stricter encoder is intentional so the persisted file is
// always parseable by stock tooling too).
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// Hash returns a short SHA-256 digest of the config, useful for
// optimistic-concurrency checks on reload.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// DataPath expands and returns the data directory path.
func (c *Config) DataPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.DataDir)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
