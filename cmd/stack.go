package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/browseragent/control-plane/internal/agent"
	"github.com/browseragent/control-plane/internal/artifact"
	"github.com/browseragent/control-plane/internal/browser"
	"github.com/browseragent/control-plane/internal/budget"
	"github.com/browseragent/control-plane/internal/config"
	"github.com/browseragent/control-plane/internal/conversation"
	"github.com/browseragent/control-plane/internal/enrich"
	"github.com/browseragent/control-plane/internal/httpapi"
	"github.com/browseragent/control-plane/internal/knowledge"
	"github.com/browseragent/control-plane/internal/mcp"
	"github.com/browseragent/control-plane/internal/metrics"
	"github.com/browseragent/control-plane/internal/orchestrator"
	"github.com/browseragent/control-plane/internal/planner"
	"github.com/browseragent/control-plane/internal/providers"
	"github.com/browseragent/control-plane/internal/runmanager"
	"github.com/browseragent/control-plane/internal/tools"
	"github.com/browseragent/control-plane/internal/toolsurface"
	"github.com/browseragent/control-plane/internal/tracing"
)

// stack bundles every component runGateway-style wiring produces, plus
// what a graceful shutdown needs to unwind it.
type stack struct {
	cfg          *config.Config
	log          *slog.Logger
	registry     *tools.Registry
	surface      *toolsurface.Surface
	runs         *runmanager.Manager
	artifacts    *artifact.Store
	knowledgeStore *knowledge.Store
	metrics      *metrics.Metrics
	mcpManager   *mcp.Manager
	orch         *orchestrator.Orchestrator
	driver       browser.Driver
	events       *httpapi.EventHub
}

// buildStack loads config (from resolveConfigPath, unless override is
// non-empty) and wires every component the orchestrator needs: driver,
// stores, registry/surface, templates, providers, planner, orchestrator.
func buildStack(override string) (*stack, error) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	cfgPath := override
	if cfgPath == "" {
		cfgPath = resolveConfigPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	driver, err := browser.NewRodDriver(cfg.Browser.Headless, cfg.Browser.BinPath, cfg.Browser.ControlURL, log)
	if err != nil {
		return nil, fmt.Errorf("start browser driver: %w", err)
	}

	urlPolicy := browser.URLPolicy{AllowFile: cfg.URLPolicy.AllowFile, BlockPrivate: cfg.URLPolicy.BlockPrivate}

	m := metrics.New(prometheus.DefaultRegisterer)

	artifacts := artifact.New(1000, 256*1024*1024)

	dataDir := config.ExpandHome(cfg.DataDir)
	knowledgeStore := knowledge.New(knowledge.Config{
		MaxDomains:             cfg.Knowledge.MaxDomains,
		MaxPatternsPerDomain:   cfg.Knowledge.MaxPatternsPerDomain,
		MaxArchivesPerDomain:   cfg.Knowledge.MaxArchivesPerDomain,
		CardCache:              cfg.Knowledge.CardCache,
		FlushDelayMs:           cfg.Knowledge.FlushDelayMs,
		ArchiveChangeThreshold: cfg.Knowledge.ArchiveChangeThreshold,
		ConfidenceDecayBase:    cfg.Knowledge.ConfidenceDecayBase,
		MinConfidence:          cfg.Knowledge.MinConfidence,
		InjectionCharBudget:    cfg.Knowledge.InjectionCharBudget,
	}, dataDir, log)

	runs := runmanager.New(cfg.RunManager.MaxConcurrentRuns, cfg.RunManager.MaxQueuedRuns, m, log)

	registry := tools.NewRegistry()

	surface := toolsurface.New(registry, toolsurface.Options{
		Driver:            driver,
		URLPolicy:         urlPolicy,
		Runs:              runs,
		Artifacts:         artifacts,
		TrustLevel:        cfg.TrustLevel,
		MaxConcurrentRuns: cfg.RunManager.MaxConcurrentRuns,
	})
	tpl := surface.Templates()

	var mcpManager *mcp.Manager
	if len(cfg.MCP) > 0 {
		mcpManager = mcp.NewManager(registry, cfg.MCP)
	}

	provider, model, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	plan := planner.New(nil, false)
	events := httpapi.NewEventHub()

	newLoop := func() *agent.Loop {
		return agent.New(agent.Config{
			Provider: provider,
			Model:    model,
			Tools:    registry,
			MaxIterations:        cfg.Agent.MaxIterations,
			MaxConsecutiveErrors: cfg.Agent.MaxConsecutiveErrors,
			MaxToolCalls:         cfg.Agent.MaxToolCalls,
			MaxDurationMs:        cfg.Agent.MaxDurationMs,
			Conversation: conversation.Config{
				MaxMessages:       cfg.Conversation.MaxMessages,
				CompressThreshold: cfg.Conversation.CompressThreshold,
				KeepRecent:        cfg.Conversation.KeepRecent,
				CharsPerToken:     cfg.Conversation.CharsPerToken,
			},
			Budget:         budget.New(nil),
			Enricher:       enrich.New(),
			TraceCollector: tracing.NewCollector(cfg.Telemetry.RingSize, cfg.Telemetry.Verbose),
			OnEvent:        events.Publish,
			Log:            log,
		})
	}

	orch := orchestrator.New(orchestrator.Options{
		Planner:        plan,
		Runs:           runs,
		Templates:      tpl,
		NewLoop:        newLoop,
		Knowledge:      knowledgeStore,
		DetailLevel:    enrich.DetailLevel(cfg.Enrichment.DetailLevel),
		AdaptiveDetail: cfg.Enrichment.AdaptivePolicy,
		Log:            log,
	})

	return &stack{
		cfg: cfg, log: log, registry: registry, surface: surface, runs: runs,
		artifacts: artifacts, knowledgeStore: knowledgeStore, metrics: m,
		mcpManager: mcpManager, orch: orch, driver: driver, events: events,
	}, nil
}

// buildProvider picks the configured default provider.
func buildProvider(cfg *config.Config) (providers.Provider, string, error) {
	switch cfg.Providers.Default {
	case "openai":
		p := cfg.Providers.OpenAI
		if p.APIKey == "" {
			return nil, "", fmt.Errorf("providers.openai.apiKey is not set")
		}
		prov := providers.NewOpenAIProvider("openai", p.APIKey, p.APIBase, p.Model)
		return prov, prov.DefaultModel(), nil
	case "anthropic", "":
		p := cfg.Providers.Anthropic
		if p.APIKey == "" {
			return nil, "", fmt.Errorf("providers.anthropic.apiKey is not set")
		}
		opts := []providers.AnthropicOption{}
		if p.Model != "" {
			opts = append(opts, providers.WithAnthropicModel(p.Model))
		}
		if p.APIBase != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(p.APIBase))
		}
		prov := providers.NewAnthropicProvider(p.APIKey, opts...)
		return prov, prov.DefaultModel(), nil
	default:
		return nil, "", fmt.Errorf("unknown providers.default %q", cfg.Providers.Default)
	}
}

// runKnowledgeMaintenance periodically purges patterns whose effective
// confidence has decayed below the configured floor. Runs until ctx is canceled.
func (s *stack) runKnowledgeMaintenance(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.knowledgeStore.Maintain(); err != nil {
				s.log.Warn("knowledge maintenance failed", "error", err)
			}
		}
	}
}

// shutdown unwinds the stack in reverse construction order.
func (s *stack) shutdown() {
	if s.mcpManager != nil {
		s.mcpManager.Stop()
	}
	s.runs.Dispose()
	s.knowledgeStore.FlushNow()
	if err := s.driver.Close(); err != nil {
		s.log.Error("browser driver close failed", "error", err)
	}
}
