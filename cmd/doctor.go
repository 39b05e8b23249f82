package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/browseragent/control-plane/internal/config"
	"github.com/browseragent/control-plane/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and environment health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("browseragent doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println("  (not found, defaults + env overrides apply)")
	} else {
		fmt.Println("  (found)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  ERROR loading config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  Hash:     %s\n", cfg.Hash())
	fmt.Println()

	ok := true

	fmt.Println("  Providers:")
	checkProvider("anthropic", cfg.Providers.Anthropic.APIKey, cfg.Providers.Default == "anthropic" || cfg.Providers.Default == "", &ok)
	checkProvider("openai", cfg.Providers.OpenAI.APIKey, cfg.Providers.Default == "openai", &ok)

	fmt.Println()
	fmt.Println("  Browser:")
	fmt.Printf("    headless:     %v\n", cfg.Browser.Headless)
	if cfg.Browser.BinPath != "" {
		if _, err := os.Stat(cfg.Browser.BinPath); err != nil {
			fmt.Printf("    [FAIL] binPath %q is not accessible: %v\n", cfg.Browser.BinPath, err)
			ok = false
		} else {
			fmt.Printf("    [OK]   binPath %q\n", cfg.Browser.BinPath)
		}
	} else if cfg.Browser.ControlURL != "" {
		fmt.Printf("    [OK]   controlUrl %q (remote Chrome, not probed)\n", cfg.Browser.ControlURL)
	} else {
		fmt.Println("    [OK]   no binPath/controlUrl set; rod will auto-download/launch a local browser")
	}

	fmt.Println()
	fmt.Println("  Data directory:")
	dataDir := config.ExpandHome(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fmt.Printf("    [FAIL] %s is not writable: %v\n", dataDir, err)
		ok = false
	} else {
		fmt.Printf("    [OK]   %s\n", dataDir)
	}

	fmt.Println()
	fmt.Printf("  Trust level: %s\n", cfg.TrustLevel)
	if cfg.TrustLevel != config.TrustLocal && cfg.TrustLevel != config.TrustRemote {
		fmt.Printf("    [FAIL] unrecognized trust level %q\n", cfg.TrustLevel)
		ok = false
	}

	if len(cfg.MCP) > 0 {
		fmt.Println()
		fmt.Println("  MCP servers:")
		for name, mc := range cfg.MCP {
			state := "disabled"
			if mc.IsEnabled() {
				state = "enabled"
			}
			fmt.Printf("    %s: transport=%s %s\n", name, mc.Transport, state)
		}
	}

	fmt.Println()
	if ok {
		fmt.Println("  All checks passed.")
	} else {
		fmt.Println("  One or more checks failed.")
		os.Exit(1)
	}
}

func checkProvider(name, apiKey string, isDefault bool, ok *bool) {
	switch {
	case apiKey != "":
		marker := ""
		if isDefault {
			marker = " (default)"
		}
		fmt.Printf("    [OK]   %s api key set%s\n", name, marker)
	case isDefault:
		fmt.Printf("    [FAIL] %s is the default provider but has no api key configured\n", name)
		*ok = false
	default:
		fmt.Printf("    [--]   %s api key not set\n", name)
	}
}
