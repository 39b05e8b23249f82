package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/browseragent/control-plane/pkg/protocol"
)

// Version is set at build time via -ldflags "-X github.com/browseragent/control-plane/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "browseragent",
	Short: "browseragent — LLM-facing browser automation control plane",
	Long:  "browseragent runs the task orchestration and agent control plane that lets an LLM drive a real browser: a closed set of task templates for deterministic scraping/comparison jobs, a reason-act agent loop for open-ended goals, and a run manager, artifact store, and knowledge store behind a uniform tool surface.",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json5 or $BROWSERAGENT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(doctorCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("browseragent %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("BROWSERAGENT_CONFIG"); v != "" {
		return v
	}
	return "config.json5"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
