package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/browseragent/control-plane/internal/orchestrator"
	"github.com/browseragent/control-plane/internal/runmanager"
)

func taskCmd() *cobra.Command {
	var (
		goal         string
		inputsJSON   string
		schemaJSON   string
		sessionID    string
		mode         string
		maxRetries   int
		maxToolCalls int
		timeoutSec   int
	)

	cmd := &cobra.Command{
		Use:   "task",
		Short: "Submit a single task request and print its outcome",
		Run: func(cmd *cobra.Command, args []string) {
			inputs, err := parseJSONObjectFlag(inputsJSON)
			if err != nil {
				fmt.Fprintln(os.Stderr, "invalid --inputs:", err)
				os.Exit(1)
			}
			schema, err := parseJSONObjectFlag(schemaJSON)
			if err != nil {
				fmt.Fprintln(os.Stderr, "invalid --schema:", err)
				os.Exit(1)
			}

			st, err := buildStack("")
			if err != nil {
				fmt.Fprintln(os.Stderr, "failed to build control plane:", err)
				os.Exit(1)
			}
			defer st.shutdown()

			ctx := context.Background()
			if timeoutSec > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
				defer cancel()
			}

			if st.mcpManager != nil {
				if err := st.mcpManager.Start(ctx); err != nil {
					st.log.Warn("mcp manager start failed", "error", err)
				}
			}

			outcome, err := st.orch.SubmitTask(ctx, orchestrator.TaskRequest{
				Goal:         goal,
				Inputs:       inputs,
				OutputSchema: schema,
				SessionID:    sessionID,
				Mode:         runmanager.Mode(mode),
				Budget:       orchestrator.Budget{MaxRetries: maxRetries, MaxToolCalls: maxToolCalls},
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, "task submission failed:", err)
				os.Exit(1)
			}
			printOutcome(outcome)
			if outcome.Run != nil && outcome.Run.Status != runmanager.StatusSucceeded {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&goal, "goal", "", "natural-language task goal")
	cmd.Flags().StringVar(&inputsJSON, "inputs", "{}", "task inputs as a JSON object")
	cmd.Flags().StringVar(&schemaJSON, "schema", "", "expected output JSON schema (optional)")
	cmd.Flags().StringVar(&sessionID, "session", "", "reuse an existing browser session id")
	cmd.Flags().StringVar(&mode, "mode", string(runmanager.ModeAuto), "run mode: sync, async, or auto")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 1, "repair-plan retries on verification failure")
	cmd.Flags().IntVar(&maxToolCalls, "max-tool-calls", 0, "stop repair attempts once total tool calls exceed this (0 = no cap)")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "overall timeout in seconds (0 = none)")
	cmd.MarkFlagRequired("goal")

	return cmd
}

func parseJSONObjectFlag(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func printOutcome(outcome *orchestrator.Outcome) {
	b, err := json.Marshal(map[string]any{
		"run":          outcome.Run,
		"verification": outcome.Verification,
		"attempts":     outcome.Attempts,
		"planSource":   outcome.PlanSource,
	})
	if err != nil {
		fmt.Println(`{"error":"failed to encode outcome"}`)
		return
	}
	fmt.Println(string(b))
}
