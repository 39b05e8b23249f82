package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/browseragent/control-plane/internal/httpapi"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the REST/SSE control plane and block until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	st, err := buildStack("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build control plane:", err)
		os.Exit(1)
	}
	defer st.shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if st.mcpManager != nil {
		if err := st.mcpManager.Start(ctx); err != nil {
			st.log.Error("mcp manager start failed", "error", err)
		}
	}

	go st.runKnowledgeMaintenance(ctx)

	reg, _ := prometheus.DefaultRegisterer.(*prometheus.Registry)
	api := httpapi.New(httpapi.Options{
		Orchestrator: st.orch,
		Runs:         st.runs,
		Artifacts:    st.artifacts,
		Sessions:     st.surface.Sessions(),
		Registry:     reg,
		Tools:        st.registry,
		Events:       st.events,
		Log:          st.log,
	})

	addr := fmt.Sprintf("%s:%d", st.cfg.HTTP.Host, st.cfg.HTTP.Port)
	srv := &http.Server{Addr: addr, Handler: api.Handler()}

	go func() {
		st.log.Info("browseragent control plane listening",
			"addr", addr, "trustLevel", st.cfg.TrustLevel,
			"maxConcurrentRuns", st.cfg.RunManager.MaxConcurrentRuns, "tools", len(st.registry.Names()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			st.log.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	st.log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		st.log.Error("http server shutdown failed", "error", err)
	}
}
