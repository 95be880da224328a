package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/flowforge/workflow-core/internal/config"
	"github.com/flowforge/workflow-core/internal/infrastructure/health"
	"github.com/flowforge/workflow-core/internal/infrastructure/logger"
	"github.com/flowforge/workflow-core/internal/infrastructure/tracing"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the /healthz, /readyz, and /metrics HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel)

			shutdownTracing := tracing.Setup("workflow-core")
			defer func() { _ = shutdownTracing(cmd.Context()) }()

			router := health.NewRouter(nil)
			addr := fmt.Sprintf(":%d", cfg.PortInt())
			log.Info().Str("addr", addr).Msg("serving health/metrics surface")
			return http.ListenAndServe(addr, router)
		},
	}
}
