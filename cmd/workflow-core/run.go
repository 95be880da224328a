package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/flowforge/workflow-core/internal/config"
	"github.com/flowforge/workflow-core/internal/dispatch"
	"github.com/flowforge/workflow-core/internal/governor"
	"github.com/flowforge/workflow-core/internal/infrastructure/logger"
	"github.com/flowforge/workflow-core/internal/infrastructure/metrics"
	"github.com/flowforge/workflow-core/internal/orchestrator"
	"github.com/flowforge/workflow-core/pkg/workflow"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun/driver/pgdriver"
)

func newRunCmd() *cobra.Command {
	var defPath string
	var inputsPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and execute a workflow definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd.Context(), defPath, inputsPath)
		},
	}
	cmd.Flags().StringVar(&defPath, "definition", "", "path to a workflow definition JSON file")
	cmd.Flags().StringVar(&inputsPath, "inputs", "", "path to a JSON file of execution inputs")
	_ = cmd.MarkFlagRequired("definition")
	return cmd
}

// buildOrchestrator wires the full dispatcher/governor/metrics stack from
// cfg, shared by the run and watch commands so a definitions-directory
// watch doesn't rebuild a second, inconsistent set of handlers.
func buildOrchestrator(cfg *config.Config, log zerolog.Logger) *orchestrator.Orchestrator {
	deps := dispatch.Dependencies{Log: log}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		deps.LLM = openai.NewClient(key)
	}
	if cfg.DatabaseDSN != "" {
		deps.SQL = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DatabaseDSN)))
	}
	deps.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	registry := dispatch.NewRegistry(deps)
	breakers := dispatch.NewBreakerRegistry()
	gov := governor.New(prometheus.DefaultRegisterer,
		governor.WithMaxNodeOutputBytes(cfg.DefaultMaxNodeOutputBytes),
		governor.WithMaxContextBytes(cfg.DefaultMaxContextBytes))
	mc := metrics.New(prometheus.DefaultRegisterer)
	hints := dispatch.NewRetryHintCache(deps.Redis, 30*time.Second)
	disp := dispatch.New(registry, breakers, gov, mc, hints, dispatch.DefaultRetryPolicy(), cfg.DefaultMaxConcurrentNodes)
	return orchestrator.New(disp, gov, mc, log)
}

func runWorkflow(ctx context.Context, defPath, inputsPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	defBytes, err := os.ReadFile(defPath)
	if err != nil {
		return err
	}
	var def workflow.Definition
	if err := json.Unmarshal(defBytes, &def); err != nil {
		return err
	}

	inputs := map[string]any{}
	if inputsPath != "" {
		inputBytes, err := os.ReadFile(inputsPath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(inputBytes, &inputs); err != nil {
			return err
		}
	}

	orch := buildOrchestrator(cfg, log)

	sub := workflow.Submission{
		ExecutionID: uuid.New().String(),
		Definition:  def,
		Inputs:      inputs,
		Options: workflow.ExecutionOptions{
			ExecutionTimeoutMs: int(cfg.DefaultExecutionTimeout / time.Millisecond),
		},
	}

	result, err := orch.Execute(ctx, sub)
	if err != nil {
		log.Error().Err(err).Msg("execution failed")
		if result != nil {
			_ = json.NewEncoder(os.Stdout).Encode(result)
		}
		return err
	}

	if len(result.Failed) > 0 {
		_ = json.NewEncoder(os.Stdout).Encode(result)
		os.Exit(1)
	}

	return json.NewEncoder(os.Stdout).Encode(result.Outputs)
}
