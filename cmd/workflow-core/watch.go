package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/flowforge/workflow-core/internal/config"
	"github.com/flowforge/workflow-core/internal/infrastructure/loader"
	"github.com/flowforge/workflow-core/internal/infrastructure/logger"
	"github.com/flowforge/workflow-core/pkg/workflow"
)

func newWatchCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory of workflow definition files and execute each on change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchDefinitions(cmd.Context(), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of workflow definition JSON files")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func watchDefinitions(ctx context.Context, dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	orch := buildOrchestrator(cfg, log)

	l, err := loader.New(dir, log)
	if err != nil {
		return err
	}
	defer l.Close()

	run := func(path string, def workflow.Definition) {
		sub := workflow.Submission{ExecutionID: uuid.New().String(), Definition: def}
		log.Info().Str("path", path).Str("executionId", sub.ExecutionID).Msg("executing definition")
		result, err := orch.Execute(ctx, sub)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("execution failed")
			return
		}
		_ = json.NewEncoder(os.Stdout).Encode(result.Outputs)
	}

	if err := l.LoadExisting(run); err != nil {
		return err
	}

	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	l.Watch(stop, run)
	return nil
}
