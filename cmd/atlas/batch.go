package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/engine"
	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/server"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run batch task operations",
	}
	cmd.AddCommand(batchApplyCmd())
	return cmd
}

func batchApplyCmd() *cobra.Command {
	var stopOnError bool
	cmd := &cobra.Command{
		Use:   "apply <file.json>",
		Short: "Apply a batch of task mutations from a JSON file",
		Long:  "The file holds {\"items\": [...]}; items are applied in dependency order with per-item outcomes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read batch file: %w", err)
			}
			if err := server.ValidateBatchPayload(raw); err != nil {
				return err
			}
			var payload struct {
				Items []engine.BatchItem `json:"items"`
			}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("parse batch file: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if stopOnError {
				cfg.Engine.StopOnError = true
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			svc := newServices(cfg, store)
			result, err := svc.processor.Execute(cmd.Context(), payload.Items)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("encode batch result: %w", err)
			}
			fmt.Println(string(data))
			if result.Metadata.ErrorCount > 0 {
				return fmt.Errorf("%d of %d items failed", result.Metadata.ErrorCount, len(result.Results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "abort the batch at the first failed item")
	return cmd
}
