package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/engine"
)

func validateCmd() *cobra.Command {
	var modeFlag string
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a task's dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			svc := newServices(cfg, store)
			mode := svc.mode
			if modeFlag != "" {
				if mode, err = engine.ParseMode(modeFlag); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			t, err := store.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			result, err := svc.validator.ValidateDependencies(ctx, t, t.Dependencies, mode)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("encode validation result: %w", err)
			}
			fmt.Println(string(data))
			if !result.Valid {
				return fmt.Errorf("task %s failed dependency validation", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", "", "validation mode (strict|lenient|deferred)")
	return cmd
}
