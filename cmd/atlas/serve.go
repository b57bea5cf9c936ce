package main

import (
	"github.com/spf13/cobra"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the task tools over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			srv := server.New(store, svc.validator, svc.transitions, svc.processor, svc.mode, appVersion)
			return srv.Run(cmd.Context())
		},
	}
}
