package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/logging"
)

const appVersion = "1.0.0"

var (
	cfgFile  string
	debug    bool
	dbPath   string
	inMemory bool
	rootCmd  = &cobra.Command{
		Use:   "atlas",
		Short: "atlas manages dependency-linked tasks with a consistent status state machine",
	}
)

// Execute runs the root command.
func Execute() error {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", filepath.Join(".atlas", "config.json"), "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "task database path (default .atlas/tasks.db)")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "in-memory", false, "use an ephemeral in-memory task store")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.Init(debug)
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(configCmd())
	return rootCmd.Execute()
}

func initConfig() {
	path := cfgFile
	if path == "" {
		path = filepath.Join(".atlas", "config.json")
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("json")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
