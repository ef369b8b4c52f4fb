// Package cmd provides the CLI commands for roomdex.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/roomdex/internal/config"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/pkg/version"
)

// Persistent flags
var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command for the roomdex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roomdex",
		Short: "Searchable archive of chat rooms",
		Long: `roomdex joins chat rooms as a bot, indexes every message into a
full-text search engine and serves keyword search over HTTP.

Bind rooms to indexes under matrix.indices in roomdex.yaml, then run
'roomdex run' to start indexing and serving.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("roomdex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "Path to the configuration file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newWebCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newRoomsCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if re, ok := rxerrors.As(err); ok && re.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", re.Suggestion)
	}
}
