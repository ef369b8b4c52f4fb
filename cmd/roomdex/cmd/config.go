package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/roomdex/configs"
	"github.com/Aman-CERP/roomdex/internal/config"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/output"
)

const redacted = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		Long: `Manage roomdex.yaml.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. The config file (--config, default ./roomdex.yaml)
  3. A .env file next to the config file
  4. Environment variables (ROOMDEX_*)

Relative paths in the file are resolved against its directory.`,
		Example: `  # Create a config file with defaults
  roomdex config init

  # Show the effective configuration
  roomdex config show

  # Check the configuration for errors
  roomdex config validate`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long: `Write a commented configuration file with every setting at its default.

An existing file is left alone unless --force is given, in which case it is
backed up first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd.OutOrStdout(), configPath, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after defaults, the file, .env and environment overrides are merged. Secrets are redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd.OutOrStdout())
		},
	}
}

func runConfigInit(w io.Writer, path string, force bool) error {
	out := output.New(w)

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Use --force to overwrite it (a backup is kept)")
			return nil
		}
		backup, err := config.Backup(path)
		if err != nil {
			return rxerrors.ConfigError("failed to back up configuration", err)
		}
		if backup != "" {
			out.Statusf("📦", "Backup: %s", backup)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rxerrors.ConfigError("failed to create config directory", err)
		}
	}

	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o600); err != nil {
		return rxerrors.ConfigError("failed to write configuration", err)
	}

	out.Successf("Created %s", path)
	out.Status("💡", "Set matrix.homeserver_url, matrix.username and matrix.indices, then run 'roomdex login'")
	return nil
}

func runConfigShow(w io.Writer, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return rxerrors.New(rxerrors.ErrCodeConfigInvalid, "invalid configuration", err)
	}

	// Password and Key are already json:"-".
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	shown := *cfg
	if shown.Matrix.Password != "" {
		shown.Matrix.Password = redacted
	}
	if shown.Search.Key != "" {
		shown.Search.Key = redacted
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func runConfigValidate(w io.Writer) error {
	out := output.New(w)

	cfg, err := loadConfig()
	if err != nil {
		out.Errorf("%s", err)
		return rxerrors.New(rxerrors.ErrCodeConfigInvalid, "invalid configuration", err)
	}

	out.Successf("Configuration is valid: %s", cfg.Path())
	if err := cfg.ValidateLogin(); err != nil {
		out.Warningf("The bot cannot log in yet: %s", err)
	}

	names := make([]string, 0, len(cfg.Matrix.Indices))
	for name := range cfg.Matrix.Indices {
		names = append(names, name)
	}
	sort.Strings(names)

	out.KeyValue([][2]string{
		{"Search backend", cfg.Search.Backend},
		{"State backend", cfg.State.Backend},
		{"Listen address", cfg.Server.Addr},
		{"Indices", strings.Join(names, ", ")},
	})
	return nil
}
