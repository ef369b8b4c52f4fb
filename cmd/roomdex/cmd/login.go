package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/output"
)

func newLoginCmd() *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log the bot in and save its session",
		Long: `Log in with matrix.username and a password, replacing any saved
session. The password comes from matrix.password (or ROOMDEX_PASSWORD)
unless --password-stdin is given.

Later runs reuse the saved session and need no password.`,
		Example: `  # Log in with the password from the config or environment
  roomdex login

  # Read the password from stdin
  printf '%s' "$PASSWORD" | roomdex login --password-stdin`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var stdin io.Reader
			if passwordStdin {
				stdin = cmd.InOrStdin()
			}
			return runLogin(cmd.Context(), cmd.OutOrStdout(), stdin)
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	return cmd
}

func runLogin(ctx context.Context, w io.Writer, stdin io.Reader) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := output.New(w)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateLogin(); err != nil {
		return rxerrors.New(rxerrors.ErrCodeConfigInvalid, "cannot log in", err)
	}

	password := cfg.Matrix.Password
	if stdin != nil {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return rxerrors.ValidationError("no password given", nil).
			WithSuggestion("set matrix.password, ROOMDEX_PASSWORD or use --password-stdin")
	}

	logger, cleanup, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := newMatrixClient(cfg, logger)
	if err != nil {
		return err
	}
	if err := client.Login(ctx, password); err != nil {
		return err
	}

	out.Successf("Logged in as %s", client.UserID())
	out.KeyValue([][2]string{
		{"Homeserver", client.Homeserver()},
		{"Session", cfg.Matrix.SessionPath},
	})
	return nil
}
