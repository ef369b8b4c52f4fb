package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/roomdex/internal/chat"
	"github.com/Aman-CERP/roomdex/internal/config"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/ingest"
	"github.com/Aman-CERP/roomdex/internal/mapping"
	"github.com/Aman-CERP/roomdex/internal/output"
)

func newRoomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Inspect and edit room-to-index bindings",
		Long: `Inspect and edit the mapping store directly.

bind and move write to the store, so they take the state directory lock
and cannot run next to 'roomdex run' on the bolt backend.`,
		Example: `  # List bound rooms
  roomdex rooms list

  # Bind a room to an index
  roomdex rooms bind general '!abc:example.org'

  # Carry a binding over to an upgraded room
  roomdex rooms move '!old:example.org' '!new:example.org'`,
	}

	cmd.AddCommand(newRoomsListCmd())
	cmd.AddCommand(newRoomsBindCmd())
	cmd.AddCommand(newRoomsMoveCmd())

	return cmd
}

func newRoomsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bound rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoomsList(cmd.Context(), cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newRoomsBindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bind <index> <room>",
		Short: "Bind a room to an index",
		Long: `Bind a room to an index and create the index if needed.

The room is a room id (!abc:server) or an alias (#room:server). Aliases
are resolved through the homeserver with the saved session.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoomsBind(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func newRoomsMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <from-room> <to-room>",
		Short: "Copy a room's binding to another room",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoomsMove(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func runRoomsList(ctx context.Context, w io.Writer, jsonOutput bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rooms, err := store.List(ctx)
	if err != nil {
		return rxerrors.StoreError("list rooms", err)
	}

	if jsonOutput {
		if rooms == nil {
			rooms = []mapping.RoomMapping{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rooms)
	}

	out := output.New(w)
	if len(rooms) == 0 {
		out.Warning("No rooms are bound")
		out.Status("💡", "Add rooms under matrix.indices and run 'roomdex run', or use 'roomdex rooms bind'")
		return nil
	}
	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		rows = append(rows, []string{r.IndexName, r.Name(), r.RoomID})
	}
	out.Table([]string{"INDEX", "ROOM", "ROOM ID"}, rows)
	return nil
}

func runRoomsBind(ctx context.Context, w io.Writer, index, room string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := output.New(w)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	lk, err := lockState(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lk.Unlock() }()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng, err := openEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	dir, err := directoryFor(ctx, cfg, room, logger)
	if err != nil {
		return err
	}

	boot := ingest.NewBootstrapper(ingest.BootstrapConfig{
		Directory: dir,
		Store:     store,
		Engine:    eng,
		Retry:     rxerrors.DefaultRetryConfig(),
		Logger:    logger,
	})
	report, err := boot.Apply(ctx, map[string]string{index: room})
	if err != nil {
		return err
	}

	for _, m := range report.Bound {
		out.Successf("Bound %s to %s", m.Name(), m.IndexName)
	}
	return nil
}

// directoryFor returns a homeserver directory when room is an alias. Room
// ids need none, so binding them works offline.
func directoryFor(ctx context.Context, cfg *config.Config, room string, logger *slog.Logger) (chat.Directory, error) {
	if !strings.HasPrefix(room, "#") {
		return nil, nil
	}
	client, err := newMatrixClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := client.Authenticate(ctx, cfg.Matrix.Password); err != nil {
		return nil, err
	}
	return client, nil
}

func runRoomsMove(ctx context.Context, w io.Writer, from, to string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lk, err := lockState(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lk.Unlock() }()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Move(ctx, from, to); err != nil {
		if errors.Is(err, mapping.ErrSourceMissing) {
			return rxerrors.New(rxerrors.ErrCodeMappingSourceMissing, "room has no index", err).
				WithDetail("room_id", from)
		}
		return rxerrors.StoreError("move mapping", err)
	}

	m, _, err := store.Lookup(ctx, to)
	if err != nil {
		return rxerrors.StoreError("lookup moved mapping", err)
	}
	output.New(w).Successf("Moved %s to %s (index %s)", from, to, m.IndexName)
	return nil
}
