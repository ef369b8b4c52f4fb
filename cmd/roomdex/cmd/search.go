package cmd

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/roomdex/internal/gateway"
	"github.com/Aman-CERP/roomdex/internal/output"
)

const (
	highlightPre  = `<span class="keyword">`
	highlightPost = `</span>`
)

type searchOptions struct {
	index      string
	query      string
	before     *int64
	jsonOutput bool
}

func newSearchCmd() *cobra.Command {
	var (
		before     int64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <index> [query...]",
		Short: "Search an index from the terminal",
		Long: `Search one index, newest messages first. Without a query every
message matches.

Uses the same engine and page size as the search API.`,
		Example: `  # Find deploy discussions
  roomdex search general deploy

  # Next page: messages older than the last result
  roomdex search general deploy --before 1700000000000

  # Output as JSON
  roomdex search general deploy --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := searchOptions{
				index:      args[0],
				query:      strings.Join(args[1:], " "),
				jsonOutput: jsonOutput,
			}
			if cmd.Flags().Changed("before") {
				opts.before = &before
			}
			return runSearch(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().Int64Var(&before, "before", 0, "Only messages older than this millisecond timestamp")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, w io.Writer, opts searchOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

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

	page, err := newService(cfg, store, eng, logger).Search(ctx, opts.index, opts.query, opts.before)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}
	printPage(output.New(w), opts, page)
	return nil
}

func printPage(out *output.Writer, opts searchOptions, page *gateway.Page) {
	if len(page.Messages) == 0 {
		out.Warning("No messages found")
		return
	}

	for _, m := range page.Messages {
		sender := "unknown"
		if m.DisplayName != nil {
			sender = *m.DisplayName
		}
		when := time.UnixMilli(m.Timestamp).Local().Format("2006-01-02 15:04")

		out.Status("", out.Dim(when)+"  "+sender)
		out.Status("", "  "+out.Highlighted(m.HTMLBody, highlightPre, highlightPost))
		if m.ExternalURL != nil {
			out.Status("", "  "+out.Dim(*m.ExternalURL))
		}
	}

	if page.HasMore {
		last := page.Messages[len(page.Messages)-1]
		out.Newline()
		out.Statusf("", "More results: roomdex search %s %s --before %d", opts.index, opts.query, last.Timestamp)
	}
}
