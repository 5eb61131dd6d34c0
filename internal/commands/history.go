package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/paulheiniger/storm-event-leads/internal/config"
	"github.com/paulheiniger/storm-event-leads/internal/domain"
	"github.com/paulheiniger/storm-event-leads/internal/observability"
)

type historyFlags struct {
	region string
	start  string
	end    string
	limit  int
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	var f historyFlags

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show run log entries, newest first",
		Long: `Show run log entries, newest first. With --region, --start and --end the
output is limited to that partition; without them every partition is listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.region, "region", "", "region code of the partition")
	fs.StringVar(&f.start, "start", "", "partition window start (YYYY-MM-DD)")
	fs.StringVar(&f.end, "end", "", "partition window end (YYYY-MM-DD)")
	fs.IntVar(&f.limit, "limit", 50, "maximum entries to show; 0 shows all")
	cmd.MarkFlagsRequiredTogether("region", "start", "end")

	return cmd
}

// partitionKey returns the run log key selected by the flags, or "" for all.
func (f historyFlags) partitionKey() (string, error) {
	if f.region == "" {
		return "", nil
	}
	w, err := parseWindow(f.start, f.end)
	if err != nil {
		return "", err
	}
	p := domain.Partition{Region: domain.Region{Code: strings.ToUpper(strings.TrimSpace(f.region))}, Window: w}
	return p.Key(), nil
}

func runHistory(cmd *cobra.Command, f historyFlags) error {
	if f.limit < 0 {
		return fmt.Errorf("invalid --limit %d", f.limit)
	}
	key, err := f.partitionKey()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := observability.NewLogger(cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, closeStore, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	entries, err := store.History(ctx, key, f.limit)
	if err != nil {
		return fmt.Errorf("reading run log: %w", err)
	}
	printHistory(cmd.OutOrStdout(), entries)
	return nil
}
