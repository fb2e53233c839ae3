package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/khmerdict/dictbot/internal/dictionary"
	"github.com/khmerdict/dictbot/internal/stats"
	"github.com/khmerdict/dictbot/internal/user"
)

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig("Database", "Admin")
			if err != nil {
				return err
			}
			db, err := openDatabase(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			entries, err := dictionary.NewDBRepository(db).Count(ctx)
			if err != nil {
				return fmt.Errorf("dictionary.Count() > %w", err)
			}
			aggregator := stats.NewAggregator(user.NewDBRepository(db), nil, cfg.Admin.UserID, cfg.Database.QueryTimeout)
			summary, err := aggregator.Summary(ctx, cfg.Admin.UserID)
			if err != nil {
				return fmt.Errorf("aggregator.Summary() > %w", err)
			}
			printSummary(cmd.OutOrStdout(), entries, summary)
			return nil
		},
	}
}

func printSummary(w io.Writer, entries int64, summary user.Summary) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Dictionary entries: %d\n", entries)
	bold.Fprintf(w, "Users: %d\n", summary.Total)
	if len(summary.Recent) == 0 {
		return
	}
	fmt.Fprintln(w, "Recent users:")
	for i, rec := range summary.Recent {
		name := rec.FirstName
		if rec.Username != "" {
			name += " (@" + rec.Username + ")"
		}
		fmt.Fprintf(w, "%2d. %-32s %6d messages  last seen %s\n", i+1, name, rec.ChatCount, rec.LastSeen.UTC().Format("2006-01-02 15:04"))
	}
}
