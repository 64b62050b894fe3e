package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/straye-as/order-sync/internal/database"
	"github.com/straye-as/order-sync/internal/domain"
	"github.com/straye-as/order-sync/internal/repository"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.NewDatabase(&cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() { _ = database.Close(db) }()

			runs, err := repository.NewSyncRunRepository(db).ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}

			printRuns(runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	return cmd
}

func printRuns(runs []domain.SyncRun) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATUS\tWINDOW\tROWS\tORDERS +/~\tITEMS +/~\tFAILURES\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%d/%d\t%d\t%s\n",
			r.StartedAt.Format(time.RFC3339),
			r.Status,
			r.WindowStart,
			r.RowsFetched,
			r.OrdersCreated, r.OrdersUpdated,
			r.ItemsCreated, r.ItemsUpdated,
			r.Failures,
			time.Duration(r.DurationMillis)*time.Millisecond,
		)
	}
	_ = w.Flush()
}
