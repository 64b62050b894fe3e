package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var once bool

	root := &cobra.Command{
		Use:   "order-sync",
		Short: "Copy recent sales orders from the data warehouse into Salesforce",
		Long: `order-sync reads the trailing window of order lines from the data warehouse,
groups them into orders and creates or updates the matching Account, Order and
Order Item records in Salesforce.

Without flags it repeats the cycle until interrupted, waiting sync.cycleWait
seconds between cycles, or following sync.cron when a schedule is configured.

Example Usage:
  order-sync              # Run until SIGINT/SIGTERM
  order-sync --once       # Run a single cycle and exit
  order-sync history -n 5 # Show the five most recent runs
  order-sync validate     # Check configuration and credentials resolution`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), once)
		},
	}
	root.Flags().BoolVar(&once, "once", false, "run a single sync cycle and exit")

	root.AddCommand(newHistoryCmd(), newValidateCmd())
	return root
}
