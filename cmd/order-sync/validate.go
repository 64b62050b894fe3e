package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/straye-as/order-sync/internal/jobs"
	"github.com/straye-as/order-sync/internal/normalize"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without connecting to the warehouse or Salesforce",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if err := cfg.Validate(); err != nil {
				return err
			}
			if _, err := normalize.ParseDatePolicy(cfg.Sync.DatePolicy); err != nil {
				return err
			}
			if cfg.Sync.Cron != "" {
				if err := jobs.ValidateCron(cfg.Sync.Cron); err != nil {
					return err
				}
			}

			fmt.Println("Configuration is valid")
			return nil
		},
	}
}
