package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the queue schema to the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			// Opening the store applies the embedded schema for either driver.
			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Info("database migrations applied", zap.String("store_driver", a.cfg.StoreDriver))
			return nil
		},
	}
}
