package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newLogger builds the process logger. Tests replace it with zap.NewNop.
var newLogger = func() (*zap.Logger, error) {
	return zap.NewProduction()
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mailqueue",
		Short:         "Recurring email queue and dispatch engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newTickCommand())
	rootCmd.AddCommand(newMigrateCommand())

	return rootCmd
}
