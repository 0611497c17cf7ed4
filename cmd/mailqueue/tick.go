package main

import (
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTickCommand() *cobra.Command {
	var lockFile string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one dispatch cycle and print its report",
		Long: "Run one dispatch cycle and exit. Intended for an external scheduler such as cron.\n" +
			"Exits non-zero when the cycle could not list eligible records.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			if lockFile != "" {
				lock := flock.New(lockFile)
				ok, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire lock: %w", err)
				}
				if !ok {
					logger.Info("another tick holds the lock, skipping", zap.String("lock", lockFile))
					return nil
				}
				defer func() {
					if err := lock.Unlock(); err != nil {
						logger.Warn("failed to release tick lock", zap.Error(err))
					}
				}()
			}

			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			cycle, err := a.cycle()
			if err != nil {
				return err
			}
			report, runErr := cycle.Run(cmd.Context())

			out := cmd.OutOrStdout()
			if jsonOutput || !isTerminal(out) {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, renderReport(report))
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&lockFile, "lock-file", "", "Skip the tick when another tick on this host holds this lock file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Always print the report as JSON")
	return cmd
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
