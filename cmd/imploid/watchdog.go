package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/misty-step/imploid/internal/config"
	"github.com/misty-step/imploid/internal/state"
	"github.com/misty-step/imploid/internal/watchdog"
	"github.com/spf13/cobra"
)

type watchdogOptions struct {
	ConfigDir      string
	StaleThreshold time.Duration
	JSON           bool
}

func newWatchdogCmd() *cobra.Command {
	opts := watchdogOptions{StaleThreshold: 30 * time.Minute}

	command := &cobra.Command{
		Use:   "watchdog",
		Short: "Report active (issue, processor) entries with no recent state update",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir(opts.ConfigDir)
			if err != nil {
				return err
			}
			st := state.New(filepath.Join(dir, "processing-state.json"))
			if err := st.Initialize(); err != nil {
				return err
			}

			runner := &watchdog.Runner{State: st, Out: cmd.OutOrStdout()}
			_, err = runner.Run(watchdog.Config{StaleThreshold: opts.StaleThreshold, JSONOutput: opts.JSON})
			if err != nil && err != watchdog.ErrNeedsAttention {
				return err
			}
			if err == watchdog.ErrNeedsAttention {
				return fmt.Errorf("watchdog: %w", err)
			}
			return nil
		},
	}

	command.Flags().StringVar(&opts.ConfigDir, "config-dir", "", "Override the imploid config directory (default ~/.imploid)")
	command.Flags().DurationVar(&opts.StaleThreshold, "stale-after", opts.StaleThreshold, "Duration of no update before an entry is flagged stale")
	command.Flags().BoolVar(&opts.JSON, "json", false, "Emit JSON output")

	return command
}
