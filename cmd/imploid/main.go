// Command imploid is the GitHub-issue-driven coding-agent orchestrator
// described in SPEC_FULL.md. Its cobra wiring follows bb's cmd/bb/main.go:
// a rootOptions struct bound to persistent flags, a runtime built once per
// invocation, and subcommand construction kept out of main().
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/misty-step/imploid/internal/config"
	"github.com/misty-step/imploid/internal/github"
	"github.com/misty-step/imploid/internal/ledger"
	"github.com/misty-step/imploid/internal/lockfile"
	"github.com/misty-step/imploid/internal/model"
	"github.com/misty-step/imploid/internal/notify"
	"github.com/misty-step/imploid/internal/processor"
	"github.com/misty-step/imploid/internal/prompt"
	"github.com/misty-step/imploid/internal/scheduler"
	"github.com/misty-step/imploid/internal/state"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

type rootOptions struct {
	ConfigDir        string
	ConfigureWizard  bool
	InstallCommands  bool
	Foreground       bool
	Processors       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "imploid",
		Short:   "GitHub-issue-driven coding-agent orchestrator",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.SilenceUsage = true
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", "", "Override the imploid config directory (default ~/.imploid)")
	cmd.Flags().BoolVar(&opts.ConfigureWizard, "config", false, "Run the interactive configuration wizard, then exit")
	cmd.Flags().BoolVar(&opts.InstallCommands, "install-commands", false, "Install command templates, then exit")
	cmd.Flags().BoolVar(&opts.Foreground, "foreground", false, "Run the polling loop in the foreground (default cadence 60s)")
	cmd.Flags().StringVar(&opts.Processors, "processors", "", "Comma-separated per-run processor override, e.g. claude,codex")

	cmd.AddCommand(newWatchdogCmd())

	return cmd
}

func run(ctx context.Context, opts *rootOptions) error {
	if opts.ConfigureWizard {
		return fmt.Errorf("imploid: configuration wizard is not available in this build; edit ~/.imploid/config.json directly")
	}
	if opts.InstallCommands {
		return fmt.Errorf("imploid: command-template installer is not available in this build")
	}

	dir, err := config.Dir(opts.ConfigDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(config.Path(dir))
	if err != nil {
		return err
	}

	sched, err := buildScheduler(dir, cfg)
	if err != nil {
		return err
	}

	override := parseProcessorOverride(opts.Processors)

	if opts.Foreground {
		lock := lockfile.New(filepath.Join(dir, "imploid.lock"))
		interval := time.Duration(cfg.PollingIntervalSeconds * float64(time.Second))
		runner := newForegroundRunner(lock, sched, interval)
		return runner.Start(ctx, override)
	}

	return sched.Tick(ctx, override)
}

func parseProcessorOverride(raw string) []model.ProcessorName {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]model.ProcessorName, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, model.ProcessorName(p))
		}
	}
	return out
}

// buildScheduler wires the composition root: state store, GitHub client,
// notifier fanout, prompt loader, and processor drivers, matching the
// data-flow diagram in SPEC_FULL.md §4. Git workspaces are not built here:
// each pipeline resolves its own from the candidate's repo config at run
// time, since worktrees must root at that repo's own base_repo_path.
func buildScheduler(dir string, cfg model.Config) (*scheduler.Scheduler, error) {
	st := state.New(filepath.Join(dir, "processing-state.json"))
	if err := st.Initialize(); err != nil {
		return nil, err
	}

	client := github.NewClientFromToken(cfg.GitHub.Token)

	var sinks []notify.Sink
	if cfg.Slack != nil && cfg.Slack.BotToken != "" {
		sinks = append(sinks, notify.NewSlackSink(cfg.Slack.BotToken, cfg.Slack.ChannelID))
	}
	if cfg.Telegram != nil && cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			slog.Default().Warn("telegram sink disabled", "err", err)
		} else {
			sinks = append(sinks, tg)
		}
	}

	promptsDir := filepath.Join(dir, "prompts")
	installedDefaults := filepath.Join(dir, "installed-prompts")
	loader := prompt.New(promptsDir, installedDefaults)

	drivers := map[model.ProcessorName]processor.Driver{
		model.ProcessorClaude: processor.ClaudeDriver{},
		model.ProcessorCodex:  processor.CodexDriver{},
	}

	return &scheduler.Scheduler{
		Config:       cfg,
		State:        st,
		GitHub:       githubAdapter{client: client},
		Notifiers:    notify.New(sinks...),
		PromptLoader: loader,
		Drivers:      drivers,
		Ledger:       ledger.New(filepath.Join(dir, "ledger"), nil),
	}, nil
}
