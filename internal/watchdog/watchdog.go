// Package watchdog implements the read-only staleness probe described in
// SPEC_FULL.md §12: it never mutates IssueState.Status itself (that stays
// the scheduler's exclusive responsibility) and only logs and reports.
// Adapted from bb's internal/watchdog.Runner (Config/Alert/Summary shape,
// ErrNeedsAttention sentinel, text-or-JSON rendering) re-keyed from
// sprite heartbeats to state-store (issue, processor) entries.
package watchdog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/misty-step/imploid/internal/model"
	"github.com/misty-step/imploid/internal/state"
	"github.com/misty-step/imploid/internal/watchdog/health"
)

// ErrNeedsAttention is returned by Run when one or more active entries
// were flagged stale.
var ErrNeedsAttention = errors.New("one or more agents need attention")

// Config controls watchdog behavior.
type Config struct {
	StaleThreshold time.Duration
	JSONOutput     bool
}

func withDefaults(cfg Config) Config {
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = health.DefaultConfig().StaleThreshold
	}
	return cfg
}

// Alert reports one stale (issue, processor) entry.
type Alert struct {
	IssueNumber int                 `json:"issue_number"`
	Processor   model.ProcessorName `json:"processor"`
	Status      string              `json:"status"`
	Reason      string              `json:"reason"`
}

// Summary captures one watchdog pass.
type Summary struct {
	Healthy bool    `json:"healthy"`
	Alerts  []Alert `json:"alerts"`
}

// Runner executes watchdog passes over a state.Store.
type Runner struct {
	State *state.Store
	Log   *slog.Logger
	Out   io.Writer

	// Now is overridable for tests; defaults to time.Now when nil.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run evaluates every active entry in the state store and reports a
// Summary. It returns ErrNeedsAttention alongside a non-empty alert list
// so callers (e.g. a CLI exit code) can distinguish "ran fine, found
// problems" from a hard failure.
func (r *Runner) Run(cfg Config) (Summary, error) {
	cfg = withDefaults(cfg)
	if r.State == nil {
		return Summary{}, fmt.Errorf("watchdog: state store required")
	}
	if r.Out == nil {
		r.Out = os.Stdout
	}
	if r.Log == nil {
		r.Log = slog.Default()
	}

	healthCfg := health.Config{StaleThreshold: cfg.StaleThreshold}
	now := r.now()

	var alerts []Alert
	for _, entry := range r.State.ActiveStates() {
		lastTouched := entry.UpdatedAt
		if lastTouched.IsZero() {
			lastTouched = entry.StartTime
		}
		check := health.Evaluate(health.Input{
			Status:             entry.Status,
			ElapsedSinceUpdate: now.Sub(lastTouched),
		}, healthCfg)
		if !check.NeedsAttention() {
			continue
		}
		alerts = append(alerts, Alert{
			IssueNumber: entry.IssueNumber,
			Processor:   entry.ProcessorName,
			Status:      string(check.Status),
			Reason:      check.Reason,
		})
		r.Log.Warn("stale agent detected", "issue", entry.IssueNumber, "processor", entry.ProcessorName, "reason", check.Reason)
	}

	summary := Summary{Healthy: len(alerts) == 0, Alerts: alerts}
	if cfg.JSONOutput {
		enc := json.NewEncoder(r.Out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
	} else {
		r.renderText(summary)
	}
	if !summary.Healthy {
		return summary, ErrNeedsAttention
	}
	return summary, nil
}

func (r *Runner) renderText(summary Summary) {
	if summary.Healthy {
		_, _ = fmt.Fprintln(r.Out, "All tracked agents healthy.")
		return
	}
	_, _ = fmt.Fprintln(r.Out, "=== ALERTS ===")
	for _, alert := range summary.Alerts {
		_, _ = fmt.Fprintf(r.Out, "issue #%d [%s]: %s - %s\n", alert.IssueNumber, alert.Processor, alert.Status, alert.Reason)
	}
}
