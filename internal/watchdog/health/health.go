// Package health evaluates whether one (issue, processor) state-store
// entry still looks alive, adapted from bb's zombie-detection evaluator:
// the same pure Input/Config -> Check shape, re-keyed from sprite
// commit/dirty-repo signals to the state store's last-updated timestamp.
package health

import (
	"fmt"
	"time"

	"github.com/misty-step/imploid/internal/model"
)

// Status is the health verdict for one tracked entry.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusStale   Status = "stale"
	StatusUnknown Status = "unknown"
)

// Config holds the staleness threshold applied during Evaluate.
type Config struct {
	// StaleThreshold is how long an active entry may go without its
	// UpdatedAt (or StartTime) changing before it is flagged stale.
	StaleThreshold time.Duration
}

// DefaultConfig uses a 30-minute staleness window.
func DefaultConfig() Config {
	return Config{StaleThreshold: 30 * time.Minute}
}

// Check is the result of evaluating one entry.
type Check struct {
	Status Status
	Reason string
}

// Input carries the state-store facts Evaluate needs. ElapsedSinceUpdate
// is now minus the entry's UpdatedAt (or StartTime if never updated).
type Input struct {
	Status             model.ProcessStatus
	ElapsedSinceUpdate time.Duration
}

// Evaluate decides whether an active entry looks healthy or stale.
// Terminal statuses are always healthy: they are about to be reconciled
// away by the scheduler, not stuck.
func Evaluate(input Input, cfg Config) Check {
	if input.Status.Terminal() {
		return Check{Status: StatusHealthy, Reason: "terminal status, pending reconciliation"}
	}
	if input.Status == model.StatusNeedsInput {
		return Check{Status: StatusHealthy, Reason: "waiting on operator input"}
	}
	if cfg.StaleThreshold > 0 && input.ElapsedSinceUpdate >= cfg.StaleThreshold {
		return Check{
			Status: StatusStale,
			Reason: fmt.Sprintf("no update for %v (threshold %v)", input.ElapsedSinceUpdate.Round(time.Minute), cfg.StaleThreshold.Round(time.Minute)),
		}
	}
	return Check{Status: StatusHealthy, Reason: "recently updated"}
}

// NeedsAttention reports whether this check should surface as an alert.
func (c Check) NeedsAttention() bool {
	return c.Status == StatusStale
}
