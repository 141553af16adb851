// Package imperrors defines the error taxonomy from spec.md §7: typed
// values callers can classify with errors.As, in the style of bb's
// internal/lib.ValidationError and internal/github.APIError.
package imperrors

import "fmt"

// ConfigError reports missing or invalid configuration. Fatal at startup.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %s", e.Message)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// LockConflict indicates another instance already holds the process lock.
type LockConflict struct {
	PID int
}

func (e *LockConflict) Error() string {
	return fmt.Sprintf("lock: held by live process %d", e.PID)
}

// GitHubError wraps a non-2xx GitHub API response. The caller decides
// recoverability (spec.md §4.5).
type GitHubError struct {
	Status int
	Body   string
}

func (e *GitHubError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("github: status %d", e.Status)
	}
	return fmt.Sprintf("github: status %d: %s", e.Status, e.Body)
}

// GitError reports a failed git subcommand during clone/checkout/reset.
type GitError struct {
	Step   string
	Stderr string
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s failed: %s", e.Step, e.Stderr)
}

// SpawnError indicates a processor binary could not be started.
type SpawnError struct {
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %v: %v", e.Argv, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Timeout indicates a processor exceeded its configured timeout.
type Timeout struct {
	TimeoutSeconds float64
	LastOutput     string
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("process timed out after %g seconds", e.TimeoutSeconds)
}

// NonZeroExit indicates a processor exited with a non-zero status.
type NonZeroExit struct {
	ExitCode int
	Stderr   string
}

func (e *NonZeroExit) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("process exited %d: Unknown error", e.ExitCode)
	}
	return fmt.Sprintf("process exited %d: %s", e.ExitCode, e.Stderr)
}

// PromptNotFound indicates no candidate prompt template file existed.
type PromptNotFound struct {
	DisplayName string
	Candidates  []string
}

func (e *PromptNotFound) Error() string {
	return fmt.Sprintf("prompt %q not found; tried %v", e.DisplayName, e.Candidates)
}

// IOError wraps a filesystem failure. State-save failures re-raise upward;
// read failures generally fall back to empty defaults instead of wrapping
// this (spec.md §7).
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
