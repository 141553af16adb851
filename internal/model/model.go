// Package model defines the data types shared by the scheduler, state
// store, and processor drivers: the process/processor enums, the
// per-(issue, processor) IssueState record, and the read-only Config shape.
package model

import "time"

// ProcessStatus is the lifecycle status of one (issue, processor) entry.
type ProcessStatus string

const (
	StatusPending     ProcessStatus = "pending"
	StatusRunning     ProcessStatus = "running"
	StatusNeedsInput  ProcessStatus = "needs_input"
	StatusCompleted   ProcessStatus = "completed"
	StatusFailed      ProcessStatus = "failed"
)

// Active reports whether the status counts toward slot occupancy.
func (s ProcessStatus) Active() bool {
	return s == StatusRunning || s == StatusNeedsInput
}

// ProcessorName is a fixed, closed set of supported coding-agent backends.
// Extending the set requires adding a processor driver in internal/processor.
type ProcessorName string

const (
	ProcessorClaude ProcessorName = "claude"
	ProcessorCodex  ProcessorName = "codex"
)

// KnownProcessors lists every ProcessorName the binary knows how to drive.
var KnownProcessors = []ProcessorName{ProcessorClaude, ProcessorCodex}

// IsKnown reports whether name is one of KnownProcessors.
func (n ProcessorName) IsKnown() bool {
	for _, k := range KnownProcessors {
		if k == n {
			return true
		}
	}
	return false
}

// Key is the composite identity of one tracked (issue, processor) entry,
// serialized as "<issue>:<processor>" in the state file.
type Key struct {
	IssueNumber int
	Processor   ProcessorName
}

// IssueState is the unit of persistence: one agent's progress on one issue.
//
// Primary key is (IssueNumber, Processor) — see Key. Branch is recorded at
// reservation time and never mutated thereafter for that entry.
type IssueState struct {
	IssueNumber   int           `json:"-"`
	ProcessorName ProcessorName `json:"-"`

	Status     ProcessStatus `json:"status"`
	Branch     string        `json:"branch"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	AgentIndex int           `json:"agent_index"`
	RepoName   string        `json:"repo_name,omitempty"`
	SessionID  string        `json:"session_id,omitempty"`
	LastOutput string        `json:"last_output,omitempty"`
	Error      string        `json:"error,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at,omitzero"`
}

// Key returns the composite key for this entry.
func (s IssueState) Key() Key {
	return Key{IssueNumber: s.IssueNumber, Processor: s.ProcessorName}
}

// RepoConfig names one repository the scheduler polls for ready issues.
type RepoConfig struct {
	Name         string `json:"name"`
	BaseRepoPath string `json:"base_repo_path"`
}

// ProcessorConfig holds per-processor operational settings.
type ProcessorConfig struct {
	Path                string  `json:"path"`
	TimeoutSeconds      float64 `json:"timeout_seconds"`
	CheckIntervalSeconds float64 `json:"check_interval_seconds"`
	PromptPath          string  `json:"prompt_path,omitempty"`
}

// GitHubConfig holds GitHub polling and auth settings.
type GitHubConfig struct {
	Token         string       `json:"token"`
	Repos         []RepoConfig `json:"repos"`
	MaxConcurrent int          `json:"max_concurrent"`
}

// SlackConfig configures the Slack notifier sink. Zero value means disabled.
type SlackConfig struct {
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

// TelegramConfig configures the Telegram notifier sink. Zero value means disabled.
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   int64  `json:"chat_id"`
}

// Config is the read-only-to-the-core configuration loaded from
// ~/.imploid/config.json.
type Config struct {
	GitHub            GitHubConfig                       `json:"github"`
	ProcessorsEnabled []ProcessorName                     `json:"processors_enabled"`
	Processors        map[ProcessorName]ProcessorConfig `json:"processors"`
	Slack             *SlackConfig                       `json:"slack,omitempty"`
	Telegram          *TelegramConfig                     `json:"telegram,omitempty"`
	PollingIntervalSeconds float64                        `json:"polling_interval_seconds,omitempty"`
}

// DefaultMaxConcurrent matches spec.md §3.3's default of 3 slots.
const DefaultMaxConcurrent = 3

// DefaultPollingInterval matches spec.md §4.10's default 60s cadence.
const DefaultPollingInterval = 60 * time.Second
