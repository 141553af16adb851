// Package scheduler implements the central piece from spec.md §4.9: one
// tick discovers ready issues, reserves bounded per-processor slots,
// fans out processor pipelines, and reconciles GitHub labels and state on
// each pipeline's terminal outcome.
//
// The slot-reservation and busy-tracking idiom is grounded on bb's
// internal/fleet.Dispatch (candidate iteration, atomic multi-entry
// reservation before any launch) generalized from one sprite-per-issue to
// one state entry per (issue, processor).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/misty-step/imploid/internal/gitworkspace"
	"github.com/misty-step/imploid/internal/ledger"
	"github.com/misty-step/imploid/internal/model"
	"github.com/misty-step/imploid/internal/notify"
	"github.com/misty-step/imploid/internal/processor"
	"github.com/misty-step/imploid/internal/prompt"
	"github.com/misty-step/imploid/internal/state"
)

// Recorder is the subset of ledger.Store the scheduler needs, kept as an
// interface so tests can assert on recorded events without touching disk.
type Recorder interface {
	Append(event ledger.Event) error
}

// GitHubAdapter is the subset of the GitHub client the scheduler needs.
// Kept as an interface here (rather than importing internal/github
// directly) so tests can fake issue discovery and label mutation.
type GitHubAdapter interface {
	ListReadyIssues(ctx context.Context, owner, repo string) ([]ReadyIssue, error)
	UpdateLabels(ctx context.Context, owner, repo string, number int, add, remove []string) error
}

// ReadyIssue mirrors github.ReadyIssue without importing that package,
// keeping this package's public surface independent of the HTTP client.
type ReadyIssue struct {
	Number   int
	Title    string
	RepoName string
}

// Scheduler owns one polling tick across all configured repos and
// processors.
type Scheduler struct {
	Config        model.Config
	State         *state.Store
	GitHub        GitHubAdapter
	Notifiers     *notify.Fanout
	PromptLoader  *prompt.Loader
	Drivers       map[model.ProcessorName]processor.Driver

	// Ledger records scheduler transitions for later audit; nil disables
	// recording entirely (e.g. in unit tests that don't care).
	Ledger Recorder

	// Now is overridable for tests; defaults to time.Now when nil.
	Now func() time.Time
}

// record appends an event to the ledger, tolerating a nil Ledger and
// logging (never failing the pipeline on) write errors.
func (s *Scheduler) record(event ledger.Event) {
	if s.Ledger == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.Ledger.Append(event); err != nil {
		slog.Default().Warn("ledger append failed", "issue", event.IssueNumber, "processor", event.Processor, "kind", event.Kind, "err", err)
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// enabledProcessors intersects the configured-enabled set with an optional
// per-run override (spec.md §6 --processors flag).
func (s *Scheduler) enabledProcessors(override []model.ProcessorName) []model.ProcessorName {
	if len(override) == 0 {
		return s.Config.ProcessorsEnabled
	}
	overrideSet := make(map[model.ProcessorName]bool, len(override))
	for _, p := range override {
		overrideSet[p] = true
	}
	var out []model.ProcessorName
	for _, p := range s.Config.ProcessorsEnabled {
		if overrideSet[p] {
			out = append(out, p)
		}
	}
	return out
}

// Tick runs exactly one scheduling pass: discover, compute capacity,
// filter, reserve, and launch the per-issue fanout. It returns once all
// launched pipelines have reconciled.
func (s *Scheduler) Tick(ctx context.Context, processorOverride []model.ProcessorName) error {
	enabled := s.enabledProcessors(processorOverride)

	candidates := s.discover(ctx)

	maxConcurrent := s.Config.GitHub.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = model.DefaultMaxConcurrent
	}

	activeNumbers := make(map[int]bool)
	for _, n := range s.State.ActiveIssueNumbers() {
		activeNumbers[n] = true
	}
	remaining := maxConcurrent - len(activeNumbers)
	if remaining <= 0 {
		return s.State.SaveAll()
	}

	var filtered []ReadyIssue
	for _, c := range candidates {
		if !activeNumbers[c.Number] {
			filtered = append(filtered, c)
		}
	}

	reserved := make([]reservation, 0, len(filtered))
	for _, candidate := range filtered {
		if remaining <= 0 {
			break
		}
		r, ok := s.reserve(candidate, enabled, maxConcurrent)
		if !ok {
			slog.Default().Warn("issue cannot be reserved: no available slot for all enabled processors", "issue", candidate.Number)
			continue
		}
		reserved = append(reserved, r)
		remaining--
	}

	if len(reserved) == 0 {
		return s.State.SaveAll()
	}
	if err := s.State.SaveAll(); err != nil {
		return fmt.Errorf("scheduler: persist reservations: %w", err)
	}

	var wg sync.WaitGroup
	for _, r := range reserved {
		for _, entry := range r.entries {
			wg.Add(1)
			go func(candidate ReadyIssue, entry model.IssueState) {
				defer wg.Done()
				s.runPipeline(ctx, candidate, entry)
			}(r.candidate, entry)
		}
	}
	wg.Wait()

	return s.State.SaveAll()
}

// discover lists ready issues across every configured repo, tolerating
// per-repo failures.
func (s *Scheduler) discover(ctx context.Context) []ReadyIssue {
	var candidates []ReadyIssue
	for _, repo := range s.Config.GitHub.Repos {
		owner, name, ok := splitRepo(repo.Name)
		if !ok {
			slog.Default().Warn("skipping malformed repo name", "repo", repo.Name)
			continue
		}
		issues, err := s.GitHub.ListReadyIssues(ctx, owner, name)
		if err != nil {
			slog.Default().Warn("discover failed", "repo", repo.Name, "err", err)
			continue
		}
		candidates = append(candidates, issues...)
	}
	return candidates
}

func splitRepo(fullName string) (owner, name string, ok bool) {
	idx := strings.LastIndex(fullName, "/")
	if idx <= 0 || idx == len(fullName)-1 {
		return "", "", false
	}
	return fullName[:idx], fullName[idx+1:], true
}

// repoConfigFor returns the RepoConfig whose Name matches repoName, so a
// pipeline's worktree is rooted at that repo's own base_repo_path rather
// than any other configured repo's (spec.md §4.4).
func repoConfigFor(cfg model.Config, repoName string) (model.RepoConfig, bool) {
	for _, r := range cfg.GitHub.Repos {
		if r.Name == repoName {
			return r, true
		}
	}
	return model.RepoConfig{}, false
}

type reservation struct {
	candidate ReadyIssue
	entries   []model.IssueState
}

// reserve attempts to allocate an agent_index for every enabled processor
// for this candidate. If any processor cannot yield a slot, no entries are
// committed to the store for this candidate (spec.md §4.9 step 4).
func (s *Scheduler) reserve(candidate ReadyIssue, enabled []model.ProcessorName, maxConcurrent int) (reservation, bool) {
	type slot struct {
		processor model.ProcessorName
		index     int
	}
	var slots []slot
	for _, p := range enabled {
		idx := s.State.AvailableAgentIndex(p, maxConcurrent)
		if idx == nil {
			return reservation{}, false
		}
		slots = append(slots, slot{processor: p, index: *idx})
	}

	now := s.now()
	entries := make([]model.IssueState, 0, len(slots))
	for _, sl := range slots {
		branch := newBranchName(candidate.Number, sl.processor, now)
		entry := model.IssueState{
			IssueNumber:   candidate.Number,
			ProcessorName: sl.processor,
			Status:        model.StatusRunning,
			Branch:        branch,
			StartTime:     now,
			AgentIndex:    sl.index,
			RepoName:      candidate.RepoName,
		}
		s.State.Set(candidate.Number, sl.processor, entry)
		entries = append(entries, entry)
		s.record(ledger.Event{Kind: ledger.EventReserved, IssueNumber: candidate.Number, Processor: sl.processor, Branch: branch, RepoName: candidate.RepoName})
	}
	return reservation{candidate: candidate, entries: entries}, true
}

// newBranchName derives issue-<n>-<processor>-<14-digit-timestamp>.
func newBranchName(issueNumber int, proc model.ProcessorName, t time.Time) string {
	return fmt.Sprintf("issue-%d-%s-%s", issueNumber, proc, t.UTC().Format("20060102150405"))
}

// displayName returns the human label used in notifications, e.g. "Claude".
func displayName(p model.ProcessorName) string {
	if len(p) == 0 {
		return ""
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

func workingLabel(p model.ProcessorName) string   { return string(p) + "-working" }
func completedLabel(p model.ProcessorName) string  { return string(p) + "-completed" }
func failedLabel(p model.ProcessorName) string     { return string(p) + "-failed" }

const readyLabel = "agent-ready"

// runPipeline executes the per-processor pipeline for one reserved
// (issue, processor) entry: pre-run label reconciliation, start
// notification, driver invocation, and terminal reconciliation.
func (s *Scheduler) runPipeline(ctx context.Context, candidate ReadyIssue, entry model.IssueState) {
	proc := entry.ProcessorName
	owner, name, _ := splitRepo(entry.RepoName)

	if err := s.GitHub.UpdateLabels(ctx, owner, name, candidate.Number,
		[]string{workingLabel(proc)},
		[]string{readyLabel, completedLabel(proc), failedLabel(proc)}); err != nil {
		slog.Default().Warn("pre-run label update failed", "issue", candidate.Number, "processor", proc, "err", err)
	}

	s.Notifiers.NotifyStart(ctx, candidate.Number, fmt.Sprintf("[%s] %s", displayName(proc), candidate.Title), candidate.RepoName)
	s.record(ledger.Event{Kind: ledger.EventStarted, IssueNumber: candidate.Number, Processor: proc, Branch: entry.Branch, RepoName: candidate.RepoName})

	driver, ok := s.Drivers[proc]
	if !ok {
		s.failEntry(ctx, candidate, entry, fmt.Sprintf("no driver registered for processor %q", proc))
		return
	}
	repoConfig, ok := repoConfigFor(s.Config, entry.RepoName)
	if !ok {
		s.failEntry(ctx, candidate, entry, fmt.Sprintf("no repo config for %q", entry.RepoName))
		return
	}
	ws := gitworkspace.New(repoConfig.BaseRepoPath)
	procConfig, ok := s.Config.Processors[proc]
	if !ok {
		s.failEntry(ctx, candidate, entry, fmt.Sprintf("no config for processor %q", proc))
		return
	}

	dir, err := ws.EnsureClone(ctx, proc, entry.AgentIndex, entry.RepoName)
	if err != nil {
		s.failEntry(ctx, candidate, entry, err.Error())
		return
	}
	if err := ws.PrepareIssueBranch(ctx, dir, entry.Branch); err != nil {
		s.failEntry(ctx, candidate, entry, err.Error())
		return
	}

	promptText, err := s.PromptLoader.Load(proc, candidate.Number, procConfig.PromptPath)
	if err != nil {
		s.failEntry(ctx, candidate, entry, err.Error())
		return
	}

	argv := driver.BuildArgv(procConfig.Path, promptText, entry.SessionID)

	onSessionID := func(sessionID string) {
		current, _ := s.State.Get(candidate.Number, proc)
		current.SessionID = sessionID
		s.State.Set(candidate.Number, proc, current)
		s.record(ledger.Event{Kind: ledger.EventSessionID, IssueNumber: candidate.Number, Processor: proc, SessionID: sessionID, RepoName: candidate.RepoName})
	}
	onError := func(detail string) {
		s.Notifiers.NotifyError(ctx, candidate.Number, fmt.Sprintf("[%s] %s", displayName(proc), candidate.Title), candidate.RepoName, detail)
	}

	result, _ := processor.Run(ctx, driver, procConfig.Path, argv, dir, nil,
		procConfig.TimeoutSeconds, procConfig.CheckIntervalSeconds, onSessionID, onError)

	end := s.now()
	final, _ := s.State.Get(candidate.Number, proc)
	final.Status = result.Status
	final.EndTime = &end
	final.LastOutput = result.LastOutput
	if result.SessionID != "" {
		final.SessionID = result.SessionID
	}
	s.State.Set(candidate.Number, proc, final)

	s.reconcileTerminal(ctx, candidate, final)
}

// reconcileTerminal applies the label/state outcome for a finished
// pipeline run (spec.md §4.9 step 5).
func (s *Scheduler) reconcileTerminal(ctx context.Context, candidate ReadyIssue, entry model.IssueState) {
	proc := entry.ProcessorName
	owner, name, _ := splitRepo(entry.RepoName)

	switch entry.Status {
	case model.StatusCompleted:
		duration := formatDuration(entry.StartTime, derefTime(entry.EndTime, s.now()))
		s.Notifiers.NotifyComplete(ctx, candidate.Number, fmt.Sprintf("[%s] %s", displayName(proc), candidate.Title), candidate.RepoName, duration)
		if err := s.GitHub.UpdateLabels(ctx, owner, name, candidate.Number, []string{completedLabel(proc)}, []string{workingLabel(proc)}); err != nil {
			slog.Default().Warn("completion label update failed", "issue", candidate.Number, "processor", proc, "err", err)
		}
		s.record(ledger.Event{Kind: ledger.EventCompleted, IssueNumber: candidate.Number, Processor: proc, Branch: entry.Branch, RepoName: candidate.RepoName, Detail: duration})
		s.State.Remove(candidate.Number, proc)
	case model.StatusNeedsInput:
		s.Notifiers.NotifyNeedsInput(ctx, candidate.Number, fmt.Sprintf("[%s] %s", displayName(proc), candidate.Title), candidate.RepoName, entry.LastOutput)
		s.record(ledger.Event{Kind: ledger.EventNeedsInput, IssueNumber: candidate.Number, Processor: proc, Branch: entry.Branch, RepoName: candidate.RepoName, Detail: entry.LastOutput})
	case model.StatusFailed:
		if err := s.GitHub.UpdateLabels(ctx, owner, name, candidate.Number, []string{failedLabel(proc)}, []string{workingLabel(proc), readyLabel}); err != nil {
			slog.Default().Warn("failure label update failed", "issue", candidate.Number, "processor", proc, "err", err)
		}
		s.record(ledger.Event{Kind: ledger.EventFailed, IssueNumber: candidate.Number, Processor: proc, Branch: entry.Branch, RepoName: candidate.RepoName, Detail: entry.Error})
		s.State.Remove(candidate.Number, proc)
	}
	if err := s.State.SaveAll(); err != nil {
		slog.Default().Warn("save after reconciliation failed", "issue", candidate.Number, "processor", proc, "err", err)
	}
}

// failEntry handles any exception escaping the driver (spec.md §4.9 step
// 6): treated as failure, labels updated, entry deleted, logged.
func (s *Scheduler) failEntry(ctx context.Context, candidate ReadyIssue, entry model.IssueState, detail string) {
	s.Notifiers.NotifyError(ctx, candidate.Number, fmt.Sprintf("[%s] %s", displayName(entry.ProcessorName), candidate.Title), candidate.RepoName, detail)
	end := s.now()
	entry.Status = model.StatusFailed
	entry.EndTime = &end
	entry.Error = detail
	s.State.Set(candidate.Number, entry.ProcessorName, entry)
	slog.Default().Error("pipeline failed", "issue", candidate.Number, "processor", entry.ProcessorName, "detail", detail)
	s.reconcileTerminal(ctx, candidate, entry)
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}
	return *t
}

// formatDuration renders "<m>m <s>s" from round((end-start)/1s).
func formatDuration(start, end time.Time) string {
	seconds := int(end.Sub(start).Round(time.Second).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return strconv.Itoa(seconds/60) + "m " + strconv.Itoa(seconds%60) + "s"
}
