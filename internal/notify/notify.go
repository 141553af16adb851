// Package notify implements the sink fanout from spec.md §4.6. Sinks are
// invoked in parallel; a failing sink logs and never propagates to the
// caller, in the style of bb's lifecycle notifications which treat
// delivery failures as best-effort.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Sink receives lifecycle events for one (issue, processor) run.
type Sink interface {
	NotifyStart(ctx context.Context, issueNumber int, title, repoName string) error
	NotifyComplete(ctx context.Context, issueNumber int, title, repoName, duration string) error
	NotifyNeedsInput(ctx context.Context, issueNumber int, title, repoName, lastOutput string) error
	NotifyError(ctx context.Context, issueNumber int, title, repoName, detail string) error
}

// Fanout broadcasts every event to all configured sinks concurrently.
type Fanout struct {
	Sinks []Sink
}

// New returns a Fanout over the given sinks. Nil sinks are skipped.
func New(sinks ...Sink) *Fanout {
	nonNil := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			nonNil = append(nonNil, s)
		}
	}
	return &Fanout{Sinks: nonNil}
}

func (f *Fanout) broadcast(label string, call func(Sink) error) {
	var wg sync.WaitGroup
	for _, sink := range f.Sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			if err := call(s); err != nil {
				slog.Default().Warn("notify sink failed", "kind", label, "err", err)
			}
		}(sink)
	}
	wg.Wait()
}

// NotifyStart fans out a start event. Errors are logged, never returned.
func (f *Fanout) NotifyStart(ctx context.Context, issueNumber int, title, repoName string) {
	f.broadcast("start", func(s Sink) error { return s.NotifyStart(ctx, issueNumber, title, repoName) })
}

// NotifyComplete fans out a completion event with a formatted duration.
func (f *Fanout) NotifyComplete(ctx context.Context, issueNumber int, title, repoName, duration string) {
	f.broadcast("complete", func(s Sink) error { return s.NotifyComplete(ctx, issueNumber, title, repoName, duration) })
}

// NotifyNeedsInput fans out a needs-input event carrying the last output line.
func (f *Fanout) NotifyNeedsInput(ctx context.Context, issueNumber int, title, repoName, lastOutput string) {
	f.broadcast("needs_input", func(s Sink) error { return s.NotifyNeedsInput(ctx, issueNumber, title, repoName, lastOutput) })
}

// NotifyError fans out an error event.
func (f *Fanout) NotifyError(ctx context.Context, issueNumber int, title, repoName, detail string) {
	f.broadcast("error", func(s Sink) error { return s.NotifyError(ctx, issueNumber, title, repoName, detail) })
}

// truncate caps s at max bytes, appending the truncation marker when cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	const marker = "… (truncated)"
	cut := max - len(marker)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + marker
}

func formatTitle(issueNumber int, title string) string {
	return fmt.Sprintf("#%d %s", issueNumber, title)
}
