package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/misty-step/imploid/internal/model"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
}

func TestAppendRejectsMissingFields(t *testing.T) {
	s := New(t.TempDir(), fixedNow)

	if err := s.Append(Event{Processor: model.ProcessorClaude, Kind: EventStarted}); err == nil {
		t.Error("expected error for missing issue number")
	}
	if err := s.Append(Event{IssueNumber: 1, Kind: EventStarted}); err == nil {
		t.Error("expected error for missing processor")
	}
	if err := s.Append(Event{IssueNumber: 1, Processor: model.ProcessorClaude}); err == nil {
		t.Error("expected error for missing kind")
	}
}

func TestAppendAndQueryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, fixedNow)

	events := []Event{
		{IssueNumber: 1, Processor: model.ProcessorClaude, Kind: EventReserved, Branch: "issue-1-claude-x"},
		{IssueNumber: 1, Processor: model.ProcessorClaude, Kind: EventStarted},
		{IssueNumber: 2, Processor: model.ProcessorCodex, Kind: EventReserved},
	}
	for _, e := range events {
		if err := s.Append(e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	all, err := s.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Query() returned %d events, want 3", len(all))
	}

	claudeOnly, err := s.Query(QueryOptions{Processor: model.ProcessorClaude})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(claudeOnly) != 2 {
		t.Fatalf("Query(processor=claude) returned %d events, want 2", len(claudeOnly))
	}

	issueTwo, err := s.Query(QueryOptions{IssueNumber: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(issueTwo) != 1 || issueTwo[0].Kind != EventReserved {
		t.Fatalf("Query(issue=2) = %+v, want one reserved event", issueTwo)
	}
}

func TestQueryMissingDirReturnsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist"), fixedNow)

	events, err := s.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("Query() = %v, want empty", events)
	}
}

func TestQueryFiltersBySinceUntil(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, fixedNow)

	early := fixedNow().Add(-time.Hour)
	late := fixedNow().Add(time.Hour)

	if err := s.Append(Event{IssueNumber: 5, Processor: model.ProcessorClaude, Kind: EventStarted, Timestamp: early}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(Event{IssueNumber: 5, Processor: model.ProcessorClaude, Kind: EventCompleted, Timestamp: late}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := s.Query(QueryOptions{Since: fixedNow()})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].Kind != EventCompleted {
		t.Fatalf("Query(since=now) = %+v, want only the completed event", got)
	}
}
