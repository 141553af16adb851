package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/misty-step/imploid/internal/imperrors"
	"github.com/misty-step/imploid/internal/model"
)

func TestRunCompletedCapturesSessionIDAndLastOutput(t *testing.T) {
	script := `echo '{"session_id":"s-42"}'; echo 'working on it'; exit 0`
	var gotSessionID string
	onSessionID := func(id string) { gotSessionID = id }

	result, err := Run(context.Background(), ClaudeDriver{}, "sh", []string{"sh", "-c", script}, "", nil, 5, 0.01, onSessionID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Status != model.StatusCompleted {
		t.Fatalf("Status = %q, want completed", result.Status)
	}
	if result.SessionID != "s-42" || gotSessionID != "s-42" {
		t.Errorf("SessionID = %q (callback %q), want s-42", result.SessionID, gotSessionID)
	}
	if result.LastOutput != "working on it" {
		t.Errorf("LastOutput = %q, want %q", result.LastOutput, "working on it")
	}
}

func TestRunNonZeroExitReportsFailedWithStderr(t *testing.T) {
	script := `echo oops >&2; exit 1`
	var gotDetail string
	onError := func(detail string) { gotDetail = detail }

	result, err := Run(context.Background(), CodexDriver{}, "sh", []string{"sh", "-c", script}, "", nil, 5, 0.01, nil, onError)
	if err == nil {
		t.Fatal("Run() error = nil, want NonZeroExit")
	}
	var nz *imperrors.NonZeroExit
	if !errors.As(err, &nz) {
		t.Fatalf("error = %v, want *imperrors.NonZeroExit", err)
	}
	if result.Status != model.StatusFailed {
		t.Fatalf("Status = %q, want failed", result.Status)
	}
	if gotDetail != "oops" {
		t.Errorf("onError detail = %q, want %q", gotDetail, "oops")
	}
}

func TestRunTimeoutKillsAndReportsFailed(t *testing.T) {
	var gotDetail string
	onError := func(detail string) { gotDetail = detail }

	result, err := Run(context.Background(), ClaudeDriver{}, "sh", []string{"sh", "-c", "sleep 30"}, "", nil, 0.02, 0.01, nil, onError)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Status != model.StatusFailed {
		t.Fatalf("Status = %q, want failed", result.Status)
	}
	if gotDetail == "" {
		t.Fatal("onError was not invoked on timeout")
	}
}

func TestExtractSessionIDIgnoresNonJSONAndOtherKeys(t *testing.T) {
	if got := extractSessionID("not json"); got != "" {
		t.Errorf("extractSessionID(non-JSON) = %q, want empty", got)
	}
	if got := extractSessionID(`{"foo":"bar"}`); got != "" {
		t.Errorf("extractSessionID(no session key) = %q, want empty", got)
	}
	if got := extractSessionID(`{"sessionId":"camel-1"}`); got != "camel-1" {
		t.Errorf("extractSessionID(sessionId) = %q, want camel-1", got)
	}
}

func TestClaudeBuildArgv(t *testing.T) {
	argv := ClaudeDriver{}.BuildArgv("/usr/bin/claude", "do the thing", "")
	if argv[0] != "/usr/bin/claude" {
		t.Fatalf("argv[0] = %q, want binary path", argv[0])
	}
	if argv[len(argv)-1] != "do the thing" {
		t.Fatalf("last arg = %q, want prompt", argv[len(argv)-1])
	}
}

func TestCodexBuildArgvResumesSession(t *testing.T) {
	argv := CodexDriver{}.BuildArgv("/usr/bin/codex", "do the thing", "sess-1")
	want := []string{"/usr/bin/codex", "exec", "resume", "sess-1", "--full-auto", "--dangerously-bypass-approvals-and-sandbox", "do the thing"}
	if len(argv) != len(want) {
		t.Fatalf("argv = %v, want %v", argv, want)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Fatalf("argv = %v, want %v", argv, want)
		}
	}
}

func TestCodexBuildArgvFreshSession(t *testing.T) {
	argv := CodexDriver{}.BuildArgv("/usr/bin/codex", "do the thing", "")
	for _, a := range argv {
		if a == "resume" {
			t.Fatalf("argv = %v, should not contain resume for a fresh session", argv)
		}
	}
}
