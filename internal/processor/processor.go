// Package processor implements the per-processor driver from spec.md §4.8:
// assembling the processor-specific argv, supervising the spawned child
// with a timeout watchdog, and parsing its streamed output for a session
// id and last-output line. Workspace and branch preparation happen in the
// caller (internal/scheduler) before Run.
//
// Each backend (claude, codex) is a narrow Driver implementation, the
// closed-set polymorphism bb uses for its processor variants
// (internal/claude for flag assembly) and the other_examples codex
// exec_mode.go reference for codex's resume/positional-prompt argv shape.
package processor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/misty-step/imploid/internal/imperrors"
	"github.com/misty-step/imploid/internal/model"
	"github.com/misty-step/imploid/internal/process"
)

// Driver knows how to assemble argv for one processor backend and, where
// relevant, resume an existing session.
type Driver interface {
	Name() model.ProcessorName
	// BuildArgv returns the full argv (binary path first) for a prompt
	// invocation. existingSessionID is non-empty when resuming a prior run.
	BuildArgv(binaryPath, prompt, existingSessionID string) []string
}

// Result is what the supervision loop reports back to the scheduler.
type Result struct {
	Status    model.ProcessStatus
	SessionID string
	LastOutput string
}

// Run executes one supervised invocation of driver's processor: spawns the
// child, races its exit against the timeout, parses stdout for a session
// id and last-output line, and classifies the outcome.
//
// The timeout watchdog is the only cancellation pathway for the spawned
// child (spec.md §4.8): ctx is not observed once the child has started, so
// cancelling it — e.g. a SIGINT unwinding the scheduling loop above —
// never kills an in-flight processor. It runs to completion or to its
// configured timeout regardless of ctx.
//
// onSessionID is invoked at most once, synchronously, the first time a
// session id is observed in the output stream — callers use it to persist
// the id into the state store before the run concludes.
// onError is invoked when a timeout or non-zero exit occurs, before Run
// returns, so the caller can fan out a notification with the detail.
func Run(
	ctx context.Context,
	driver Driver,
	binaryPath string,
	argv []string,
	cwd string,
	env []string,
	timeoutSeconds, checkIntervalSeconds float64,
	onSessionID func(sessionID string),
	onError func(detail string),
) (Result, error) {
	spawned, err := process.SpawnProcess(argv, process.Options{Cwd: cwd, Env: env})
	if err != nil {
		return Result{}, err
	}

	var lastOutput string
	var sessionID string
	var stderrAccum strings.Builder

	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})

	go func() {
		defer close(stdoutDone)
		scanner := bufio.NewScanner(spawned.Stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			lastOutput = line
			if sessionID == "" {
				if found := extractSessionID(line); found != "" {
					sessionID = found
					if onSessionID != nil {
						onSessionID(sessionID)
					}
				}
			}
		}
	}()

	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(spawned.Stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			stderrAccum.WriteString(scanner.Text())
			stderrAccum.WriteByte('\n')
		}
	}()

	start := time.Now()
	timeout := time.Duration(timeoutSeconds * float64(time.Second))
	checkInterval := time.Duration(checkIntervalSeconds * float64(time.Second))
	if checkInterval <= 0 {
		checkInterval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	var exitCode int
	timedOut := false

loop:
	for {
		select {
		case code := <-spawned.Handle.Exited():
			exitCode = code
			break loop
		case <-ticker.C:
			if time.Since(start) > timeout {
				timedOut = true
				break loop
			}
		}
	}

	if timedOut {
		_ = spawned.Handle.Kill()
		<-stdoutDone
		<-stderrDone
		if onError != nil {
			onError(fmt.Sprintf("Process timed out after %g seconds", timeoutSeconds))
		}
		return Result{Status: model.StatusFailed, SessionID: sessionID, LastOutput: lastOutput}, nil
	}

	<-stdoutDone
	<-stderrDone

	if exitCode != 0 {
		detail := strings.TrimSpace(stderrAccum.String())
		if detail == "" {
			detail = "Unknown error"
		}
		if onError != nil {
			onError(detail)
		}
		return Result{Status: model.StatusFailed, SessionID: sessionID, LastOutput: lastOutput}, &imperrors.NonZeroExit{ExitCode: exitCode, Stderr: detail}
	}

	return Result{Status: model.StatusCompleted, SessionID: sessionID, LastOutput: lastOutput}, nil
}

// extractSessionID attempts a JSON parse of line and returns the value of
// session_id or sessionId if present.
func extractSessionID(line string) string {
	if !strings.HasPrefix(line, "{") {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return ""
	}
	if v, ok := obj["session_id"].(string); ok && v != "" {
		return v
	}
	if v, ok := obj["sessionId"].(string); ok && v != "" {
		return v
	}
	return ""
}
