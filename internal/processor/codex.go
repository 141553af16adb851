package processor

import "github.com/misty-step/imploid/internal/model"

// CodexDriver drives the codex CLI. Grounded on the exec-mode adapter
// reference: codex exec [resume SESSION_ID] --full-auto
// --dangerously-bypass-approvals-and-sandbox PROMPT, prompt always last
// and positional (spec.md §9: current driver rejects the --prompt flag
// convention some historical revisions used).
type CodexDriver struct{}

// Name returns model.ProcessorCodex.
func (CodexDriver) Name() model.ProcessorName { return model.ProcessorCodex }

// BuildArgv assembles the codex exec invocation. When existingSessionID is
// non-empty the run resumes that session instead of starting fresh.
func (CodexDriver) BuildArgv(binaryPath, prompt, existingSessionID string) []string {
	argv := []string{binaryPath, "exec"}
	if existingSessionID != "" {
		argv = append(argv, "resume", existingSessionID)
	}
	argv = append(argv, "--full-auto", "--dangerously-bypass-approvals-and-sandbox", prompt)
	return argv
}
