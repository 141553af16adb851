package processor

import "github.com/misty-step/imploid/internal/model"

// ClaudeRequiredFlags are always present in a claude invocation, adapted
// from bb's internal/claude.RequiredFlags to the imploid prompt-as-argument
// convention: the prompt is passed as a trailing positional argument
// rather than inline after -p.
var ClaudeRequiredFlags = []string{
	"--dangerously-skip-permissions",
	"--permission-mode",
	"bypassPermissions",
	"--verbose",
	"--output-format",
	"stream-json",
	"-p",
}

// ClaudeDriver drives the claude CLI.
type ClaudeDriver struct{}

// Name returns model.ProcessorClaude.
func (ClaudeDriver) Name() model.ProcessorName { return model.ProcessorClaude }

// BuildArgv assembles binaryPath, the required flags, and the prompt as a
// single trailing argument. existingSessionID is unused: claude resumes
// state through its own session mechanism keyed by the session id recorded
// separately, not via an argv flag.
func (ClaudeDriver) BuildArgv(binaryPath, prompt, existingSessionID string) []string {
	_ = existingSessionID
	argv := make([]string, 0, len(ClaudeRequiredFlags)+2)
	argv = append(argv, binaryPath)
	argv = append(argv, ClaudeRequiredFlags...)
	argv = append(argv, prompt)
	return argv
}
