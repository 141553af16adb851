// Package gitworkspace manages per-(processor, agent_index, repo) worktrees
// on disk, spec.md §4.4. Grounded on bb's internal/clients.GitCLI, which
// wraps git invocations behind a Runner; here the runner is
// internal/process.RunCommand, since both packages need the same
// fully-captured synchronous exec behavior.
package gitworkspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/misty-step/imploid/internal/imperrors"
	"github.com/misty-step/imploid/internal/model"
	"github.com/misty-step/imploid/internal/process"
)

// Workspace resolves and prepares git worktrees under a base directory.
type Workspace struct {
	BaseRepoPath string
}

// New returns a Workspace rooted at baseRepoPath.
func New(baseRepoPath string) *Workspace {
	return &Workspace{BaseRepoPath: baseRepoPath}
}

// Dir returns the worktree directory for (processor, agentIndex, repo):
// <base_repo_path>/<processor>/<short_repo_name>_agent_<index>.
func (w *Workspace) Dir(processor model.ProcessorName, agentIndex int, repo string) string {
	short := repo
	if idx := strings.LastIndex(repo, "/"); idx >= 0 {
		short = repo[idx+1:]
	}
	return filepath.Join(w.BaseRepoPath, string(processor), fmt.Sprintf("%s_agent_%d", short, agentIndex))
}

func (w *Workspace) runGit(ctx context.Context, dir string, args ...string) (process.Result, error) {
	argv := append([]string{"git"}, args...)
	return process.RunCommand(ctx, argv, process.Options{Cwd: dir})
}

// EnsureClone guarantees a ready worktree for (processor, agentIndex, repo)
// and returns its path: cloning if absent, otherwise refreshing from the
// default branch and enforcing a clean tree.
func (w *Workspace) EnsureClone(ctx context.Context, processor model.ProcessorName, agentIndex int, repo string) (string, error) {
	dir := w.Dir(processor, agentIndex, repo)

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", &imperrors.IOError{Op: "mkdir", Path: dir, Err: err}
		}
		url := fmt.Sprintf("git@github.com:%s.git", repo)
		res, err := process.RunCommand(ctx, []string{"git", "clone", url, dir}, process.Options{})
		if err != nil {
			return "", &imperrors.GitError{Step: "clone", Stderr: err.Error()}
		}
		if res.ExitCode != 0 {
			return "", &imperrors.GitError{Step: "clone", Stderr: res.Stderr}
		}
	} else {
		branch, err := w.PrepareDefaultBranch(ctx, dir)
		if err != nil {
			return "", err
		}
		if res, err := w.runGit(ctx, dir, "fetch", "origin"); err != nil || res.ExitCode != 0 {
			return "", &imperrors.GitError{Step: "fetch", Stderr: stderrOf(res, err)}
		}
		if res, err := w.runGit(ctx, dir, "pull", "origin", branch); err != nil || res.ExitCode != 0 {
			return "", &imperrors.GitError{Step: "pull", Stderr: stderrOf(res, err)}
		}
	}

	if err := w.enforceClean(ctx, dir); err != nil {
		return "", err
	}

	w.runSetupScript(ctx, dir)

	return dir, nil
}

// enforceClean resets and cleans the worktree if it is dirty.
func (w *Workspace) enforceClean(ctx context.Context, dir string) error {
	status, err := w.runGit(ctx, dir, "status", "--porcelain")
	if err != nil {
		return &imperrors.GitError{Step: "status", Stderr: err.Error()}
	}
	if strings.TrimSpace(status.Stdout) == "" {
		return nil
	}
	if res, err := w.runGit(ctx, dir, "reset", "--hard"); err != nil || res.ExitCode != 0 {
		return &imperrors.GitError{Step: "reset --hard", Stderr: stderrOf(res, err)}
	}
	if res, err := w.runGit(ctx, dir, "clean", "-fd"); err != nil || res.ExitCode != 0 {
		return &imperrors.GitError{Step: "clean -fd", Stderr: stderrOf(res, err)}
	}
	return nil
}

// runSetupScript best-effort chmods and runs ./setup.sh if present. A
// non-zero exit is a warning, not fatal (spec.md §4.4).
func (w *Workspace) runSetupScript(ctx context.Context, dir string) {
	setup := filepath.Join(dir, "setup.sh")
	if _, err := os.Stat(setup); err != nil {
		return
	}
	_ = os.Chmod(setup, 0o755)
	_, _ = process.RunCommand(ctx, []string{"./setup.sh"}, process.Options{Cwd: dir})
}

// PrepareDefaultBranch checks out the default branch (main, falling back
// to master), hard-resets it to origin, cleans, and returns the branch name.
func (w *Workspace) PrepareDefaultBranch(ctx context.Context, dir string) (string, error) {
	branch := "main"
	if res, err := w.runGit(ctx, dir, "checkout", "main"); err != nil || res.ExitCode != 0 {
		if res2, err2 := w.runGit(ctx, dir, "checkout", "master"); err2 != nil || res2.ExitCode != 0 {
			return "", &imperrors.GitError{Step: "checkout default branch", Stderr: stderrOf(res, err)}
		}
		branch = "master"
	}

	if res, err := w.runGit(ctx, dir, "reset", "--hard", "origin/"+branch); err != nil || res.ExitCode != 0 {
		if res2, err2 := w.runGit(ctx, dir, "reset", "--hard"); err2 != nil || res2.ExitCode != 0 {
			return "", &imperrors.GitError{Step: "reset --hard", Stderr: stderrOf(res2, err2)}
		}
	}
	if res, err := w.runGit(ctx, dir, "clean", "-fd"); err != nil || res.ExitCode != 0 {
		return "", &imperrors.GitError{Step: "clean -fd", Stderr: stderrOf(res, err)}
	}
	return branch, nil
}

// PrepareIssueBranch creates (or resets) branchName from the
// freshly-reset default branch. Post-condition: working tree is clean on
// branchName, or an error is returned.
func (w *Workspace) PrepareIssueBranch(ctx context.Context, dir, branchName string) error {
	if res, err := w.runGit(ctx, dir, "checkout", "-B", branchName); err != nil || res.ExitCode != 0 {
		return &imperrors.GitError{Step: "checkout -B " + branchName, Stderr: stderrOf(res, err)}
	}
	status, err := w.runGit(ctx, dir, "status", "--porcelain")
	if err != nil || strings.TrimSpace(status.Stdout) != "" {
		return &imperrors.GitError{Step: "post-checkout status", Stderr: strings.TrimSpace(status.Stdout)}
	}
	return nil
}

func stderrOf(res process.Result, err error) string {
	if err != nil {
		var spawnErr *imperrors.SpawnError
		if ok := isSpawnError(err, &spawnErr); ok {
			return spawnErr.Error()
		}
		return err.Error()
	}
	return res.Stderr
}

func isSpawnError(err error, target **imperrors.SpawnError) bool {
	se, ok := err.(*imperrors.SpawnError)
	if ok {
		*target = se
	}
	return ok
}
