package main

import (
	"context"
	"fmt"

	"github.com/misty-step/imploid/internal/github"
	"github.com/misty-step/imploid/internal/scheduler"
)

// githubAdapter narrows a *github.Client to scheduler.GitHubAdapter,
// translating github.ReadyIssue into the scheduler's decoupled shape.
type githubAdapter struct {
	client *github.Client
}

func (a githubAdapter) ListReadyIssues(ctx context.Context, owner, repo string) ([]scheduler.ReadyIssue, error) {
	issues, err := a.client.ListReadyIssues(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("github: list ready issues %s/%s: %w", owner, repo, err)
	}
	out := make([]scheduler.ReadyIssue, 0, len(issues))
	for _, issue := range issues {
		out = append(out, scheduler.ReadyIssue{
			Number:   issue.Number,
			Title:    issue.Title,
			RepoName: issue.RepoName,
		})
	}
	return out, nil
}

func (a githubAdapter) UpdateLabels(ctx context.Context, owner, repo string, number int, add, remove []string) error {
	return a.client.UpdateLabels(ctx, owner, repo, number, add, remove)
}
