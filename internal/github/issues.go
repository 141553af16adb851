package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ReadyLabel is the label the scheduler polls for (spec.md §4.5).
const ReadyLabel = "agent-ready"

// ReadyIssue is an Issue annotated with the repository it came from, since
// the scheduler fans out across multiple configured repos.
type ReadyIssue struct {
	Issue
	RepoName string `json:"repo_name"`
}

// ListReadyIssues fetches open issues labeled agent-ready for repo
// "<owner>/<name>", annotating each with repo_name.
func (c *Client) ListReadyIssues(ctx context.Context, owner, repo string) ([]ReadyIssue, error) {
	if err := c.validateRepo(owner, repo); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/issues?labels=%s&state=open", owner, repo, ReadyLabel)
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	if err := c.do(req, &issues); err != nil {
		return nil, err
	}

	out := make([]ReadyIssue, 0, len(issues))
	repoName := owner + "/" + repo
	for _, issue := range issues {
		out = append(out, ReadyIssue{Issue: issue, RepoName: repoName})
	}
	return out, nil
}

// labelSet fetches the current label names on an issue.
func (c *Client) labelSet(ctx context.Context, owner, repo string, number int) (map[string]bool, error) {
	issue, err := c.GetIssue(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(issue.Labels))
	for _, l := range issue.Labels {
		set[l.Name] = true
	}
	return set, nil
}

// UpdateLabels applies remove then add to the issue's label set and PUTs
// the final set. Safe to re-invoke with the same arguments: applying a
// label already present, or removing one already absent, is a no-op for
// that label (spec.md §4.5 idempotence).
func (c *Client) UpdateLabels(ctx context.Context, owner, repo string, number int, add, remove []string) error {
	if err := c.validateRepo(owner, repo); err != nil {
		return err
	}

	current, err := c.labelSet(ctx, owner, repo, number)
	if err != nil {
		return err
	}

	for _, name := range remove {
		delete(current, name)
	}
	for _, name := range add {
		current[name] = true
	}

	final := make([]string, 0, len(current))
	for name := range current {
		final = append(final, name)
	}

	payload := struct {
		Labels []string `json:"labels"`
	}{Labels: final}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("github: encode labels: %w", err)
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
	req, err := c.newRequest(ctx, http.MethodPut, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// CreateComment posts a new comment on the issue.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	if err := c.validateRepo(owner, repo); err != nil {
		return err
	}
	payload := struct {
		Body string `json:"body"`
	}{Body: body}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("github: encode comment: %w", err)
	}
	endpoint := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
