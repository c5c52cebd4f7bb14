// Package report publishes migration progress as a GitHub commit status.
package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/go-github/v68/github"
	"github.com/zulandar/humpyard/internal/batch"
	"github.com/zulandar/humpyard/internal/status"
	"golang.org/x/oauth2"
)

// GitHub commit status states.
const (
	StateSuccess = "success"
	StateFailure = "failure"
	StatePending = "pending"
)

// maxDescription is GitHub's limit on status descriptions.
const maxDescription = 140

// Opts configures a Reporter.
type Opts struct {
	Owner   string
	Repo    string
	Context string // status context, e.g. humpyard/migration
	Token   string
	// For testing: a client pointed at an httptest server.
	Client   *github.Client
	Attempts uint
	Delay    time.Duration
}

// Reporter writes commit statuses for one repository.
type Reporter struct {
	client   *github.Client
	owner    string
	repo     string
	context  string
	attempts uint
	delay    time.Duration
}

// New creates a Reporter authenticated with an oauth2 static token.
func New(ctx context.Context, opts Opts) (*Reporter, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("report: github owner and repo are required")
	}
	client := opts.Client
	if client == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("report: GITHUB_TOKEN is required")
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	}
	r := &Reporter{
		client:   client,
		owner:    opts.Owner,
		repo:     opts.Repo,
		context:  opts.Context,
		attempts: opts.Attempts,
		delay:    opts.Delay,
	}
	if r.context == "" {
		r.context = "humpyard/migration"
	}
	if r.attempts == 0 {
		r.attempts = 3
	}
	if r.delay == 0 {
		r.delay = 500 * time.Millisecond
	}
	return r, nil
}

// Status is a commit status ready to publish.
type Status struct {
	State       string
	Description string
}

// FromReport describes a batch run. Any failed file makes the status a
// failure; a stopped run with files left is pending.
func FromReport(r *batch.Report) Status {
	desc := fmt.Sprintf("%d migrated, %d failed in %d batch(es)", r.Succeeded, r.Failed, r.Batches)
	switch {
	case r.Failed > 0:
		return Status{State: StateFailure, Description: desc}
	case r.Remaining() > 0:
		return Status{State: StatePending, Description: fmt.Sprintf("%s, %d left", desc, r.Remaining())}
	}
	return Status{State: StateSuccess, Description: desc}
}

// FromStatusFile describes overall progress from the status document.
func FromStatusFile(f *status.File) Status {
	desc := fmt.Sprintf("%d/%d files migrated (%.0f%%)",
		len(f.MigratedFiles), len(f.MigratedFiles)+len(f.PendingFiles), f.Progress()*100)
	if len(f.PendingFiles) == 0 {
		return Status{State: StateSuccess, Description: desc}
	}
	return Status{State: StatePending, Description: desc}
}

// Publish creates the commit status on sha, retrying transient failures.
func (r *Reporter) Publish(ctx context.Context, sha string, s Status) error {
	desc := s.Description
	if len(desc) > maxDescription {
		desc = desc[:maxDescription-1] + "…"
	}
	repoStatus := &github.RepoStatus{
		State:       github.Ptr(s.State),
		Description: github.Ptr(desc),
		Context:     github.Ptr(r.context),
	}

	err := retry.Do(func() error {
		_, _, err := r.client.Repositories.CreateStatus(ctx, r.owner, r.repo, sha, repoStatus)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
	if err != nil {
		return fmt.Errorf("report: create status on %s: %w", sha, err)
	}
	return nil
}

// retryable reports whether a GitHub API error is worth another attempt:
// server errors and secondary rate limits are, client errors are not.
func retryable(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
	}
	return true
}

// HeadSHA returns the commit checked out in dir.
func HeadSHA(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("report: git rev-parse HEAD in %s: %w", dir, err)
	}
	return strings.TrimSpace(string(out)), nil
}
