package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v41/github"
	"github.com/partner-addons/addon-publisher/pkg/logger"
	"golang.org/x/oauth2"
)

var (
	// ErrAuthInvalid indicates the credential was rejected by the pull-request host
	ErrAuthInvalid = errors.New("pull request credential rejected")
	// ErrHeadNotFound indicates the head branch does not exist on the remote
	ErrHeadNotFound = errors.New("pull request head branch not found")
	// ErrPullRequestExists indicates a pull request for this head branch is already open.
	// Callers should treat this as a success-equivalent outcome.
	ErrPullRequestExists = errors.New("pull request already exists")
)

// GithubClient opens pull requests against a hosted repository.
// The credential is supplied per call, it is fetched late in the release
// flow and never stored.
type GithubClient struct {
	newClient func(ctx context.Context, token string) *github.Client
}

// NewGithubClient returns a GithubClient backed by the public GitHub API
func NewGithubClient() *GithubClient {
	return &GithubClient{newClient: newTokenClient}
}

// newTokenClient creates a client that can make requests to the Github API
func newTokenClient(ctx context.Context, token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
	})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// OpenPullRequest opens a pull request from head into base on owner/repo,
// authenticated with token.
func (g *GithubClient) OpenPullRequest(ctx context.Context, token, owner, repo, title, body, base, head string) (*github.PullRequest, error) {
	client := g.newClient(ctx, token)

	pr, _, err := client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(title),
		Body:  github.String(body),
		Base:  github.String(base),
		Head:  github.String(head),
	})
	if err != nil {
		return nil, classifyPullRequestError(err)
	}

	logger.Log(ctx, slog.LevelInfo, "opened pull request",
		slog.String("repo", owner+"/"+repo),
		slog.String("url", pr.GetHTMLURL()))
	return pr, nil
}

// classifyPullRequestError maps GitHub API failures onto the package's
// error kinds so callers can distinguish retriable outcomes.
func classifyPullRequestError(err error) error {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return err
	}

	switch ghErr.Response.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthInvalid, ghErr.Message)
	case http.StatusUnprocessableEntity:
		for _, e := range ghErr.Errors {
			if strings.Contains(strings.ToLower(e.Message), "pull request already exists") {
				return fmt.Errorf("%w: %s", ErrPullRequestExists, e.Message)
			}
			if e.Field == "head" {
				return fmt.Errorf("%w: %s", ErrHeadNotFound, ghErr.Message)
			}
		}
	}
	return err
}
