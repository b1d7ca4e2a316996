package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v41/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestGithubClient points the client at a stub GitHub API server
func newTestGithubClient(t *testing.T, handler http.HandlerFunc) *GithubClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &GithubClient{
		newClient: func(ctx context.Context, token string) *github.Client {
			client := github.NewClient(nil)
			baseURL, err := url.Parse(server.URL + "/")
			require.NoError(t, err)
			client.BaseURL = baseURL
			return client
		},
	}
}

func Test_OpenPullRequest(t *testing.T) {
	var gotPath string
	client := newTestGithubClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number": 7, "html_url": "https://github.com/marketplace-partners/helm-addons/pull/7"}`)
	})

	pr, err := client.OpenPullRequest(context.Background(), "token",
		"marketplace-partners", "helm-addons",
		"Adding my-addon Addon", "body", "main", "feature/my-addon")
	require.NoError(t, err)

	assert.Equal(t, "/repos/marketplace-partners/helm-addons/pulls", gotPath)
	assert.Equal(t, 7, pr.GetNumber())
}

func Test_OpenPullRequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "#1 - already exists",
			status:  http.StatusUnprocessableEntity,
			body:    `{"message":"Validation Failed","errors":[{"resource":"PullRequest","code":"custom","message":"A pull request already exists for marketplace-partners:feature/my-addon."}]}`,
			wantErr: ErrPullRequestExists,
		},
		{
			name:    "#2 - head branch not pushed",
			status:  http.StatusUnprocessableEntity,
			body:    `{"message":"Validation Failed","errors":[{"resource":"PullRequest","field":"head","code":"invalid"}]}`,
			wantErr: ErrHeadNotFound,
		},
		{
			name:    "#3 - bad credentials",
			status:  http.StatusUnauthorized,
			body:    `{"message":"Bad credentials"}`,
			wantErr: ErrAuthInvalid,
		},
		{
			name:    "#4 - expired token",
			status:  http.StatusForbidden,
			body:    `{"message":"Resource not accessible by integration"}`,
			wantErr: ErrAuthInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestGithubClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := client.OpenPullRequest(context.Background(), "token",
				"marketplace-partners", "helm-addons",
				"Adding my-addon Addon", "body", "main", "feature/my-addon")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func Test_classifyPullRequestErrorPassthrough(t *testing.T) {
	err := fmt.Errorf("connection refused")
	assert.Equal(t, err, classifyPullRequestError(err))
}
