package release

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-github/v41/github"
	"github.com/partner-addons/addon-publisher/pkg/repository"
	"github.com/partner-addons/addon-publisher/pkg/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chartutil"
)

type fakeWorkspace struct {
	calls     *[]string
	resetErr  error
	branchErr error
	stageErr  error
	pushErr   error
	tornDown  int
}

func (f *fakeWorkspace) ResetToBase(ctx context.Context, base string) error {
	*f.calls = append(*f.calls, "reset:"+base)
	return f.resetErr
}

func (f *fakeWorkspace) CreateFeatureBranch(ctx context.Context, head string) error {
	*f.calls = append(*f.calls, "branch:"+head)
	return f.branchErr
}

func (f *fakeWorkspace) StageArtifact(ctx context.Context, srcPath, destName string) error {
	*f.calls = append(*f.calls, "stage:"+destName)
	return f.stageErr
}

func (f *fakeWorkspace) CommitAndPush(ctx context.Context, head, message string) error {
	*f.calls = append(*f.calls, "push:"+head)
	return f.pushErr
}

func (f *fakeWorkspace) Teardown() error {
	f.tornDown++
	return nil
}

type fakeSecretProvider struct {
	calls *[]string
	token string
	err   error
}

func (f *fakeSecretProvider) GetSecret(ctx context.Context, name string) (string, error) {
	*f.calls = append(*f.calls, "secret:"+name)
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type fakePullRequestClient struct {
	calls *[]string
	err   error

	token, owner, repo, title, body, base, head string
}

func (f *fakePullRequestClient) OpenPullRequest(ctx context.Context, token, owner, repo, title, body, base, head string) (*github.PullRequest, error) {
	*f.calls = append(*f.calls, "pull-request:"+head)
	f.token, f.owner, f.repo = token, owner, repo
	f.title, f.body, f.base, f.head = title, body, base, head
	if f.err != nil {
		return nil, f.err
	}
	return &github.PullRequest{Number: github.Int(7)}, nil
}

// newFakePipeline wires a pipeline over fakes and a staged dummy artifact
func newFakePipeline(t *testing.T) (*Pipeline, *fakeWorkspace, *fakeSecretProvider, *fakePullRequestClient, *[]string) {
	t.Helper()

	calls := &[]string{}
	ws := &fakeWorkspace{calls: calls}
	provider := &fakeSecretProvider{calls: calls, token: "gh-token-value"}
	prClient := &fakePullRequestClient{calls: calls}

	stagingRoot := t.TempDir()
	stagingDir := filepath.Join(stagingRoot, StagingDir("my-addon"))
	require.NoError(t, os.MkdirAll(stagingDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(stagingDir, ArtifactName("my-addon")), []byte("chart-bytes"), 0644))

	p := NewPipeline(Options{
		RepoURL:      "https://github.com/marketplace-partners/helm-addons.git",
		Owner:        "marketplace-partners",
		Repo:         "helm-addons",
		BaseBranch:   "main",
		SecretName:   "github-access-token-secret",
		WorkspaceDir: filepath.Join(stagingRoot, "workspace"),
		StagingRoot:  stagingRoot,
	}, provider, prClient)
	p.prepare = func(ctx context.Context, repoURL, dir string) (workspace, error) {
		*calls = append(*calls, "clone:"+repoURL)
		return ws, nil
	}
	p.verifyChart = func(ctx context.Context, path, addonName string) error {
		*calls = append(*calls, "verify:"+addonName)
		return nil
	}
	return p, ws, provider, prClient, calls
}

func Test_RunHappyPath(t *testing.T) {
	p, ws, _, prClient, calls := newFakePipeline(t)

	err := p.Run(context.Background(), Request{AddonName: "my-addon", Region: "us-east-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"clone:https://github.com/marketplace-partners/helm-addons.git",
		"reset:main",
		"branch:feature/my-addon",
		"verify:my-addon",
		"stage:my-addon.tgz",
		"push:feature/my-addon",
		"secret:github-access-token-secret",
		"pull-request:feature/my-addon",
	}, *calls)
	assert.Equal(t, 1, ws.tornDown)

	assert.Equal(t, "gh-token-value", prClient.token)
	assert.Equal(t, "Adding my-addon Addon", prClient.title)
	assert.Equal(t, "main", prClient.base)
	assert.Equal(t, "feature/my-addon", prClient.head)
}

// A failed clone goes through the default prepare wiring, it must surface
// the clone step and still clean up, not panic in the deferred teardown.
func Test_RunCloneFailure(t *testing.T) {
	calls := &[]string{}
	provider := &fakeSecretProvider{calls: calls, token: "gh-token-value"}
	prClient := &fakePullRequestClient{calls: calls}

	stagingRoot := t.TempDir()
	stagingDir := filepath.Join(stagingRoot, StagingDir("my-addon"))
	require.NoError(t, os.MkdirAll(stagingDir, 0755))

	p := NewPipeline(Options{
		RepoURL:      filepath.Join(t.TempDir(), "no-such-repo"),
		Owner:        "marketplace-partners",
		Repo:         "helm-addons",
		BaseBranch:   "main",
		SecretName:   "github-access-token-secret",
		WorkspaceDir: filepath.Join(stagingRoot, "workspace"),
		StagingRoot:  stagingRoot,
	}, provider, prClient)

	err := p.Run(context.Background(), Request{AddonName: "my-addon"})
	var relErr *Error
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, StepClone, relErr.Step)
	assert.ErrorIs(t, err, repository.ErrCloneFailed)

	// teardown still removed the staging directory
	_, statErr := os.Stat(stagingDir)
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, *calls)
}

func Test_RunArtifactMissing(t *testing.T) {
	p, ws, _, _, calls := newFakePipeline(t)
	require.NoError(t, os.RemoveAll(filepath.Join(p.opts.StagingRoot, StagingDir("my-addon"))))

	err := p.Run(context.Background(), Request{AddonName: "my-addon"})

	var relErr *Error
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, StepStageArtifact, relErr.Step)
	assert.ErrorIs(t, err, repository.ErrArtifactMissing)

	// teardown ran, nothing was pushed
	assert.Equal(t, 1, ws.tornDown)
	assert.NotContains(t, *calls, "push:feature/my-addon")
}

func Test_RunSecretNotFound(t *testing.T) {
	p, ws, provider, _, calls := newFakePipeline(t)
	provider.err = secrets.ErrSecretNotFound

	err := p.Run(context.Background(), Request{AddonName: "my-addon"})

	var relErr *Error
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, StepSecretFetch, relErr.Step)
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)

	// the git-side work completed before the credential was needed
	assert.Contains(t, *calls, "push:feature/my-addon")
	assert.NotContains(t, *calls, "pull-request:feature/my-addon")
	assert.Equal(t, 1, ws.tornDown)
}

func Test_RunPullRequestAlreadyExists(t *testing.T) {
	p, ws, _, prClient, _ := newFakePipeline(t)
	prClient.err = repository.ErrPullRequestExists

	err := p.Run(context.Background(), Request{AddonName: "my-addon"})
	assert.NoError(t, err)
	assert.Equal(t, 1, ws.tornDown)
}

func Test_RunPushRejected(t *testing.T) {
	p, ws, _, _, calls := newFakePipeline(t)
	ws.pushErr = repository.ErrPushRejected

	err := p.Run(context.Background(), Request{AddonName: "my-addon"})

	var relErr *Error
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, StepPush, relErr.Step)
	// a failed push aborts the pull-request phase instead of continuing
	assert.NotContains(t, *calls, "secret:github-access-token-secret")
	assert.Equal(t, 1, ws.tornDown)
}

// initOrigin creates a local repository with one commit on main to stand in
// for the marketplace charts remote.
func initOrigin(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{
			DefaultBranch: plumbing.NewBranchReferenceName("main"),
		},
	})
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("marketplace addons\n"), 0644))
	_, err = wt.Add(".")
	require.NoError(t, err)
	_, err = wt.Commit("initial commit", &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", When: time.Now()},
	})
	require.NoError(t, err)

	return dir
}

// stageAddonChart packages a real chart archive at the well-known staging path
func stageAddonChart(t *testing.T, stagingRoot, addonName string) {
	t.Helper()

	stagingDir := filepath.Join(stagingRoot, StagingDir(addonName))
	require.NoError(t, os.MkdirAll(stagingDir, 0755))

	c := &chart.Chart{
		Metadata: &chart.Metadata{
			APIVersion: chart.APIVersionV2,
			Name:       addonName,
			Version:    "1.0.0",
		},
	}
	path, err := chartutil.Save(c, stagingDir)
	require.NoError(t, err)
	// chartutil names the archive {name}-{version}.tgz, the packaging step
	// stages it as {name}.tgz
	require.NoError(t, os.Rename(path, filepath.Join(stagingDir, ArtifactName(addonName))))
}

func newEndToEndPipeline(t *testing.T, provider *fakeSecretProvider, prClient *fakePullRequestClient) (*Pipeline, string, string) {
	t.Helper()

	origin := initOrigin(t)
	stagingRoot := t.TempDir()
	stageAddonChart(t, stagingRoot, "my-addon")

	p := NewPipeline(Options{
		RepoURL:      origin,
		Owner:        "marketplace-partners",
		Repo:         "helm-addons",
		BaseBranch:   "main",
		SecretName:   "github-access-token-secret",
		WorkspaceDir: filepath.Join(stagingRoot, "workspace"),
		StagingRoot:  stagingRoot,
	}, provider, prClient)
	return p, origin, stagingRoot
}

func Test_RunEndToEnd(t *testing.T) {
	calls := &[]string{}
	provider := &fakeSecretProvider{calls: calls, token: "gh-token-value"}
	prClient := &fakePullRequestClient{calls: calls}
	p, origin, stagingRoot := newEndToEndPipeline(t, provider, prClient)

	err := p.Run(context.Background(), Request{AddonName: "my-addon", Region: "us-east-1"})
	require.NoError(t, err)

	// the pull request references the pushed branch
	assert.Equal(t, "Adding my-addon Addon", prClient.title)
	assert.Equal(t, "feature/my-addon", prClient.head)
	assert.Equal(t, "main", prClient.base)

	originRepo, err := gogit.PlainOpen(origin)
	require.NoError(t, err)
	ref, err := originRepo.Reference(plumbing.NewBranchReferenceName("feature/my-addon"), false)
	require.NoError(t, err)
	commit, err := originRepo.CommitObject(ref.Hash())
	require.NoError(t, err)
	tree, err := commit.Tree()
	require.NoError(t, err)
	_, err = tree.File("my-addon.tgz")
	assert.NoError(t, err)

	// both transient directories are gone
	_, err = os.Stat(filepath.Join(stagingRoot, "workspace"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(stagingRoot, StagingDir("my-addon")))
	assert.True(t, os.IsNotExist(err))
}

func Test_RunEndToEndSecretNotFound(t *testing.T) {
	calls := &[]string{}
	provider := &fakeSecretProvider{calls: calls, err: secrets.ErrSecretNotFound}
	prClient := &fakePullRequestClient{calls: calls}
	p, origin, stagingRoot := newEndToEndPipeline(t, provider, prClient)

	err := p.Run(context.Background(), Request{AddonName: "my-addon", Region: "us-east-1"})

	var relErr *Error
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, StepSecretFetch, relErr.Step)
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)

	// the branch still made it to the remote
	originRepo, err := gogit.PlainOpen(origin)
	require.NoError(t, err)
	_, err = originRepo.Reference(plumbing.NewBranchReferenceName("feature/my-addon"), false)
	assert.NoError(t, err)

	// no pull request was opened, cleanup still ran
	assert.NotContains(t, *calls, "pull-request:feature/my-addon")
	_, err = os.Stat(filepath.Join(stagingRoot, "workspace"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(stagingRoot, StagingDir("my-addon")))
	assert.True(t, os.IsNotExist(err))
}
