// Package release drives the end-to-end submission of one packaged addon:
// clone, branch, stage, push, then open a pull request with a credential
// fetched from the secret store.
package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/go-github/v41/github"
	"github.com/partner-addons/addon-publisher/pkg/helm"
	"github.com/partner-addons/addon-publisher/pkg/logger"
	"github.com/partner-addons/addon-publisher/pkg/repository"
	"github.com/partner-addons/addon-publisher/pkg/secrets"
)

// Step names the phase of the release flow that an error belongs to
type Step string

const (
	StepClone         Step = "clone"
	StepBaseReset     Step = "base-reset"
	StepFeatureBranch Step = "feature-branch"
	StepStageArtifact Step = "stage-artifact"
	StepPush          Step = "push"
	StepSecretFetch   Step = "secret-fetch"
	StepPullRequest   Step = "pull-request"
)

// Error is a release failure tagged with the step it occurred in
type Error struct {
	Step Step
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("release step %q failed: %s", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Request identifies one addon submission
type Request struct {
	AddonName string
	Region    string
}

// Options parameterizes one pipeline against a target repository
type Options struct {
	RepoURL      string
	Owner        string
	Repo         string
	BaseBranch   string
	SecretName   string
	WorkspaceDir string
	// StagingRoot is the directory the packaging step dropped the
	// unzipped-{addon} staging directory into, usually the cwd
	StagingRoot string
	StepTimeout time.Duration
}

// workspace is the slice of repository.Workspace the pipeline drives
type workspace interface {
	ResetToBase(ctx context.Context, base string) error
	CreateFeatureBranch(ctx context.Context, head string) error
	StageArtifact(ctx context.Context, srcPath, destName string) error
	CommitAndPush(ctx context.Context, head, message string) error
	Teardown() error
}

// pullRequestOpener is the capability to open a pull request with a credential
type pullRequestOpener interface {
	OpenPullRequest(ctx context.Context, token, owner, repo, title, body, base, head string) (*github.PullRequest, error)
}

// Pipeline composes the secret provider, repository workspace and
// pull-request client into the release flow for one addon
type Pipeline struct {
	opts     Options
	secrets  secrets.Provider
	prClient pullRequestOpener

	prepare     func(ctx context.Context, repoURL, dir string) (workspace, error)
	verifyChart func(ctx context.Context, path, addonName string) error
}

// NewPipeline builds a Pipeline over the real workspace and chart loader
func NewPipeline(opts Options, provider secrets.Provider, prClient pullRequestOpener) *Pipeline {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 2 * time.Minute
	}
	if opts.StagingRoot == "" {
		opts.StagingRoot = "."
	}
	return &Pipeline{
		opts:     opts,
		secrets:  provider,
		prClient: prClient,
		prepare: func(ctx context.Context, repoURL, dir string) (workspace, error) {
			// A typed nil *Workspace must not reach the workspace interface,
			// the deferred teardown checks it against untyped nil
			ws, err := repository.Prepare(ctx, repoURL, dir)
			if err != nil {
				return nil, err
			}
			return ws, nil
		},
		verifyChart: helm.VerifyAddonArchive,
	}
}

// StagingDir returns the well-known staging directory for an addon's
// packaged artifact
func StagingDir(addonName string) string {
	return "unzipped-" + addonName
}

// ArtifactName returns the packaged artifact file name for an addon
func ArtifactName(addonName string) string {
	return addonName + ".tgz"
}

// FeatureBranch returns the head branch name for an addon submission
func FeatureBranch(addonName string) string {
	return "feature/" + addonName
}

// PullRequestTitle returns the title of an addon submission pull request
func PullRequestTitle(addonName string) string {
	return fmt.Sprintf("Adding %s Addon", addonName)
}

// Run executes the release flow for one addon. The workspace and the
// artifact staging directory are removed on every exit path.
func (p *Pipeline) Run(ctx context.Context, req Request) error {
	head := FeatureBranch(req.AddonName)
	stagingDir := filepath.Join(p.opts.StagingRoot, StagingDir(req.AddonName))
	artifactPath := filepath.Join(stagingDir, ArtifactName(req.AddonName))

	logger.Log(ctx, slog.LevelInfo, "starting addon release",
		slog.String("addon", req.AddonName),
		slog.String("repository", p.opts.Owner+"/"+p.opts.Repo),
		slog.String("head", head),
		slog.String("base", p.opts.BaseBranch))

	var ws workspace
	defer func() {
		p.teardown(ctx, ws, stagingDir)
	}()

	cloneCtx, cancelClone := p.stepContext(ctx)
	ws, err := p.prepare(cloneCtx, p.opts.RepoURL, p.opts.WorkspaceDir)
	cancelClone()
	if err != nil {
		return &Error{Step: StepClone, Err: err}
	}

	resetCtx, cancelReset := p.stepContext(ctx)
	err = ws.ResetToBase(resetCtx, p.opts.BaseBranch)
	cancelReset()
	if err != nil {
		return &Error{Step: StepBaseReset, Err: err}
	}

	if err := ws.CreateFeatureBranch(ctx, head); err != nil {
		return &Error{Step: StepFeatureBranch, Err: err}
	}

	if err := p.stageArtifact(ctx, ws, req.AddonName, artifactPath); err != nil {
		return &Error{Step: StepStageArtifact, Err: err}
	}

	pushCtx, cancelPush := p.stepContext(ctx)
	err = ws.CommitAndPush(pushCtx, head, fmt.Sprintf("Add %s addon artifact", req.AddonName))
	cancelPush()
	if err != nil {
		return &Error{Step: StepPush, Err: err}
	}

	// The credential is fetched only after the push succeeds, so a bad or
	// missing secret never blocks the reusable git-side work.
	secretCtx, cancelSecret := p.stepContext(ctx)
	token, err := p.secrets.GetSecret(secretCtx, p.opts.SecretName)
	cancelSecret()
	if err != nil {
		return &Error{Step: StepSecretFetch, Err: err}
	}

	if err := p.openPullRequest(ctx, token, req.AddonName, head); err != nil {
		return &Error{Step: StepPullRequest, Err: err}
	}

	return nil
}

func (p *Pipeline) stageArtifact(ctx context.Context, ws workspace, addonName, artifactPath string) error {
	if _, err := os.Stat(artifactPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", repository.ErrArtifactMissing, artifactPath)
		}
		return err
	}
	if err := p.verifyChart(ctx, artifactPath, addonName); err != nil {
		return err
	}
	return ws.StageArtifact(ctx, artifactPath, ArtifactName(addonName))
}

func (p *Pipeline) openPullRequest(ctx context.Context, token, addonName, head string) error {
	body := fmt.Sprintf("Automated submission of the packaged %s addon.", addonName)

	stepCtx, cancel := p.stepContext(ctx)
	defer cancel()

	_, err := p.prClient.OpenPullRequest(stepCtx, token,
		p.opts.Owner, p.opts.Repo,
		PullRequestTitle(addonName), body,
		p.opts.BaseBranch, head)
	if errors.Is(err, repository.ErrPullRequestExists) {
		// The net effect already holds: a pull request exists for this head
		logger.Log(ctx, slog.LevelInfo, "pull request already exists",
			slog.String("head", head))
		return nil
	}
	return err
}

// stepContext bounds one network step of the flow with the configured timeout
func (p *Pipeline) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.opts.StepTimeout)
}

// teardown removes the workspace and the artifact staging directory.
// It runs on every exit path, success or failure.
func (p *Pipeline) teardown(ctx context.Context, ws workspace, stagingDir string) {
	if ws != nil {
		if err := ws.Teardown(); err != nil {
			logger.Log(ctx, slog.LevelWarn, "failed to remove workspace", logger.Err(err))
		}
	} else if err := os.RemoveAll(p.opts.WorkspaceDir); err != nil {
		logger.Log(ctx, slog.LevelWarn, "failed to remove workspace directory", logger.Err(err))
	}
	if err := os.RemoveAll(stagingDir); err != nil {
		logger.Log(ctx, slog.LevelWarn, "failed to remove staging directory", logger.Err(err))
	}
	logger.Log(ctx, slog.LevelDebug, "cleaned up release directories",
		slog.String("workspace", p.opts.WorkspaceDir),
		slog.String("staging", stagingDir))
}
