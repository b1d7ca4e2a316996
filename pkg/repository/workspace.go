// Package repository manages the transient local clone of the marketplace
// charts repository and the pull requests opened against it.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/partner-addons/addon-publisher/pkg/filesystem"
	"github.com/partner-addons/addon-publisher/pkg/logger"
)

const defaultRemote = "origin"

var (
	// ErrCloneFailed indicates the target repository could not be cloned
	ErrCloneFailed = errors.New("failed to clone repository")
	// ErrBaseResetFailed indicates the base branch could not be reset to the remote tip
	ErrBaseResetFailed = errors.New("failed to reset base branch")
	// ErrArtifactMissing indicates the packaged addon artifact does not exist
	ErrArtifactMissing = errors.New("packaged addon artifact missing")
	// ErrPushRejected indicates the feature branch could not be pushed
	ErrPushRejected = errors.New("failed to push feature branch")
)

// Workspace is a disposable local clone of the target repository.
// It lives for one release run and is removed by Teardown on every exit path.
type Workspace struct {
	Dir  string
	repo *gogit.Repository
}

// Prepare removes any stale workspace directory at dir and clones repoURL
// into a fresh one.
func Prepare(ctx context.Context, repoURL, dir string) (*Workspace, error) {
	logger.Log(ctx, slog.LevelInfo, "cloning repository", slog.String("url", repoURL), slog.String("dir", dir))

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("%w: removing stale workspace %s: %s", ErrCloneFailed, dir, err)
	}

	repo, err := gogit.PlainCloneContext(ctx, dir, false, &gogit.CloneOptions{
		URL: repoURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrCloneFailed, repoURL, err)
	}

	return &Workspace{Dir: dir, repo: repo}, nil
}

// ResetToBase checks out the base branch and hard-resets it to the remote
// tip, so the feature branch is always cut from an up-to-date base.
func (w *Workspace) ResetToBase(ctx context.Context, base string) error {
	logger.Log(ctx, slog.LevelInfo, "resetting base branch", slog.String("branch", base))

	err := w.repo.FetchContext(ctx, &gogit.FetchOptions{RemoteName: defaultRemote})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return fmt.Errorf("%w: fetch: %s", ErrBaseResetFailed, err)
	}

	remoteRef, err := w.repo.Reference(plumbing.NewRemoteReferenceName(defaultRemote, base), true)
	if err != nil {
		return fmt.Errorf("%w: no remote branch %s: %s", ErrBaseResetFailed, base, err)
	}

	wt, err := w.repo.Worktree()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBaseResetFailed, err)
	}

	baseRef := plumbing.NewBranchReferenceName(base)
	checkout := &gogit.CheckoutOptions{Branch: baseRef, Force: true}
	if _, err := w.repo.Reference(baseRef, false); err == plumbing.ErrReferenceNotFound {
		checkout.Create = true
		checkout.Hash = remoteRef.Hash()
	} else if err != nil {
		return fmt.Errorf("%w: %s", ErrBaseResetFailed, err)
	}
	if err := wt.Checkout(checkout); err != nil {
		return fmt.Errorf("%w: checkout %s: %s", ErrBaseResetFailed, base, err)
	}

	if err := wt.Reset(&gogit.ResetOptions{Mode: gogit.HardReset, Commit: remoteRef.Hash()}); err != nil {
		return fmt.Errorf("%w: hard reset to %s: %s", ErrBaseResetFailed, remoteRef.Hash(), err)
	}

	return nil
}

// CreateFeatureBranch deletes any local branch with the same name and then
// creates and checks out a new one from the current HEAD. Retried runs for
// the same addon never need manual branch cleanup.
func (w *Workspace) CreateFeatureBranch(ctx context.Context, head string) error {
	logger.Log(ctx, slog.LevelInfo, "creating feature branch", slog.String("branch", head))

	headRef := plumbing.NewBranchReferenceName(head)
	if _, err := w.repo.Reference(headRef, false); err == nil {
		if err := w.repo.Storer.RemoveReference(headRef); err != nil {
			return fmt.Errorf("deleting stale branch %s: %w", head, err)
		}
	} else if err != plumbing.ErrReferenceNotFound {
		return fmt.Errorf("checking for stale branch %s: %w", head, err)
	}

	wt, err := w.repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{Branch: headRef, Create: true}); err != nil {
		return fmt.Errorf("creating branch %s: %w", head, err)
	}
	return nil
}

// StageArtifact copies the packaged artifact at srcPath into the workspace
// root under destName.
func (w *Workspace) StageArtifact(ctx context.Context, srcPath, destName string) error {
	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrArtifactMissing, srcPath)
		}
		return fmt.Errorf("checking artifact %s: %w", srcPath, err)
	}

	logger.Log(ctx, slog.LevelInfo, "staging artifact",
		slog.String("src", srcPath), slog.String("dest", destName))

	srcFs := filesystem.GetFilesystem(filepath.Dir(srcPath))
	dstFs := filesystem.GetFilesystem(w.Dir)
	return filesystem.CopyFile(ctx, srcFs, filepath.Base(srcPath), dstFs, destName)
}

// CommitAndPush stages all changes, commits them and pushes the feature
// branch to the remote. The push is forced so a retried run replaces the
// remote branch left behind by a previous attempt.
func (w *Workspace) CommitAndPush(ctx context.Context, head, message string) error {
	wt, err := w.repo.Worktree()
	if err != nil {
		return err
	}

	status, err := wt.Status()
	if err != nil {
		return err
	}
	if status.IsClean() {
		return fmt.Errorf("cannot create commit since there are no files to be committed")
	}

	if _, err := wt.Add("."); err != nil {
		return err
	}
	if _, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name: "addon-publisher",
			When: time.Now(),
		},
	}); err != nil {
		return err
	}

	logger.Log(ctx, slog.LevelInfo, "pushing feature branch", slog.String("branch", head))

	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", head, head))
	err = w.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: defaultRemote,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Force:      true,
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return fmt.Errorf("%w: %s", ErrPushRejected, err)
	}
	return nil
}

// Teardown recursively removes the workspace directory
func (w *Workspace) Teardown() error {
	return os.RemoveAll(w.Dir)
}
