// Package options loads the script options file (configuration.yaml) that
// points the release flow at the marketplace charts repository.
package options

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/partner-addons/addon-publisher/pkg/logger"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultScriptOptionsFile is the default path of the script options file
	DefaultScriptOptionsFile = "configuration.yaml"

	defaultOwner        = "marketplace-partners"
	defaultRepository   = "helm-addons"
	defaultBaseBranch   = "main"
	defaultSecretName   = "github-access-token-secret"
	defaultWorkspaceDir = "addon-workspace"
	defaultStepTimeout  = 2 * time.Minute
)

// ScriptOptions holds the options provided at configuration.yaml
type ScriptOptions struct {
	Repository         RepositoryOptions `yaml:"repository"`
	SecretName         string            `yaml:"secretName"`
	WorkspaceDir       string            `yaml:"workspaceDir"`
	StepTimeoutSeconds int               `yaml:"stepTimeoutSeconds"`
}

// StepTimeout bounds each network step of the release flow
func (o *ScriptOptions) StepTimeout() time.Duration {
	return time.Duration(o.StepTimeoutSeconds) * time.Second
}

// RepositoryOptions identifies the marketplace charts repository that
// addon submissions target
type RepositoryOptions struct {
	// Owner represents the account that owns the repo, e.g. marketplace-partners
	Owner string `yaml:"owner"`
	// Name represents the name of the repo, e.g. helm-addons
	Name string `yaml:"name"`
	// BaseBranch is the branch submissions are cut from and target
	BaseBranch string `yaml:"baseBranch"`
}

// HTTPSURL returns the HTTPS clone URL of the repository
func (r RepositoryOptions) HTTPSURL() string {
	return fmt.Sprintf("https://github.com/%s/%s.git", r.Owner, r.Name)
}

// String returns a string representation of the repository options
func (r RepositoryOptions) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

// Load reads the script options file at path. A missing file yields the
// defaults; a present file must parse strictly.
func Load(ctx context.Context, path string) (*ScriptOptions, error) {
	opts := &ScriptOptions{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("unable to read script options file %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.UnmarshalStrict(data, opts); err != nil {
			return nil, fmt.Errorf("unable to unmarshal script options file %s: %w", path, err)
		}
	}

	opts.applyDefaults()

	logger.Log(ctx, slog.LevelDebug, "script options", slog.Group("opts",
		slog.String("repository", opts.Repository.String()),
		slog.String("baseBranch", opts.Repository.BaseBranch),
		slog.String("secretName", opts.SecretName),
		slog.String("workspaceDir", opts.WorkspaceDir),
	))
	return opts, nil
}

func (o *ScriptOptions) applyDefaults() {
	if o.Repository.Owner == "" {
		o.Repository.Owner = defaultOwner
	}
	if o.Repository.Name == "" {
		o.Repository.Name = defaultRepository
	}
	if o.Repository.BaseBranch == "" {
		o.Repository.BaseBranch = defaultBaseBranch
	}
	if o.SecretName == "" {
		o.SecretName = defaultSecretName
	}
	if o.WorkspaceDir == "" {
		o.WorkspaceDir = defaultWorkspaceDir
	}
	if o.StepTimeoutSeconds <= 0 {
		o.StepTimeoutSeconds = int(defaultStepTimeout / time.Second)
	}
}
