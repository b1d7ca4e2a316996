// Package actions implements the CLI command actions, wiring the
// configuration store, secret provider, workspace and pull-request client
// together.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/partner-addons/addon-publisher/pkg/config"
	"github.com/partner-addons/addon-publisher/pkg/logger"
	"github.com/partner-addons/addon-publisher/pkg/options"
	"github.com/partner-addons/addon-publisher/pkg/release"
	"github.com/partner-addons/addon-publisher/pkg/repository"
	"github.com/partner-addons/addon-publisher/pkg/secrets"
)

// List prints every configured addon. In porcelain mode the output is a
// single line of keys for scripts to parse.
func List(ctx context.Context, addonsFile string, porcelainMode bool) error {
	store, err := config.Load(ctx, addonsFile)
	if err != nil {
		return err
	}

	if porcelainMode {
		fmt.Println(strings.Join(store.Keys(), " "))
		return nil
	}

	identities, records, err := store.List()
	if err != nil {
		return err
	}
	if len(identities) == 0 {
		logger.Log(ctx, slog.LevelInfo, "no addons configured yet")
		return nil
	}
	for i, id := range identities {
		logger.Log(ctx, slog.LevelInfo, "addon",
			slog.String("name", id.Name),
			slog.String("version", id.Version),
			slog.String("helmUrl", records[i].HelmURL),
			slog.String("accountId", records[i].AccountID),
			slog.String("namespace", records[i].Namespace),
			slog.String("region", records[i].Region),
			slog.Bool("validated", records[i].Validated))
	}
	return nil
}

// Release submits the packaged addon named addonName to the marketplace
// charts repository and opens a pull request for it.
func Release(ctx context.Context, optionsFile, addonsFile, addonName string) error {
	if !config.IsValidAddonName(addonName) {
		return &config.FieldError{Field: "addon_name", Value: addonName}
	}

	store, err := config.Load(ctx, addonsFile)
	if err != nil {
		return err
	}
	id, record, err := store.LatestFor(addonName)
	if err != nil {
		return fmt.Errorf("addon %q is not configured, run configure first: %w", addonName, err)
	}

	opts, err := options.Load(ctx, optionsFile)
	if err != nil {
		return err
	}

	provider, err := secrets.NewSecretsManager(ctx)
	if err != nil {
		return err
	}

	pipeline := release.NewPipeline(release.Options{
		RepoURL:      opts.Repository.HTTPSURL(),
		Owner:        opts.Repository.Owner,
		Repo:         opts.Repository.Name,
		BaseBranch:   opts.Repository.BaseBranch,
		SecretName:   opts.SecretName,
		WorkspaceDir: opts.WorkspaceDir,
		StepTimeout:  opts.StepTimeout(),
	}, provider, repository.NewGithubClient())

	logger.Log(ctx, slog.LevelInfo, "releasing addon",
		slog.String("name", id.Name),
		slog.String("version", id.Version),
		slog.String("region", record.Region))

	return pipeline.Run(ctx, release.Request{
		AddonName: addonName,
		Region:    record.Region,
	})
}
