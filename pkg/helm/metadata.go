// Package helm inspects packaged addon chart archives.
package helm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/partner-addons/addon-publisher/pkg/logger"
	"helm.sh/helm/v3/pkg/chart"
	helmLoader "helm.sh/helm/v3/pkg/chart/loader"
)

// LoadMetadata loads the chart archive at path and returns its metadata
func LoadMetadata(path string) (*chart.Metadata, error) {
	c, err := helmLoader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load chart archive %s: %w", path, err)
	}
	return c.Metadata, nil
}

// VerifyAddonArchive checks that the packaged archive at path is a loadable
// Helm chart whose name matches the addon being submitted. Catches a
// packaging step that produced output for a different addon.
func VerifyAddonArchive(ctx context.Context, path, addonName string) error {
	metadata, err := LoadMetadata(path)
	if err != nil {
		return err
	}
	if metadata.Name != addonName {
		return fmt.Errorf("chart archive %s packages chart %q, expected %q", path, metadata.Name, addonName)
	}

	logger.Log(ctx, slog.LevelDebug, "verified addon chart archive",
		slog.String("chart", metadata.Name), slog.String("version", metadata.Version))
	return nil
}
