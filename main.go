package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/partner-addons/addon-publisher/pkg/actions"
	"github.com/partner-addons/addon-publisher/pkg/config"
	"github.com/partner-addons/addon-publisher/pkg/logger"
	"github.com/partner-addons/addon-publisher/pkg/options"
	"github.com/partner-addons/addon-publisher/pkg/release"
	"github.com/urfave/cli"
)

const (
	// exitCodeValidation is returned when addon metadata fails validation
	exitCodeValidation = 2
	// exitCodePipeline is returned when the release pipeline fails
	exitCodePipeline = 3
)

var (
	// Version represents the current version of the addon publisher
	Version = "v0.0.0-dev"
	// GitCommit represents the latest commit when building this binary
	GitCommit = "HEAD"

	// ScriptOptionsFile is the path of the file containing repository options
	ScriptOptionsFile string
	// AddonsFile is the path of the addon configuration store
	AddonsFile string
	// AddonName is the addon the command applies to
	AddonName string
	// AddonVersion is the version of the addon being configured
	AddonVersion string
	// HelmURL is the URL of the addon's Helm chart repository
	HelmURL string
	// MarketplaceID is the marketplace AWS account id
	MarketplaceID string
	// Namespace is the Kubernetes namespace the addon installs into
	Namespace string
	// Region is the cloud region the addon is published for
	Region string
	// PorcelainMode indicates that output should be in an easy-to-parse format for scripts
	PorcelainMode bool
)

func main() {
	logger.Setup()

	app := cli.NewApp()
	app.Name = "addon-publisher"
	app.Version = fmt.Sprintf("%s (%s)", Version, GitCommit)
	app.Usage = "Configure partner Helm addons and submit them to the marketplace charts repository"

	configFlag := cli.StringFlag{
		Name:        "config",
		Usage:       "A configuration file with options for the target marketplace repository",
		TakesFile:   true,
		Destination: &ScriptOptionsFile,
		Value:       options.DefaultScriptOptionsFile,
	}
	addonsFileFlag := cli.StringFlag{
		Name:        "addons_file",
		Usage:       "Path of the local addon configuration store",
		TakesFile:   true,
		Destination: &AddonsFile,
		Value:       config.DefaultAddonsFile,
	}
	addonNameFlag := cli.StringFlag{
		Name:        "addon_name",
		Usage:       "Name of the addon",
		Destination: &AddonName,
	}

	app.Commands = []cli.Command{
		{
			Name:   "configure",
			Usage:  "Create or edit an addon configuration; runs interactively when no flags are given",
			Action: configureAddon,
			Flags: []cli.Flag{
				addonsFileFlag,
				addonNameFlag,
				cli.StringFlag{
					Name:        "addon_version",
					Usage:       "Version of the addon",
					Destination: &AddonVersion,
				},
				cli.StringFlag{
					Name:        "helm_url",
					Usage:       "URL of the addon's Helm chart repository",
					Destination: &HelmURL,
				},
				cli.StringFlag{
					Name:        "marketplace_id",
					Usage:       "Marketplace AWS account id",
					Destination: &MarketplaceID,
				},
				cli.StringFlag{
					Name:        "namespace",
					Usage:       "Kubernetes namespace the addon installs into",
					Destination: &Namespace,
				},
				cli.StringFlag{
					Name:        "region",
					Usage:       "Cloud region the addon is published for",
					Destination: &Region,
				},
			},
		},
		{
			Name:   "list",
			Usage:  "Print the addons tracked in the local configuration store",
			Action: listAddons,
			Flags: []cli.Flag{
				addonsFileFlag,
				cli.BoolFlag{
					Name:        "porcelain",
					Usage:       "Print the output of the command in an easy-to-parse format for scripts",
					Destination: &PorcelainMode,
				},
			},
		},
		{
			Name:   "release",
			Usage:  "Submit a packaged addon to the marketplace repository and open a pull request",
			Action: releaseAddon,
			Flags:  []cli.Flag{configFlag, addonsFileFlag, addonNameFlag},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(context.Background(), err.Error())
	}
}

func configureAddon(c *cli.Context) error {
	flags := actions.ConfigureFlags{
		AddonName:     AddonName,
		AddonVersion:  AddonVersion,
		HelmURL:       HelmURL,
		MarketplaceID: MarketplaceID,
		Namespace:     Namespace,
		Region:        Region,
	}
	return exitOnError(actions.Configure(context.Background(), AddonsFile, flags, os.Stdin))
}

func listAddons(c *cli.Context) error {
	return exitOnError(actions.List(context.Background(), AddonsFile, PorcelainMode))
}

func releaseAddon(c *cli.Context) error {
	if AddonName == "" {
		return cli.NewExitError("the addon_name flag is required for release", exitCodeValidation)
	}
	return exitOnError(actions.Release(context.Background(), ScriptOptionsFile, AddonsFile, AddonName))
}

// exitOnError maps error kinds onto distinct exit codes: validation
// failures and pipeline failures are distinguishable to callers.
func exitOnError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErr *config.FieldError
	if errors.As(err, &fieldErr) {
		return cli.NewExitError(err.Error(), exitCodeValidation)
	}
	var releaseErr *release.Error
	if errors.As(err, &releaseErr) {
		return cli.NewExitError(err.Error(), exitCodePipeline)
	}
	return err
}
