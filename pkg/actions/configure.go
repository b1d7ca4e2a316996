package actions

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/partner-addons/addon-publisher/pkg/config"
	"github.com/partner-addons/addon-publisher/pkg/logger"
)

// ConfigureFlags carries the flag-driven inputs of the configure command.
// When every field is empty the command runs interactively.
type ConfigureFlags struct {
	AddonName     string
	AddonVersion  string
	HelmURL       string
	MarketplaceID string
	Namespace     string
	Region        string
}

func (f ConfigureFlags) empty() bool {
	return f == ConfigureFlags{}
}

// Configure creates or replaces an addon record in the configuration store.
// Input comes either from flags or from an interactive flow reading in.
func Configure(ctx context.Context, addonsFile string, flags ConfigureFlags, in io.Reader) error {
	store, err := config.Load(ctx, addonsFile)
	if err != nil {
		return err
	}

	if flags.empty() {
		if err := configureInteractive(ctx, store, bufio.NewScanner(in)); err != nil {
			return err
		}
	} else {
		if err := configureFromFlags(ctx, store, flags); err != nil {
			return err
		}
	}

	return store.Persist(ctx)
}

func configureFromFlags(ctx context.Context, store *config.Store, flags ConfigureFlags) error {
	id := config.AddonIdentity{Name: flags.AddonName, Version: flags.AddonVersion}
	record := config.AddonRecord{
		HelmURL:   flags.HelmURL,
		AccountID: flags.MarketplaceID,
		Namespace: flags.Namespace,
		Region:    flags.Region,
	}
	// Reject without persisting on the first invalid field
	if err := config.ValidateRecord(id, record); err != nil {
		return err
	}

	store.Upsert(id.String(), record)
	logger.Log(ctx, slog.LevelInfo, "configured addon",
		slog.String("name", id.Name), slog.String("version", id.Version))
	return nil
}

func configureInteractive(ctx context.Context, store *config.Store, scanner *bufio.Scanner) error {
	oldKey, current, err := chooseRecord(store, scanner)
	if err != nil {
		return err
	}

	editing := oldKey != ""
	var currentID config.AddonIdentity
	if editing {
		currentID, err = config.ParseKey(oldKey)
		if err != nil {
			return err
		}
	}

	name, err := promptField(scanner, "addon name", currentID.Name, config.IsValidAddonName)
	if err != nil {
		return err
	}
	version, err := promptField(scanner, "addon version", currentID.Version, config.IsValidVersion)
	if err != nil {
		return err
	}
	record := config.AddonRecord{}
	record.HelmURL, err = promptField(scanner, "helm chart URL", current.HelmURL, config.IsValidHelmURL)
	if err != nil {
		return err
	}
	record.AccountID, err = promptField(scanner, "marketplace account id", current.AccountID, config.IsValidAccountID)
	if err != nil {
		return err
	}
	record.Namespace, err = promptField(scanner, "namespace", current.Namespace, config.IsValidNamespace)
	if err != nil {
		return err
	}
	record.Region, err = promptField(scanner, "region", current.Region, config.IsValidRegion)
	if err != nil {
		return err
	}

	newKey := config.DeriveKey(name, version)
	if editing {
		if err := store.Rename(oldKey, newKey, record); err != nil {
			return err
		}
	} else {
		store.Upsert(newKey, record)
	}

	logger.Log(ctx, slog.LevelInfo, "configured addon",
		slog.String("name", name), slog.String("version", version))
	return nil
}

// chooseRecord asks whether to create a new record or edit an existing one.
// It returns the key and record being edited, or an empty key for a new one.
func chooseRecord(store *config.Store, scanner *bufio.Scanner) (string, config.AddonRecord, error) {
	if store.Len() == 0 {
		return "", config.AddonRecord{}, nil
	}

	keys := store.Keys()
	fmt.Println("Configured addons:")
	fmt.Println("  [0] configure a new addon")
	for i, key := range keys {
		fmt.Printf("  [%d] edit %s\n", i+1, key)
	}

	for {
		fmt.Print("Selection: ")
		line, err := readLine(scanner)
		if err != nil {
			return "", config.AddonRecord{}, err
		}
		choice, err := strconv.Atoi(line)
		if err != nil || choice < 0 || choice > len(keys) {
			fmt.Printf("enter a number between 0 and %d\n", len(keys))
			continue
		}
		if choice == 0 {
			return "", config.AddonRecord{}, nil
		}
		key := keys[choice-1]
		record, err := store.Get(key)
		if err != nil {
			return "", config.AddonRecord{}, err
		}
		return key, record, nil
	}
}

// promptField reads one field, re-prompting until the value is valid.
// An empty input keeps the current value when one exists.
func promptField(scanner *bufio.Scanner, label, current string, valid func(string) bool) (string, error) {
	for {
		if current != "" {
			fmt.Printf("%s [%s]: ", label, current)
		} else {
			fmt.Printf("%s: ", label)
		}
		value, err := readLine(scanner)
		if err != nil {
			return "", err
		}
		if value == "" && current != "" {
			value = current
		}
		if valid(value) {
			return value, nil
		}
		fmt.Printf("invalid %s: %q\n", label, value)
	}
}

func readLine(scanner *bufio.Scanner) (string, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errors.New("input ended before configuration was complete")
	}
	return strings.TrimSpace(scanner.Text()), nil
}
