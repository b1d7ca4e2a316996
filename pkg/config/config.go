// Package config owns the local addon configuration store: a single JSON
// document on disk mapping "{name}@{version}" keys to addon records.
//
// All mutations are in-memory until Persist is called. Persist writes the
// whole document atomically (temp file + rename), so a rename never leaves
// both the old and the new key behind on disk.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/partner-addons/addon-publisher/pkg/logger"
)

// DefaultAddonsFile is the default path of the addon configuration store
const DefaultAddonsFile = "addons.json"

// keySeparator joins name and version into a store key.
// "@" is not a valid character in either field, so distinct pairs
// always derive distinct keys.
const keySeparator = "@"

// ErrNotFound indicates that no record exists under the given key
var ErrNotFound = errors.New("addon not found")

// AddonIdentity is the composite key of an addon record
type AddonIdentity struct {
	Name    string
	Version string
}

// String returns the derived store key for the identity
func (id AddonIdentity) String() string {
	return DeriveKey(id.Name, id.Version)
}

// AddonRecord holds the metadata a partner registers for one addon version
type AddonRecord struct {
	HelmURL   string `json:"helmUrl"`
	AccountID string `json:"accountId"`
	Namespace string `json:"namespace"`
	Region    string `json:"region"`
	Validated bool   `json:"validated"`
}

// Store is the in-memory view of the addon configuration file
type Store struct {
	path    string
	keys    []string
	records map[string]AddonRecord
}

// DeriveKey returns the store key for a (name, version) pair
func DeriveKey(name, version string) string {
	return name + keySeparator + version
}

// ParseKey splits a store key back into its addon identity
func ParseKey(key string) (AddonIdentity, error) {
	name, version, found := strings.Cut(key, keySeparator)
	if !found || name == "" || version == "" {
		return AddonIdentity{}, fmt.Errorf("malformed addon key: %q", key)
	}
	return AddonIdentity{Name: name, Version: version}, nil
}

// Load reads the addon configuration file at path.
// A missing file yields an empty store, this is the first-run case.
func Load(ctx context.Context, path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]AddonRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Log(ctx, slog.LevelDebug, "no addon configuration file yet", slog.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading addon configuration file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("error unmarshalling addon configuration file %s: %w", path, err)
	}

	// JSON objects carry no order, keep listings deterministic
	s.keys = make([]string, 0, len(s.records))
	for key := range s.records {
		s.keys = append(s.keys, key)
	}
	sort.Strings(s.keys)

	logger.Log(ctx, slog.LevelDebug, "loaded addon configuration",
		slog.String("path", path), slog.Int("addons", len(s.keys)))
	return s, nil
}

// Get returns the record stored under key, or ErrNotFound
func (s *Store) Get(key string) (AddonRecord, error) {
	record, ok := s.records[key]
	if !ok {
		return AddonRecord{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return record, nil
}

// List returns every stored (identity, record) pair in listing order
func (s *Store) List() ([]AddonIdentity, []AddonRecord, error) {
	identities := make([]AddonIdentity, 0, len(s.keys))
	records := make([]AddonRecord, 0, len(s.keys))
	for _, key := range s.keys {
		id, err := ParseKey(key)
		if err != nil {
			return nil, nil, err
		}
		identities = append(identities, id)
		records = append(records, s.records[key])
	}
	return identities, records, nil
}

// Keys returns the store keys in listing order
func (s *Store) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Len returns the number of stored records
func (s *Store) Len() int {
	return len(s.keys)
}

// Upsert replaces the whole record under key. Any write driven by a user
// action invalidates previous marketplace validation, so Validated is
// always forced back to false.
func (s *Store) Upsert(key string, record AddonRecord) {
	record.Validated = false
	if _, ok := s.records[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.records[key] = record
}

// Delete removes the record under key, or returns ErrNotFound
func (s *Store) Delete(key string) error {
	if _, ok := s.records[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(s.records, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return nil
}

// Rename moves a record from oldKey to newKey, replacing its contents.
// Both mutations happen in memory and reach disk in one atomic Persist,
// so there is no window where both keys exist in the backing file.
func (s *Store) Rename(oldKey, newKey string, record AddonRecord) error {
	if _, ok := s.records[oldKey]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, oldKey)
	}
	if oldKey == newKey {
		s.Upsert(newKey, record)
		return nil
	}
	s.Upsert(newKey, record)
	return s.Delete(oldKey)
}

// Persist durably writes the whole mapping to the backing file.
// The write goes through a temp file in the same directory followed by a
// rename, so the store on disk is either the old document or the new one.
func (s *Store) Persist(ctx context.Context) error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling addon configuration: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("error creating temp file for addon configuration: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("error writing addon configuration: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("error closing addon configuration temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("error replacing addon configuration file %s: %w", s.path, err)
	}

	logger.Log(ctx, slog.LevelDebug, "persisted addon configuration",
		slog.String("path", s.path), slog.Int("addons", len(s.keys)))
	return nil
}

// LatestFor returns the identity and record of the highest configured
// version for the given addon name, or ErrNotFound if none exists.
func (s *Store) LatestFor(name string) (AddonIdentity, AddonRecord, error) {
	var (
		best      AddonIdentity
		bestFound bool
	)
	for _, key := range s.keys {
		id, err := ParseKey(key)
		if err != nil {
			return AddonIdentity{}, AddonRecord{}, err
		}
		if id.Name != name {
			continue
		}
		if !bestFound || versionLess(best.Version, id.Version) {
			best = id
			bestFound = true
		}
	}
	if !bestFound {
		return AddonIdentity{}, AddonRecord{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return best, s.records[best.String()], nil
}
