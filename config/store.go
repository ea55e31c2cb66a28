package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/quasilyte/gdata"
)

// itemStore is the subset of *gdata.Manager the profile store needs.
type itemStore interface {
	LoadItem(itemKey string) ([]byte, error)
	SaveItem(itemKey string, data []byte) error
}

// Store persists named sync profiles on disk.
type Store struct {
	items itemStore
}

// OpenStore initializes gdata storage for the given application name.
func OpenStore(appName string) (*Store, error) {
	m, err := gdata.Open(gdata.Config{
		AppName: appName,
	})
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}
	return &Store{items: m}, nil
}

func profileKey(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\. `) {
		return "", fmt.Errorf("invalid profile name %q", name)
	}
	return "profile_" + name, nil
}

// LoadProfile returns the saved profile and true, or false if none was saved.
func (s *Store) LoadProfile(name string) (SyncConfig, bool, error) {
	if err := s.ready(); err != nil {
		return SyncConfig{}, false, err
	}
	key, err := profileKey(name)
	if err != nil {
		return SyncConfig{}, false, err
	}

	data, err := s.items.LoadItem(key)
	if err != nil {
		return SyncConfig{}, false, fmt.Errorf("load profile %s: %w", name, err)
	}
	if len(data) == 0 {
		return SyncConfig{}, false, nil
	}

	c, err := ParseSyncConfig(data)
	if err != nil {
		return SyncConfig{}, false, fmt.Errorf("profile %s: %w", name, err)
	}
	return c, true, nil
}

// SaveProfile validates and stores c under name.
func (s *Store) SaveProfile(name string, c SyncConfig) error {
	if err := s.ready(); err != nil {
		return err
	}
	key, err := profileKey(name)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("serialize profile %s: %w", name, err)
	}
	return s.items.SaveItem(key, data)
}

// ClearProfile removes a saved profile.
func (s *Store) ClearProfile(name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	key, err := profileKey(name)
	if err != nil {
		return err
	}
	// Save empty data to clear the item
	return s.items.SaveItem(key, nil)
}

// LoadOrDefault loads a profile, falling back to DefaultSync when it is
// missing. A corrupt profile is reported alongside the default.
func (s *Store) LoadOrDefault(name string) (SyncConfig, error) {
	c, ok, err := s.LoadProfile(name)
	if err != nil {
		return DefaultSync(), err
	}
	if !ok {
		return DefaultSync(), nil
	}
	return c, nil
}

var _ itemStore = (*gdata.Manager)(nil)

// errNoStore is returned by a nil *Store.
var errNoStore = errors.New("config: profile store not opened")

func (s *Store) ready() error {
	if s == nil || s.items == nil {
		return errNoStore
	}
	return nil
}

// AppName is the gdata application name profiles are stored under.
const AppName = "netxform"

// ResolveSync picks the sync config for a command-line run: a JSON file wins,
// then a stored profile, then the defaults. A file given together with a
// profile name is saved under that name.
func ResolveSync(path, profile string) (SyncConfig, error) {
	if profile == "" {
		if path == "" {
			return DefaultSync(), nil
		}
		return LoadSyncConfig(path)
	}

	store, err := OpenStore(AppName)
	if err != nil {
		return SyncConfig{}, err
	}
	return resolveWith(store, path, profile)
}

func resolveWith(store *Store, path, profile string) (SyncConfig, error) {
	if path == "" {
		return store.LoadOrDefault(profile)
	}
	c, err := LoadSyncConfig(path)
	if err != nil {
		return SyncConfig{}, err
	}
	if err := store.SaveProfile(profile, c); err != nil {
		return SyncConfig{}, err
	}
	return c, nil
}
