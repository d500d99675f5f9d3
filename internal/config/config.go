// Package config persists the application configuration and state as
// JSON files in the platform config directory. Writes are atomic
// (temp file, fsync, rename) so a crash mid-write never truncates an
// existing file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abelbrown/jinkies/internal/model"
)

const (
	appDirName = "jinkies"
	configFile = "config.json"
	stateFile  = "state.json"
)

// Dir returns the jinkies config directory: ~/.config/jinkies on
// Linux, ~/Library/Application Support/jinkies on macOS,
// %AppData%\jinkies on Windows.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// LoadConfig reads the configuration from dir, returning defaults when
// no config file exists.
func LoadConfig(dir string) (*model.AppConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if os.IsNotExist(err) {
		return model.DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := model.DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration atomically. Credentials are
// never part of AppConfig, so nothing secret touches this file.
func SaveConfig(dir string, cfg *model.AppConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(dir, configFile, data)
}

// LoadState reads the persisted state, returning an empty state when
// no state file exists.
func LoadState(dir string) (*model.State, error) {
	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if os.IsNotExist(err) {
		return &model.State{SeenIDs: []string{}}, nil
	}
	if err != nil {
		return nil, err
	}

	var st model.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", stateFile, err)
	}
	return &st, nil
}

// SaveState writes the state atomically, preserving consumer-defined
// fields loaded earlier.
func SaveState(dir string, st *model.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(dir, stateFile, data)
}

// writeAtomic writes data to dir/name via a temp file in the same
// directory, syncing before the rename so the target is either the
// old content or the complete new content.
func writeAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, name))
}
