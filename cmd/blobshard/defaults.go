package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// getDefaults returns application default paths, checking environment
// variables first, then the XDG base directories, then hardcoded fallbacks.
//
//   - BLOBSHARD_CONFIG_PATH: config file location (default: $XDG_CONFIG_HOME/blobshard.toml,
//     or ~/.config/blobshard.toml)
//   - BLOBSHARD_HOME: store root directory (default: $XDG_DATA_HOME/blobshard,
//     or ~/.local/share/blobshard)
func getDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	root, err := getRoot()
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"config_path": configPath,
		"root":        root,
		"log_dir":     filepath.Join(root, "log"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv("BLOBSHARD_CONFIG_PATH"); path != "" {
		return path, nil
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "blobshard.toml"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "blobshard.toml"), nil
}

func getRoot() (string, error) {
	if path := os.Getenv("BLOBSHARD_HOME"); path != "" {
		return path, nil
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "blobshard"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "blobshard"), nil
}
