package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDirOverride, when non-empty, takes precedence over the environment and
// the home-directory default. Set from the global --data-dir flag.
var DataDirOverride string

// GetDataDir returns the directory where MedChat keeps local state
// (session context, reaction store).
func GetDataDir() (string, error) {
	if DataDirOverride != "" {
		return DataDirOverride, nil
	}
	if dir := os.Getenv("MEDCHAT_DATA_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getDataDir: could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".medchat"), nil
}

// GetStoreDir returns the directory for the durable key-value store.
func GetStoreDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "state"), nil
}
