package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"medchat-cli/cmd/utils"

	"gopkg.in/yaml.v2"
)

// CLIConfig is the optional per-user configuration file at
// ~/.medchat/config.yaml. Flags always win over it.
type CLIConfig struct {
	ServerURL string `yaml:"server_url"`
}

func configFilePath() (string, error) {
	dataDir, err := utils.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "config.yaml"), nil
}

// loadCLIConfig reads the config file if present. A missing file is not an
// error, just defaults; a corrupt file is reported and ignored.
func loadCLIConfig() *CLIConfig {
	path, err := configFilePath()
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logDebug(fmt.Sprintf("Failed to read config file: %v", err))
		}
		return nil
	}
	var cfg CLIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logDebug(fmt.Sprintf("Failed to parse config file: %v", err))
		return nil
	}
	return &cfg
}
