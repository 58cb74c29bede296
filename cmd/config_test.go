package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCLIConfig(t *testing.T) {
	tempDir := withTempDataDir(t)

	if cfg := loadCLIConfig(); cfg != nil {
		t.Fatalf("missing config file should mean nil, got %+v", cfg)
	}

	path := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(path, []byte("server_url: http://chatbot.internal:5000\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg := loadCLIConfig()
	if cfg == nil || cfg.ServerURL != "http://chatbot.internal:5000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadCLIConfigCorruptFileIsIgnored(t *testing.T) {
	tempDir := withTempDataDir(t)
	path := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(path, []byte(":\n\t- not yaml"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if cfg := loadCLIConfig(); cfg != nil {
		t.Fatalf("corrupt config should be ignored, got %+v", cfg)
	}
}
