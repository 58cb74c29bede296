package utils

import (
	"path/filepath"
	"testing"
)

func TestGetDataDirPrecedence(t *testing.T) {
	t.Setenv("MEDCHAT_DATA_DIR", "/env/medchat")

	orig := DataDirOverride
	defer func() { DataDirOverride = orig }()

	DataDirOverride = "/flag/medchat"
	dir, err := GetDataDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "/flag/medchat" {
		t.Fatalf("flag override must win, got %q", dir)
	}

	DataDirOverride = ""
	dir, err = GetDataDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "/env/medchat" {
		t.Fatalf("environment must win over home default, got %q", dir)
	}
}

func TestGetStoreDir(t *testing.T) {
	orig := DataDirOverride
	defer func() { DataDirOverride = orig }()
	DataDirOverride = "/data"

	dir, err := GetStoreDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != filepath.Join("/data", "state") {
		t.Fatalf("unexpected store dir %q", dir)
	}
}
