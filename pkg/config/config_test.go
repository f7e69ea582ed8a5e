package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	doc := `
[frame]
warn_stack_size = 4096
segmented_stacks = true

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Frame.WarnStackSize != 4096 {
		t.Errorf("WarnStackSize = %d, want 4096", cfg.Frame.WarnStackSize)
	}
	if !cfg.Frame.SegmentedStacks {
		t.Error("SegmentedStacks = false")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load of a missing file did not fail")
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, ConfigFileName)
	if err := os.WriteFile(path, []byte("[frame]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if got := Find(nested); got != path {
		t.Errorf("Find = %q, want %q", got, path)
	}
	if got := Find(t.TempDir()); got != "" {
		t.Errorf("Find in a bare tree = %q, want empty", got)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Frame.WarnStackSize != 0 || cfg.Frame.SegmentedStacks {
		t.Errorf("default frame config = %+v", cfg.Frame)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("default level = %q, want warn", cfg.Log.Level)
	}
}
