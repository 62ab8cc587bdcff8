package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	m, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := m.Config()
	if cfg.Cache.Window != 1 {
		t.Errorf("Cache.Window = %d, want 1", cfg.Cache.Window)
	}
	if cfg.Scaler.Filter != "bilinear" {
		t.Errorf("Scaler.Filter = %q, want bilinear", cfg.Scaler.Filter)
	}
	if cfg.Thumbnails.Size != 200 {
		t.Errorf("Thumbnails.Size = %d, want 200", cfg.Thumbnails.Size)
	}
	if !cfg.Preloader.Enabled {
		t.Error("Preloader.Enabled = false, want true")
	}
	if cfg.Navigation.InfiniteScrolling {
		t.Error("Navigation.InfiniteScrolling = true, want false")
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	yaml := `
navigation:
  infinite_scrolling: true
cache:
  window: 2
scaler:
  filter: lanczos
`
	if err := os.WriteFile(file, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := New(file)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := m.Config()
	if !cfg.Navigation.InfiniteScrolling {
		t.Error("InfiniteScrolling not read from file")
	}
	if cfg.Cache.Window != 2 {
		t.Errorf("Cache.Window = %d, want 2", cfg.Cache.Window)
	}
	if cfg.Scaler.Filter != "lanczos" {
		t.Errorf("Scaler.Filter = %q, want lanczos", cfg.Scaler.Filter)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero cache window", "cache:\n  window: 0\n"},
		{"bad filter", "scaler:\n  filter: cubic-spline\n"},
		{"tiny thumbnails", "thumbnails:\n  size: 4\n"},
		{"inverted water marks", "memory:\n  high_water_mark: 0.9\n  critical_water_mark: 0.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(file, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := New(file); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestSubscribeInvokesImmediately(t *testing.T) {
	m, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var got *Config
	m.Subscribe(func(c *Config) { got = c })
	if got == nil {
		t.Fatal("Subscribe did not invoke the callback with the current snapshot")
	}
	if got != m.Config() {
		t.Error("Subscribe delivered a different snapshot than Config()")
	}
}

func TestMissingFileErrors(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
