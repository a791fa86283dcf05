package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("IRIS_CONFIG")
	os.Unsetenv("IRIS_API_BASE")
	os.Unsetenv("IRIS_STORAGE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIBase != DefaultAPIBase {
		t.Errorf("APIBase = %q, want %q", cfg.APIBase, DefaultAPIBase)
	}
	if cfg.FirstAttemptTimeout != 5*time.Second {
		t.Errorf("FirstAttemptTimeout = %v, want 5s", cfg.FirstAttemptTimeout)
	}
	if cfg.RetryTimeout != 8*time.Second {
		t.Errorf("RetryTimeout = %v, want 8s", cfg.RetryTimeout)
	}
	if cfg.Storage != StorageFile {
		t.Errorf("Storage = %v, want %v", cfg.Storage, StorageFile)
	}
	if !cfg.HistoryEnabled {
		t.Error("history should be enabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("IRIS_API_BASE", "https://iris.example.com/api//")
	t.Setenv("IRIS_RETRY_TIMEOUT", "12s")
	t.Setenv("IRIS_STORAGE", "memory")
	t.Setenv("IRIS_RETRY_CLIENT_ERRORS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIBase != "https://iris.example.com/api" {
		t.Errorf("APIBase = %q", cfg.APIBase)
	}
	if cfg.RetryTimeout != 12*time.Second {
		t.Errorf("RetryTimeout = %v", cfg.RetryTimeout)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("Storage = %v", cfg.Storage)
	}
	if cfg.RetryClientErrors {
		t.Error("RetryClientErrors should be false")
	}
}

func TestLoadYAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iris.yaml")
	content := []byte("api_base: http://10.0.0.5:9000/\nstorage: sqlite\nhistory_dir: " + dir + "\nfirst_attempt_timeout: 2s\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("IRIS_CONFIG", path)
	t.Setenv("IRIS_STORAGE", "file")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIBase != "http://10.0.0.5:9000" {
		t.Errorf("APIBase = %q", cfg.APIBase)
	}
	if cfg.FirstAttemptTimeout != 2*time.Second {
		t.Errorf("FirstAttemptTimeout = %v", cfg.FirstAttemptTimeout)
	}
	// env wins over the file
	if cfg.Storage != StorageFile {
		t.Errorf("Storage = %v, want file", cfg.Storage)
	}
	if cfg.HistoryDir != dir {
		t.Errorf("HistoryDir = %q", cfg.HistoryDir)
	}
	// untouched keys keep defaults
	if cfg.RetryTimeout != 8*time.Second {
		t.Errorf("RetryTimeout = %v", cfg.RetryTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad storage", func(c *Config) { c.Storage = "redis" }, true},
		{"non-http base", func(c *Config) { c.APIBase = "ftp://x" }, true},
		{"zero first timeout", func(c *Config) { c.FirstAttemptTimeout = 0 }, true},
		{"negative backoff", func(c *Config) { c.RetryBackoff = -time.Second }, true},
		{"memory needs no dir", func(c *Config) { c.Storage = StorageMemory; c.HistoryDir = "" }, false},
		{"file needs dir", func(c *Config) { c.HistoryDir = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.HistoryDir = "/tmp/iris"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveAPIBase(t *testing.T) {
	tests := []struct {
		query    string
		fallback string
		want     string
	}{
		{"", "http://127.0.0.1:8080/", "http://127.0.0.1:8080"},
		{"?api=https://iris.run.app/", "http://127.0.0.1:8080", "https://iris.run.app"},
		{"api=http%3A%2F%2Fh%3A1%2Fv1%2F&sl=5", "", "http://h:1/v1"},
		{"?api=", "http://x", "http://x"},
		{"?sl=5.1", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := ResolveAPIBase(tt.query, tt.fallback); got != tt.want {
				t.Errorf("ResolveAPIBase(%q, %q) = %q, want %q", tt.query, tt.fallback, got, tt.want)
			}
		})
	}
}
