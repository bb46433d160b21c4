package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEdge_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "edge.toml")

	content := `
listen_addr = ":9090"
base_url = "https://px.example.com"
log_level = "debug"
data_dir = "` + dir + `"
queue_capacity = 5000
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadEdge(configPath)
	if err != nil {
		t.Fatalf("LoadEdge: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.QueueCapacity != 5000 {
		t.Errorf("QueueCapacity = %d, want 5000", cfg.QueueCapacity)
	}
	if got := GetEdge(); got != cfg {
		t.Errorf("GetEdge() did not return the loaded config")
	}
}

func TestLoadEdge_Defaults(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)
	os.Chdir(dir)

	cfg, err := LoadEdge("")
	if err != nil {
		t.Fatalf("LoadEdge: %v", err)
	}
	if cfg.QueueCapacity != DefaultEdgeConfig().QueueCapacity {
		t.Errorf("QueueCapacity = %d, want default %d", cfg.QueueCapacity, DefaultEdgeConfig().QueueCapacity)
	}
}

func TestLoadEngine_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "engine.toml")

	content := `
batch_size = 250
bulk_copy_timeout_seconds = 45
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadEngine(configPath)
	if err != nil {
		t.Fatalf("LoadEngine: %v", err)
	}
	if cfg.BatchSize != 250 {
		t.Errorf("BatchSize = %d, want 250", cfg.BatchSize)
	}
	if cfg.BulkCopyTimeoutSeconds != 45 {
		t.Errorf("BulkCopyTimeoutSeconds = %d, want 45", cfg.BulkCopyTimeoutSeconds)
	}
}

func TestValidateEdge_RejectsBadLogLevel(t *testing.T) {
	cfg := DefaultEdgeConfig()
	cfg.LogLevel = "verbose"
	if err := validateEdge(cfg); err == nil {
		t.Error("expected validation error for bad log level")
	}
}

func TestValidateEngine_RejectsZeroBatchSize(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.BatchSize = 0
	if err := validateEngine(cfg); err == nil {
		t.Error("expected validation error for zero batch_size")
	}
}

func TestWriteDefaultEdgeConfig_DoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edge.toml")

	if err := os.WriteFile(path, []byte("listen_addr = \":1\"\n"), 0o600); err != nil {
		t.Fatalf("seeding config file: %v", err)
	}

	if err := WriteDefaultEdgeConfig(path); err != nil {
		t.Fatalf("WriteDefaultEdgeConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading config file: %v", err)
	}
	if string(data) != "listen_addr = \":1\"\n" {
		t.Error("WriteDefaultEdgeConfig overwrote an existing file")
	}
}
