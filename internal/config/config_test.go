package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 3000 || cfg.Interface != "0.0.0.0" || cfg.MaxConnections != 1024 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("expected defaults to apply, got %+v", cfg)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "interface: 127.0.0.1\nport: 4000\nmax_connections: 10\nlog_level: DEBUG\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Interface != "127.0.0.1" || cfg.Port != 4000 || cfg.MaxConnections != 10 || cfg.LogLevel != "DEBUG" {
		t.Fatalf("yaml override not applied: %+v", cfg)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 4000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ZENQUEUE_PORT", "5000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 5000 {
		t.Fatalf("env override not applied, got port %d", cfg.Port)
	}
}

func TestMalformedYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("not: [valid yaml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Defaults()
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
}

func TestParseLogLevelSilent(t *testing.T) {
	level, err := ParseLogLevel("silent")
	if err != nil {
		t.Fatalf("ParseLogLevel: %v", err)
	}
	if level.String() != "disabled" {
		t.Fatalf("got %v, want disabled", level)
	}
}

func TestLoadWithDefaultsUsesCallerBase(t *testing.T) {
	base := Defaults()
	base.Port = DefaultHTTPPort
	cfg, err := LoadWithDefaults("", base)
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.Port != DefaultHTTPPort {
		t.Fatalf("got port %d, want %d", cfg.Port, DefaultHTTPPort)
	}
}
