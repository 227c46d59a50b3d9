package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfigWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected resolved path %s, got %s", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}

	def := Default()
	if cfg.Addr != def.Addr || cfg.AcceptTimeout != def.AcceptTimeout || cfg.SendQueueSize != def.SendQueueSize {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if !cfg.AdminConsole {
		t.Fatalf("expected admin console enabled by default")
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "addr: \":7000\"\nwrite_timeout: 2s\nmax_connections: 10\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("WIRECHAT_MAX_CONNECTIONS", "25")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":7000" {
		t.Fatalf("expected addr from file, got %q", cfg.Addr)
	}
	if cfg.WriteTimeout != 2*time.Second {
		t.Fatalf("expected write timeout from file, got %v", cfg.WriteTimeout)
	}
	if cfg.MaxConnections != 25 {
		t.Fatalf("expected env to override file, got %d", cfg.MaxConnections)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level from file, got %q", cfg.LogLevel)
	}
	if cfg.AcceptTimeout != time.Second {
		t.Fatalf("expected default accept timeout, got %v", cfg.AcceptTimeout)
	}
}

func TestUpdateFromOverridesNonZero(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1", DatabasePath: "other.db"})

	if cfg.Addr != ":1" || cfg.DatabasePath != "other.db" {
		t.Fatalf("expected overrides to apply, got %+v", cfg)
	}
	if cfg.WriteTimeout != Default().WriteTimeout {
		t.Fatalf("zero values must not override, got %v", cfg.WriteTimeout)
	}
}

func TestWatchReportsRewrittenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	changes := make(chan Config, 16)
	Watch(nil, path, func(cfg Config) {
		select {
		case changes <- cfg:
		default:
		}
	})

	if err := os.WriteFile(path, []byte("log_level: debug\nmax_connections: 3\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case cfg := <-changes:
			// A reload may observe a truncated file first.
			if cfg.LogLevel == "debug" {
				if cfg.MaxConnections != 3 {
					t.Fatalf("expected max_connections 3, got %d", cfg.MaxConnections)
				}
				return
			}
		case <-deadline:
			t.Fatal("no reload observed after rewriting the config")
		}
	}
}

func TestWatchMissingFileIsDisabled(t *testing.T) {
	called := make(chan struct{}, 1)
	Watch(nil, filepath.Join(t.TempDir(), "absent.yaml"), func(Config) { called <- struct{}{} })

	select {
	case <-called:
		t.Fatal("callback must not fire without a config file")
	case <-time.After(100 * time.Millisecond):
	}
}
