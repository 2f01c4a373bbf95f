package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dupsync/dupsync/pkg/fail"
)

func TestLoadMissingDefaultFileYieldsDefaults(t *testing.T) {
	// Run from a directory that has no config file.
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no config file returned error: %v", err)
	}
	def := NewDefault()
	if cfg.LogLevel != def.LogLevel || cfg.Sync.CachePath != def.Sync.CachePath {
		t.Errorf("Load without file = %+v; want defaults", cfg)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := Load(path); !fail.Is(err, fail.KindConfig) {
		t.Errorf("explicitly named missing config not a config error: %v", err)
	}
}

func TestLoadParsesAndOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dupsync.config.yaml")
	content := `
logLevel: debug
performance:
  hashWorkers: 3
  chunkSizeKB: 128
sync:
  cachePath: /var/cache/dupsync.json
  modTimeWindowSeconds: 2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want debug", cfg.LogLevel)
	}
	if cfg.Performance.EffectiveHashWorkers() != 3 {
		t.Errorf("EffectiveHashWorkers = %d; want 3", cfg.Performance.EffectiveHashWorkers())
	}
	if cfg.Performance.ChunkSize() != 128*1024 {
		t.Errorf("ChunkSize = %d; want %d", cfg.Performance.ChunkSize(), 128*1024)
	}
	if cfg.Sync.ModTimeWindowSeconds != 2 {
		t.Errorf("ModTimeWindowSeconds = %d; want 2", cfg.Sync.ModTimeWindowSeconds)
	}
	// Untouched keys keep their defaults.
	if cfg.Performance.BufferSizeKB != NewDefault().Performance.BufferSizeKB {
		t.Errorf("BufferSizeKB = %d; want default", cfg.Performance.BufferSizeKB)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("logLevel: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !fail.Is(err, fail.KindConfig) {
		t.Errorf("broken yaml not a config error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"negative workers", func(c *Config) { c.Performance.HashWorkers = -1 }, true},
		{"zero buffer", func(c *Config) { c.Performance.BufferSizeKB = 0 }, true},
		{"zero chunk", func(c *Config) { c.Performance.ChunkSizeKB = 0 }, true},
		{"negative window", func(c *Config) { c.Sync.ModTimeWindowSeconds = -1 }, true},
		{"empty cache path", func(c *Config) { c.Sync.CachePath = "" }, true},
		{"zero budget disables fast path", func(c *Config) { c.Performance.WholeFileBudgetMB = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEffectiveWorkerBounds(t *testing.T) {
	p := PerformanceConfig{}
	if got := p.EffectiveScanWorkers(); got < 4 || got > 32 {
		t.Errorf("EffectiveScanWorkers = %d; want within [4, 32]", got)
	}
	if got := p.EffectiveHashWorkers(); got < 1 {
		t.Errorf("EffectiveHashWorkers = %d; want >= 1", got)
	}
	if got := p.EffectiveCopyWorkers(); got < 2 || got > 16 {
		t.Errorf("EffectiveCopyWorkers = %d; want within [2, 16]", got)
	}

	p = PerformanceConfig{ScanWorkers: 7, HashWorkers: 2, CopyWorkers: 5, DeleteWorkers: 9}
	if p.EffectiveScanWorkers() != 7 || p.EffectiveHashWorkers() != 2 ||
		p.EffectiveCopyWorkers() != 5 || p.EffectiveDeleteWorkers() != 9 {
		t.Error("explicit worker counts not honored")
	}
}
