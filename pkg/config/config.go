// Package config holds the tool configuration: worker pool sizes, buffer and
// chunk sizes, the default cache location and logging options. Values come
// from an optional YAML file; command-line flags override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/dupsync/dupsync/pkg/fail"
	"github.com/dupsync/dupsync/pkg/util"
)

// FileName is the default name of the configuration file, looked up in the
// working directory when no explicit path is given.
const FileName = "dupsync.config.yaml"

// PerformanceConfig sizes the worker pools and I/O buffers. Zero values mean
// "derive from the host" (see the Effective* methods).
type PerformanceConfig struct {
	// ScanWorkers bounds the I/O-bound directory traversal pool.
	ScanWorkers int `yaml:"scanWorkers"`
	// HashWorkers bounds the CPU-bound digest pool.
	HashWorkers int `yaml:"hashWorkers"`
	// CopyWorkers bounds the I/O-bound copy pool.
	CopyWorkers int `yaml:"copyWorkers"`
	// DeleteWorkers bounds the I/O-bound duplicate deletion pool.
	DeleteWorkers int `yaml:"deleteWorkers"`
	// BufferSizeKB is the I/O buffer size for file copies. Default 256.
	BufferSizeKB int `yaml:"bufferSizeKB"`
	// ChunkSizeKB is the read chunk size for hashing. Default 64.
	ChunkSizeKB int `yaml:"chunkSizeKB"`
	// WholeFileBudgetMB is the shared memory budget for reading small files
	// in a single buffer while hashing. Default 256.
	WholeFileBudgetMB int `yaml:"wholeFileBudgetMB"`
}

// SyncConfig holds sync-specific policy.
type SyncConfig struct {
	// CachePath is the default fingerprint cache file used by the sync
	// command when the -cache flag is not given. The cache location is always
	// explicit configuration, never derived from the working directory at
	// plan time.
	CachePath string `yaml:"cachePath"`
	// ModTimeWindowSeconds is the window within which two modification times
	// are considered equal during shallow comparison. Handles filesystem
	// timestamp resolution differences. Default 1. 0 means exact match.
	ModTimeWindowSeconds int `yaml:"modTimeWindowSeconds"`
}

// Config is the root configuration.
type Config struct {
	LogLevel    string            `yaml:"logLevel"`
	LogDir      string            `yaml:"logDir"`
	Performance PerformanceConfig `yaml:"performance"`
	Sync        SyncConfig        `yaml:"sync"`
}

// NewDefault returns a Config with sensible defaults.
func NewDefault() Config {
	return Config{
		LogLevel: "info",
		LogDir:   "logs",
		Performance: PerformanceConfig{
			ScanWorkers:       0,
			HashWorkers:       0,
			CopyWorkers:       0,
			DeleteWorkers:     0,
			BufferSizeKB:      256,
			ChunkSizeKB:       64,
			WholeFileBudgetMB: 256,
		},
		Sync: SyncConfig{
			CachePath:            "dupsync.cache.json",
			ModTimeWindowSeconds: 1,
		},
	}
}

// Load reads the configuration file at path, or the default FileName in the
// working directory when path is empty. A missing file yields the defaults;
// an unparsable file is an error only when the user named it explicitly.
func Load(path string) (Config, error) {
	cfg := NewDefault()

	explicit := path != ""
	if !explicit {
		path = FileName
	}

	expanded, err := util.ExpandPath(path)
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fail.Config("could not read config file %s: %v", expanded, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fail.Config("could not parse config file %s: %v", expanded, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	p := c.Performance
	for name, v := range map[string]int{
		"scanWorkers":   p.ScanWorkers,
		"hashWorkers":   p.HashWorkers,
		"copyWorkers":   p.CopyWorkers,
		"deleteWorkers": p.DeleteWorkers,
	} {
		if v < 0 {
			return fail.Config("performance.%s must be >= 0, got %d", name, v)
		}
	}
	if p.BufferSizeKB <= 0 {
		return fail.Config("performance.bufferSizeKB must be > 0, got %d", p.BufferSizeKB)
	}
	if p.ChunkSizeKB <= 0 {
		return fail.Config("performance.chunkSizeKB must be > 0, got %d", p.ChunkSizeKB)
	}
	if p.WholeFileBudgetMB < 0 {
		return fail.Config("performance.wholeFileBudgetMB must be >= 0, got %d", p.WholeFileBudgetMB)
	}
	if c.Sync.ModTimeWindowSeconds < 0 {
		return fail.Config("sync.modTimeWindowSeconds must be >= 0, got %d", c.Sync.ModTimeWindowSeconds)
	}
	if c.Sync.CachePath == "" {
		return fail.Config("sync.cachePath must not be empty")
	}
	return nil
}

// EffectiveScanWorkers resolves the scan pool size. Traversal is I/O bound,
// so it scales past the CPU count but stays modest.
func (p PerformanceConfig) EffectiveScanWorkers() int {
	if p.ScanWorkers > 0 {
		return p.ScanWorkers
	}
	return clamp(2*runtime.NumCPU(), 4, 32)
}

// EffectiveHashWorkers resolves the CPU-bound hash pool size.
func (p PerformanceConfig) EffectiveHashWorkers() int {
	if p.HashWorkers > 0 {
		return p.HashWorkers
	}
	return runtime.NumCPU()
}

// EffectiveCopyWorkers resolves the I/O-bound copy pool size.
func (p PerformanceConfig) EffectiveCopyWorkers() int {
	if p.CopyWorkers > 0 {
		return p.CopyWorkers
	}
	return clamp(2*runtime.NumCPU(), 2, 16)
}

// EffectiveDeleteWorkers resolves the I/O-bound deletion pool size.
func (p PerformanceConfig) EffectiveDeleteWorkers() int {
	if p.DeleteWorkers > 0 {
		return p.DeleteWorkers
	}
	return clamp(2*runtime.NumCPU(), 2, 16)
}

// ChunkSize returns the hashing chunk size in bytes.
func (p PerformanceConfig) ChunkSize() int64 {
	return int64(p.ChunkSizeKB) * 1024
}

// BufferSize returns the copy buffer size in bytes.
func (p PerformanceConfig) BufferSize() int64 {
	return int64(p.BufferSizeKB) * 1024
}

// WholeFileBudget returns the whole-file read budget in bytes.
func (p PerformanceConfig) WholeFileBudget() int64 {
	return int64(p.WholeFileBudgetMB) * 1024 * 1024
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LogSummary logs the effective configuration at the start of a run.
func (c Config) LogSummary(logf func(msg string, args ...any)) {
	logf("Configuration",
		"logLevel", c.LogLevel,
		"scanWorkers", c.Performance.EffectiveScanWorkers(),
		"hashWorkers", c.Performance.EffectiveHashWorkers(),
		"copyWorkers", c.Performance.EffectiveCopyWorkers(),
		"deleteWorkers", c.Performance.EffectiveDeleteWorkers(),
		"bufferSizeKB", c.Performance.BufferSizeKB,
		"chunkSizeKB", c.Performance.ChunkSizeKB,
		"modTimeWindow", fmt.Sprintf("%ds", c.Sync.ModTimeWindowSeconds),
	)
}
