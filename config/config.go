// Package config loads the engine's YAML bootstrap configuration.
//
// Grounded on imReese-NexusKV/pkg/config/config.go's LoadConfig shape
// (read file, yaml.Unmarshal, apply zero-value defaults); the server's
// Raft/etcd sections are replaced with the storage/concurrency knobs this
// engine actually has, and the hot-reload watcher is dropped since nothing
// in spec.md's scope needs it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	RunDir    string `yaml:"run_dir"`
	Level     string `yaml:"level"`
	MaxSize   int    `yaml:"max_size"` // MB
	MaxBackup int    `yaml:"max_backups"`
	MaxAge    int    `yaml:"max_age"` // days
}

// BufferPoolConfig sizes the buffer pool and its LRU-K replacer (spec.md §3/§4.2).
type BufferPoolConfig struct {
	PoolSize int `yaml:"pool_size"`
	K        int `yaml:"lru_k"`
}

// IndexConfig bounds B+ tree node fanout (spec.md §4.3).
type IndexConfig struct {
	LeafMaxSize     int `yaml:"leaf_max_size"`
	InternalMaxSize int `yaml:"internal_max_size"`
}

// DeadlockConfig controls the background detector's polling cadence (spec.md §4.4.3).
type DeadlockConfig struct {
	DetectionInterval time.Duration `yaml:"detection_interval"`
}

type EngineConfig struct {
	DataDir     string            `yaml:"data_dir"`
	Log         LogConfig         `yaml:"log"`
	BufferPool  BufferPoolConfig  `yaml:"buffer_pool"`
	Index       IndexConfig       `yaml:"index"`
	Deadlock    DeadlockConfig    `yaml:"deadlock"`
	MetricsAddr string            `yaml:"metrics_addr"`
}

func defaults() EngineConfig {
	return EngineConfig{
		DataDir: "./data",
		Log: LogConfig{
			RunDir:    "./log",
			Level:     "info",
			MaxSize:   100,
			MaxBackup: 10,
			MaxAge:    30,
		},
		BufferPool:  BufferPoolConfig{PoolSize: 256, K: 2},
		Index:       IndexConfig{LeafMaxSize: 128, InternalMaxSize: 128},
		Deadlock:    DeadlockConfig{DetectionInterval: 500 * time.Millisecond},
		MetricsAddr: ":9090",
	}
}

// Load reads path and overlays it on top of sensible defaults; a missing
// field in the YAML file keeps its default rather than zeroing out.
func Load(path string) (*EngineConfig, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.BufferPool.PoolSize <= 0 {
		return nil, fmt.Errorf("config: buffer_pool.pool_size must be positive")
	}
	if cfg.Index.LeafMaxSize < 3 || cfg.Index.InternalMaxSize < 3 {
		return nil, fmt.Errorf("config: index max sizes must be at least 3")
	}
	return &cfg, nil
}
