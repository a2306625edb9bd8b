// Package config loads the runtime configuration of a dialogmesh deployment
// from the environment, on top of working defaults.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of a deployment. Zero external services are
// required with the defaults: memory stays in process and streaming pacing
// matches interactive use.
type Config struct {
	// LongTermDBPath is the SQLite file backing long-term memory. Empty
	// keeps long-term memory in process.
	LongTermDBPath string `env:"DIALOGMESH_LTM_DB_PATH"`

	// ShortTermCacheSize is the LRU capacity of the hot session-key cache.
	ShortTermCacheSize int `env:"DIALOGMESH_STM_CACHE_SIZE"`

	// MaxConcurrentRuns caps runs in flight per engine.
	MaxConcurrentRuns int `env:"DIALOGMESH_MAX_CONCURRENT_RUNS"`

	// EventBufferSize is the per-run outbound event channel capacity.
	EventBufferSize int `env:"DIALOGMESH_EVENT_BUFFER_SIZE"`

	// MaxSteps bounds stage executions per run.
	MaxSteps int `env:"DIALOGMESH_MAX_STEPS"`

	// CharDelay paces character streaming of responses.
	CharDelay time.Duration `env:"DIALOGMESH_CHAR_DELAY"`

	// STMWriteTimeout bounds each short-term memory write.
	STMWriteTimeout time.Duration `env:"DIALOGMESH_STM_WRITE_TIMEOUT"`

	// CleanupMaxAgeDays is the age past which unimportant long-term
	// records may be deleted.
	CleanupMaxAgeDays int `env:"DIALOGMESH_CLEANUP_MAX_AGE_DAYS"`

	// SchedulerBurst bounds consecutive fragments per speaker in
	// multi-speaker sessions.
	SchedulerBurst int `env:"DIALOGMESH_SCHEDULER_BURST"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ShortTermCacheSize: 128,
		MaxConcurrentRuns:  10,
		EventBufferSize:    100,
		MaxSteps:           32,
		CharDelay:          10 * time.Millisecond,
		STMWriteTimeout:    2 * time.Second,
		CleanupMaxAgeDays:  30,
		SchedulerBurst:     8,
	}
}

// Load returns the defaults overridden by environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.ShortTermCacheSize <= 0 {
		return fmt.Errorf("short-term cache size must be positive, got %d", c.ShortTermCacheSize)
	}
	if c.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("max concurrent runs must be positive, got %d", c.MaxConcurrentRuns)
	}
	if c.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", c.EventBufferSize)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be positive, got %d", c.MaxSteps)
	}
	if c.CharDelay < 0 {
		return fmt.Errorf("char delay must not be negative, got %s", c.CharDelay)
	}
	if c.STMWriteTimeout <= 0 {
		return fmt.Errorf("stm write timeout must be positive, got %s", c.STMWriteTimeout)
	}
	if c.CleanupMaxAgeDays <= 0 {
		return fmt.Errorf("cleanup max age must be positive, got %d days", c.CleanupMaxAgeDays)
	}
	if c.SchedulerBurst <= 0 {
		return fmt.Errorf("scheduler burst must be positive, got %d", c.SchedulerBurst)
	}
	return nil
}

// CleanupMaxAge converts the configured day count into a duration.
func (c *Config) CleanupMaxAge() time.Duration {
	return time.Duration(c.CleanupMaxAgeDays) * 24 * time.Hour
}
