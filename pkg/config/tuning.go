package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning carries the pool and worker knobs that can be overridden via
// a YAML profile pointed at by SYNCX_TUNING.
type Tuning struct {
	CachePool CachePoolTuning `yaml:"cache_pool"`
	Worker    WorkerTuning    `yaml:"worker"`
}

// CachePoolTuning bounds the Redis connection pool.
type CachePoolTuning struct {
	MaxOpen          int `yaml:"max_open"`
	MinIdle          int `yaml:"min_idle"`
	IdleTTLSeconds   int `yaml:"idle_ttl_seconds"`
	AcquireTimeoutMS int `yaml:"acquire_timeout_ms"`
}

// WorkerTuning bounds ingest concurrency and retry behavior.
type WorkerTuning struct {
	Concurrency   int `yaml:"concurrency"`
	MaxAttempts   int `yaml:"max_attempts"`
	BackoffBaseMS int `yaml:"backoff_base_ms"`
}

// DefaultTuning returns the production defaults used when no profile
// is supplied.
func DefaultTuning() Tuning {
	return Tuning{
		CachePool: CachePoolTuning{
			MaxOpen:          16,
			MinIdle:          8,
			IdleTTLSeconds:   60,
			AcquireTimeoutMS: 1000,
		},
		Worker: WorkerTuning{
			Concurrency:   4,
			MaxAttempts:   3,
			BackoffBaseMS: 500,
		},
	}
}

// LoadTuning reads a YAML profile. Fields left out of the file keep
// their defaults.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()

	data, err := os.ReadFile(path)
	if err != nil {
		return tuning, fmt.Errorf("read tuning profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return tuning, fmt.Errorf("parse tuning profile %s: %w", path, err)
	}

	if err := tuning.validate(); err != nil {
		return tuning, fmt.Errorf("tuning profile %s: %w", path, err)
	}
	return tuning, nil
}

func (t Tuning) validate() error {
	if t.CachePool.MaxOpen <= 0 {
		return fmt.Errorf("cache_pool.max_open must be positive, got %d", t.CachePool.MaxOpen)
	}
	if t.CachePool.MinIdle < 0 || t.CachePool.MinIdle > t.CachePool.MaxOpen {
		return fmt.Errorf("cache_pool.min_idle must be within [0, max_open], got %d", t.CachePool.MinIdle)
	}
	if t.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive, got %d", t.Worker.Concurrency)
	}
	if t.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker.max_attempts must be positive, got %d", t.Worker.MaxAttempts)
	}
	return nil
}

// IdleTTL returns the pool idle TTL as a duration.
func (c CachePoolTuning) IdleTTL() time.Duration {
	return time.Duration(c.IdleTTLSeconds) * time.Second
}

// AcquireTimeout returns the pool acquire timeout as a duration.
func (c CachePoolTuning) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMS) * time.Millisecond
}

// BackoffBase returns the base retry backoff as a duration.
func (w WorkerTuning) BackoffBase() time.Duration {
	return time.Duration(w.BackoffBaseMS) * time.Millisecond
}
