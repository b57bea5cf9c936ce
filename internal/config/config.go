// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Store  StoreConfig  `json:"store"  mapstructure:"store"`
	Engine EngineConfig `json:"engine" mapstructure:"engine"`
}

// StoreConfig selects the task store backing.
type StoreConfig struct {
	Path     string `json:"path,omitempty"      mapstructure:"path"`
	InMemory bool   `json:"in_memory,omitempty" mapstructure:"in_memory"`
}

// EngineConfig carries the validation and batch limits.
type EngineConfig struct {
	MaxDependencies     int     `json:"max_dependencies"               mapstructure:"max_dependencies"`
	MaxBatchSize        int     `json:"max_batch_size"                 mapstructure:"max_batch_size"`
	MaxRetries          int     `json:"max_retries"                    mapstructure:"max_retries"`
	RetryDelayMS        int     `json:"retry_delay_ms"                 mapstructure:"retry_delay_ms"`
	SimilarityThreshold float64 `json:"similarity_threshold"           mapstructure:"similarity_threshold"`
	MaxSuggestions      int     `json:"max_suggestions"                mapstructure:"max_suggestions"`
	CycleDepthLimit     int     `json:"cycle_depth_limit"              mapstructure:"cycle_depth_limit"`
	SuggestSimilar      bool    `json:"suggest_similar"                mapstructure:"suggest_similar"`
	ValidateStatus      bool    `json:"validate_status"                mapstructure:"validate_status"`
	StopOnError         bool    `json:"stop_on_error,omitempty"        mapstructure:"stop_on_error"`
	Mode                string  `json:"mode"                           mapstructure:"mode"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{},
		Engine: EngineConfig{
			MaxDependencies:     50,
			MaxBatchSize:        100,
			MaxRetries:          3,
			RetryDelayMS:        100,
			SimilarityThreshold: 0.7,
			MaxSuggestions:      3,
			CycleDepthLimit:     1000,
			SuggestSimilar:      true,
			ValidateStatus:      true,
			Mode:                "strict",
		},
	}
}

// RetryDelay returns the configured retry delay as a duration.
func (c EngineConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// Validate checks the configuration for out-of-range values.
func (c Config) Validate() error {
	e := c.Engine
	if e.MaxDependencies <= 0 {
		return fmt.Errorf("engine.max_dependencies must be > 0")
	}
	if e.MaxBatchSize <= 0 {
		return fmt.Errorf("engine.max_batch_size must be > 0")
	}
	if e.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be >= 0")
	}
	if e.SimilarityThreshold < 0 || e.SimilarityThreshold >= 1 {
		return fmt.Errorf("engine.similarity_threshold must be in [0, 1)")
	}
	if e.CycleDepthLimit <= 0 {
		return fmt.Errorf("engine.cycle_depth_limit must be > 0")
	}
	switch e.Mode {
	case "strict", "lenient", "deferred":
	default:
		return fmt.Errorf("engine.mode must be strict, lenient or deferred")
	}
	return nil
}
