// Package config provides configuration loading for classifyd.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables with the CLASSIFYD_ prefix. Defaults come from NewDefaultConfig,
// never from mutable package state.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/classifyd/internal/logging"
)

// Config holds the complete classifyd configuration.
type Config struct {
	Topic     string          `koanf:"topic"`
	Strategy  StrategyConfig  `koanf:"strategy"`
	Models    ModelsConfig    `koanf:"models"`
	Bridge    BridgeConfig    `koanf:"bridge"`
	Segmented SegmentedConfig `koanf:"segmented"`
	Logging   logging.Config  `koanf:"logging"`
}

// StrategyConfig selects and tunes the classification strategy.
type StrategyConfig struct {
	// Type is one of: zero-shot, embedding, hybrid, auto.
	Type string `koanf:"type"`
	// Model is the model name, or "auto" to let the evaluator pick.
	Model string `koanf:"model"`
	// Threshold is the minimum confidence for a positive classification.
	Threshold float64 `koanf:"threshold"`
	// Hybrid sub-score weights. Must sum to 1.0.
	KeywordWeight  float64 `koanf:"keyword_weight"`
	SemanticWeight float64 `koanf:"semantic_weight"`
	EnsembleWeight float64 `koanf:"ensemble_weight"`
}

// ModelsConfig locates local model artifacts and selects the embedding
// provider.
type ModelsConfig struct {
	// Dir is the root directory holding zero-shot model artifacts.
	Dir string `koanf:"dir"`
	// PreferQuantized selects the quantized artifact variant when present.
	PreferQuantized bool `koanf:"prefer_quantized"`
	// EmbeddingProvider is "fastembed" (local ONNX) or "remote" (a
	// text-embeddings-inference server).
	EmbeddingProvider string `koanf:"embedding_provider"`
	// EmbeddingModel is the embedding model name.
	EmbeddingModel string `koanf:"embedding_model"`
	// EmbeddingBaseURL is the inference server URL (remote provider only).
	EmbeddingBaseURL string `koanf:"embedding_base_url"`
	// CacheDir caches downloaded embedding model files (fastembed only).
	CacheDir string `koanf:"cache_dir"`
}

// BridgeConfig configures the external model runtime process.
type BridgeConfig struct {
	// Command is the executable to spawn (e.g. "python3").
	Command string `koanf:"command"`
	// Args are passed to the command (e.g. the runtime script path).
	Args []string `koanf:"args"`
	// Model is exported to the runtime via HUGGINGFACE_MODEL.
	Model string `koanf:"model"`
	// InitTimeout bounds the wait for the runtime's initialized message.
	InitTimeout time.Duration `koanf:"init_timeout"`
}

// SegmentedConfig tunes segment aggregation.
type SegmentedConfig struct {
	// ConfidenceThreshold is the minimum per-segment confidence for a
	// segment to count as positive.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	// SegmentProportion is the minimum fraction of positive segments for a
	// non-idle overall verdict.
	SegmentProportion float64 `koanf:"segment_proportion"`
	// Mode selects segmentation granularity: sentence, line or chunk.
	Mode string `koanf:"mode"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Topic: "studying",
		Strategy: StrategyConfig{
			Type:           "auto",
			Model:          "auto",
			Threshold:      0.7,
			KeywordWeight:  0.3,
			SemanticWeight: 0.4,
			EnsembleWeight: 0.3,
		},
		Models: ModelsConfig{
			Dir:               "models",
			PreferQuantized:   true,
			EmbeddingProvider: "fastembed",
			EmbeddingModel:    "BAAI/bge-small-en-v1.5",
			CacheDir:          "local_cache",
		},
		Bridge: BridgeConfig{
			Command:     "python3",
			Args:        []string{"scripts/hf_runtime.py"},
			Model:       "facebook/bart-large-mnli",
			InitTimeout: 60 * time.Second,
		},
		Segmented: SegmentedConfig{
			ConfidenceThreshold: 0.85,
			SegmentProportion:   0.4,
			Mode:                "sentence",
		},
		Logging: *logging.NewDefaultConfig(),
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if c.Strategy.Threshold < 0 || c.Strategy.Threshold > 1 {
		return fmt.Errorf("strategy.threshold %v out of range [0,1]", c.Strategy.Threshold)
	}
	switch c.Models.EmbeddingProvider {
	case "fastembed", "":
	case "remote":
		if c.Models.EmbeddingBaseURL == "" {
			return fmt.Errorf("models.embedding_base_url is required for the remote embedding provider")
		}
	default:
		return fmt.Errorf("models.embedding_provider %q invalid (want fastembed or remote)", c.Models.EmbeddingProvider)
	}
	if c.Segmented.ConfidenceThreshold < 0 || c.Segmented.ConfidenceThreshold > 1 {
		return fmt.Errorf("segmented.confidence_threshold %v out of range [0,1]", c.Segmented.ConfidenceThreshold)
	}
	if c.Segmented.SegmentProportion < 0 || c.Segmented.SegmentProportion > 1 {
		return fmt.Errorf("segmented.segment_proportion %v out of range [0,1]", c.Segmented.SegmentProportion)
	}
	switch c.Segmented.Mode {
	case "sentence", "line", "chunk":
	default:
		return fmt.Errorf("segmented.mode %q invalid (want sentence, line or chunk)", c.Segmented.Mode)
	}
	return c.Logging.Validate()
}
