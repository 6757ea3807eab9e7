// Package strategy provides interchangeable text classification backends
// behind a single contract.
//
// Three variants are implemented: zero-shot NLI (via the external model
// runtime bridge), embedding similarity (local ONNX embeddings), and a
// hybrid ensemble combining keyword, embedding and zero-shot signals.
// A registry-backed factory instantiates and configures variants; "auto"
// selection is delegated to an injected recommender.
package strategy

import (
	"context"
	"fmt"
)

// Idle is the sentinel classification for text that does not match the
// configured topic.
const Idle = "idle"

// Type identifies a strategy variant.
type Type string

const (
	// TypeZeroShot classifies via natural-language-inference scoring.
	TypeZeroShot Type = "zero-shot"
	// TypeEmbedding classifies via embedding cosine similarity.
	TypeEmbedding Type = "embedding"
	// TypeHybrid combines keyword, embedding and zero-shot signals.
	TypeHybrid Type = "hybrid"
	// TypeAuto defers variant selection to the evaluator.
	TypeAuto Type = "auto"
)

// Result is the outcome of a single classification call. Confidence is the
// backend's top score, never renormalized across calls.
type Result struct {
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
}

// TopicConfig configures the topic a strategy classifies against.
type TopicConfig struct {
	// Topic is the positive classification label, e.g. "studying".
	Topic string
	// Threshold is the minimum confidence for a positive classification.
	Threshold float64
}

// Validate checks the config before it is applied.
func (c TopicConfig) Validate() error {
	if c.Topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidConfig)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: threshold %v out of range [0,1]", ErrInvalidConfig, c.Threshold)
	}
	return nil
}

// Strategy is the uniform contract over classification backends.
type Strategy interface {
	// Classify returns the label for the text.
	Classify(ctx context.Context, text string) (string, error)
	// ClassifyWithConfidence returns the label and the backend's top score.
	ClassifyWithConfidence(ctx context.Context, text string) (Result, error)
	// SetTopicConfig reconfigures the topic and threshold.
	SetTopicConfig(cfg TopicConfig) error
	// TopicConfig returns the current configuration.
	TopicConfig() TopicConfig
	// Metadata returns the static description of this strategy+model pair.
	Metadata() Metadata
	// Available reports whether the backend can serve classifications.
	Available(ctx context.Context) bool
	// Labels returns the candidate labels the strategy scores against.
	Labels() []string
}

// LabelEditor is an optional capability for strategies whose candidate label
// set can be mutated. Variants opt in by implementing it; use AddLabel and
// RemoveLabel to invoke it through the Strategy contract.
type LabelEditor interface {
	AddLabel(label string) error
	RemoveLabel(label string) error
}

// AddLabel adds a candidate label if the strategy supports mutation.
func AddLabel(s Strategy, label string) error {
	ed, ok := s.(LabelEditor)
	if !ok {
		return fmt.Errorf("%w: %s cannot add labels", ErrCapabilityUnsupported, s.Metadata().Type)
	}
	return ed.AddLabel(label)
}

// RemoveLabel removes a candidate label if the strategy supports mutation.
func RemoveLabel(s Strategy, label string) error {
	ed, ok := s.(LabelEditor)
	if !ok {
		return fmt.Errorf("%w: %s cannot remove labels", ErrCapabilityUnsupported, s.Metadata().Type)
	}
	return ed.RemoveLabel(label)
}

func validateText(text string) error {
	if text == "" {
		return fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
