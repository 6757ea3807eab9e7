package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/classifyd/internal/bridge"
)

// HypothesisTemplate phrases a topic as an NLI hypothesis.
const HypothesisTemplate = "This text is about %s"

// NLIBackend is the zero-shot inference backend, typically a *bridge.Bridge
// talking to the external model runtime.
type NLIBackend interface {
	Initialize(ctx context.Context) error
	Ready() bool
	Classify(ctx context.Context, text string, labels []string, multiLabel bool) (*bridge.Classification, error)
}

// ZeroShot scores text against candidate topics via NLI hypothesis scoring.
// It supports label mutation through the LabelEditor capability.
type ZeroShot struct {
	backend NLIBackend
	meta    Metadata
	logger  *zap.Logger
	metrics *Metrics

	mu     sync.Mutex
	cfg    TopicConfig
	topics []string
}

// NewZeroShot creates a zero-shot strategy over the given backend.
func NewZeroShot(backend NLIBackend, meta Metadata, cfg TopicConfig, logger *zap.Logger) (*ZeroShot, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZeroShot{
		backend: backend,
		meta:    meta,
		logger:  logger.Named("zeroshot"),
		metrics: NewMetrics(),
		cfg:     cfg,
		topics:  []string{cfg.Topic},
	}, nil
}

// Classify returns the label for the text.
func (z *ZeroShot) Classify(ctx context.Context, text string) (string, error) {
	res, err := z.ClassifyWithConfidence(ctx, text)
	if err != nil {
		return "", err
	}
	return res.Classification, nil
}

// ClassifyWithConfidence scores the text against every candidate topic and
// returns the best topic when its score clears the threshold, otherwise the
// idle sentinel carrying the sub-threshold score.
func (z *ZeroShot) ClassifyWithConfidence(ctx context.Context, text string) (Result, error) {
	start := time.Now()
	var classifyErr error
	defer func() {
		z.metrics.RecordClassification(ctx, z.meta.Name, TypeZeroShot, time.Since(start), classifyErr)
	}()

	if err := validateText(text); err != nil {
		classifyErr = err
		return Result{}, err
	}

	z.mu.Lock()
	cfg := z.cfg
	topics := make([]string, len(z.topics))
	copy(topics, z.topics)
	z.mu.Unlock()

	if err := z.ensureReady(ctx); err != nil {
		classifyErr = err
		return Result{}, err
	}

	hypotheses := make([]string, len(topics))
	byHypothesis := make(map[string]string, len(topics))
	for i, topic := range topics {
		hypotheses[i] = fmt.Sprintf(HypothesisTemplate, topic)
		byHypothesis[hypotheses[i]] = topic
	}

	resp, err := z.backend.Classify(ctx, text, hypotheses, false)
	if err != nil {
		classifyErr = fmt.Errorf("%w: %v", ErrInference, err)
		return Result{}, classifyErr
	}
	if len(resp.Labels) == 0 {
		classifyErr = fmt.Errorf("%w: runtime returned no labels", ErrInference)
		return Result{}, classifyErr
	}

	best := 0
	for i := range resp.Scores {
		if resp.Scores[i] > resp.Scores[best] {
			best = i
		}
	}

	topic, ok := byHypothesis[resp.Labels[best]]
	if !ok {
		// Runtime echoed something other than our hypotheses.
		topic = resp.Labels[best]
	}
	confidence := clamp01(resp.Scores[best])

	if confidence >= cfg.Threshold {
		return Result{Classification: topic, Confidence: confidence}, nil
	}
	return Result{Classification: Idle, Confidence: confidence}, nil
}

// ensureReady lazily initializes the backend process.
func (z *ZeroShot) ensureReady(ctx context.Context) error {
	if z.backend.Ready() {
		return nil
	}
	if err := z.backend.Initialize(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrModelInit, err)
	}
	return nil
}

// SetTopicConfig reconfigures the topic and threshold. The new topic joins
// the candidate label set if not already present.
func (z *ZeroShot) SetTopicConfig(cfg TopicConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	z.cfg = cfg
	for _, t := range z.topics {
		if t == cfg.Topic {
			return nil
		}
	}
	z.topics = append([]string{cfg.Topic}, z.topics...)
	return nil
}

// TopicConfig returns the current configuration.
func (z *ZeroShot) TopicConfig() TopicConfig {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.cfg
}

// Metadata returns the static description of this strategy+model pair.
func (z *ZeroShot) Metadata() Metadata {
	return z.meta
}

// Available probes the backend, initializing it if needed.
func (z *ZeroShot) Available(ctx context.Context) bool {
	if err := z.ensureReady(ctx); err != nil {
		z.logger.Debug("backend unavailable", zap.Error(err))
		return false
	}
	return true
}

// Labels returns a copy of the candidate topics.
func (z *ZeroShot) Labels() []string {
	z.mu.Lock()
	defer z.mu.Unlock()
	out := make([]string, len(z.topics))
	copy(out, z.topics)
	return out
}

// AddLabel adds a candidate topic. Implements LabelEditor.
func (z *ZeroShot) AddLabel(label string) error {
	if label == "" {
		return fmt.Errorf("%w: label cannot be empty", ErrInvalidInput)
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, t := range z.topics {
		if t == label {
			return nil
		}
	}
	z.topics = append(z.topics, label)
	return nil
}

// RemoveLabel removes a candidate topic. The configured topic cannot be
// removed. Implements LabelEditor.
func (z *ZeroShot) RemoveLabel(label string) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if label == z.cfg.Topic {
		return fmt.Errorf("%w: cannot remove the configured topic %q", ErrInvalidInput, label)
	}
	for i, t := range z.topics {
		if t == label {
			z.topics = append(z.topics[:i], z.topics[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: label %q not present", ErrInvalidInput, label)
}
