package strategy

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Embedder generates fixed-length vectors for text. Satisfied by
// embeddings.Provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelName() string
}

// EmbeddingStrategy classifies by cosine similarity between the input text
// and the configured topic. The topic vector is embedded once per
// configuration and cached.
type EmbeddingStrategy struct {
	embedder Embedder
	meta     Metadata
	logger   *zap.Logger
	metrics  *Metrics

	mu       sync.Mutex
	cfg      TopicConfig
	topicVec []float32
}

// NewEmbedding creates an embedding similarity strategy.
func NewEmbedding(embedder Embedder, meta Metadata, cfg TopicConfig, logger *zap.Logger) (*EmbeddingStrategy, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingStrategy{
		embedder: embedder,
		meta:     meta,
		logger:   logger.Named("embedding"),
		metrics:  NewMetrics(),
		cfg:      cfg,
	}, nil
}

// Classify returns the label for the text.
func (e *EmbeddingStrategy) Classify(ctx context.Context, text string) (string, error) {
	res, err := e.ClassifyWithConfidence(ctx, text)
	if err != nil {
		return "", err
	}
	return res.Classification, nil
}

// ClassifyWithConfidence embeds the text and compares it to the cached topic
// vector. The similarity value itself is the confidence.
func (e *EmbeddingStrategy) ClassifyWithConfidence(ctx context.Context, text string) (Result, error) {
	start := time.Now()
	var classifyErr error
	defer func() {
		e.metrics.RecordClassification(ctx, e.meta.Name, TypeEmbedding, time.Since(start), classifyErr)
	}()

	if err := validateText(text); err != nil {
		classifyErr = err
		return Result{}, err
	}

	similarity, err := e.similarity(ctx, text)
	if err != nil {
		classifyErr = err
		return Result{}, err
	}

	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	confidence := clamp01(similarity)
	if confidence >= cfg.Threshold {
		return Result{Classification: cfg.Topic, Confidence: confidence}, nil
	}
	return Result{Classification: Idle, Confidence: confidence}, nil
}

// similarity returns the raw cosine similarity between text and topic.
func (e *EmbeddingStrategy) similarity(ctx context.Context, text string) (float64, error) {
	topicVec, err := e.topicVector(ctx)
	if err != nil {
		return 0, err
	}

	textVec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("%w: embedding text: %v", ErrInference, err)
	}

	return cosineSimilarity(topicVec, textVec)
}

// topicVector returns the cached topic embedding, computing it on first use.
func (e *EmbeddingStrategy) topicVector(ctx context.Context) ([]float32, error) {
	e.mu.Lock()
	cached := e.topicVec
	topic := e.cfg.Topic
	e.mu.Unlock()

	if cached != nil {
		return cached, nil
	}

	vec, err := e.embedder.Embed(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding topic %q: %v", ErrInference, topic, err)
	}

	e.mu.Lock()
	// Keep the vector only if the topic has not changed underneath us.
	if e.cfg.Topic == topic {
		e.topicVec = vec
	}
	e.mu.Unlock()
	return vec, nil
}

// SetTopicConfig reconfigures the strategy and invalidates the cached topic
// vector.
func (e *EmbeddingStrategy) SetTopicConfig(cfg TopicConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.Topic != e.cfg.Topic {
		e.topicVec = nil
	}
	e.cfg = cfg
	return nil
}

// TopicConfig returns the current configuration.
func (e *EmbeddingStrategy) TopicConfig() TopicConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Metadata returns the static description of this strategy+model pair.
func (e *EmbeddingStrategy) Metadata() Metadata {
	return e.meta
}

// Available probes the embedder with the topic string.
func (e *EmbeddingStrategy) Available(ctx context.Context) bool {
	if _, err := e.topicVector(ctx); err != nil {
		e.logger.Debug("embedder unavailable", zap.Error(err))
		return false
	}
	return true
}

// Labels returns the two possible outcomes: topic and idle.
func (e *EmbeddingStrategy) Labels() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return []string{e.cfg.Topic, Idle}
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched dimensions are a hard error, never a silent zero. Vectors with
// zero magnitude yield similarity 0.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		magA += va * va
		magB += vb * vb
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
