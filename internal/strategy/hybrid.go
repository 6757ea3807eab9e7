package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// weightTolerance is the allowed deviation of the weight sum from 1.0.
const weightTolerance = 0.01

// Keyword bonus tuning: each keyword occurrence beyond the first adds
// bonusPerExtraMatch to the score, up to maxBonusMatches occurrences.
const (
	bonusPerExtraMatch = 0.05
	maxBonusMatches    = 4
)

// Weights are the hybrid ensemble weights. They must sum to 1.0.
type Weights struct {
	// Keyword weights the keyword match ratio.
	Keyword float64
	// Semantic weights the embedding similarity.
	Semantic float64
	// Ensemble weights the zero-shot confidence.
	Ensemble float64
}

// Validate rejects weight triples that do not sum to 1.0 (±0.01).
func (w Weights) Validate() error {
	sum := w.Keyword + w.Semantic + w.Ensemble
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: got %.2f+%.2f+%.2f=%.2f", ErrInvalidWeights,
			w.Keyword, w.Semantic, w.Ensemble, sum)
	}
	if w.Keyword < 0 || w.Semantic < 0 || w.Ensemble < 0 {
		return fmt.Errorf("%w: weights cannot be negative", ErrInvalidWeights)
	}
	return nil
}

// Hybrid combines three sub-scores into a weighted sum: keyword match ratio,
// embedding similarity, and zero-shot confidence.
type Hybrid struct {
	embedding Strategy
	zeroshot  Strategy
	meta      Metadata
	logger    *zap.Logger
	metrics   *Metrics

	mu       sync.Mutex
	cfg      TopicConfig
	weights  Weights
	keywords []string
}

// NewHybrid creates a hybrid ensemble over embedding and zero-shot
// sub-strategies. Extra keywords supplement those derived from the topic.
func NewHybrid(embedding, zeroshot Strategy, weights Weights, extraKeywords []string, meta Metadata, cfg TopicConfig, logger *zap.Logger) (*Hybrid, error) {
	if embedding == nil || zeroshot == nil {
		return nil, fmt.Errorf("%w: both sub-strategies are required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hybrid{
		embedding: embedding,
		zeroshot:  zeroshot,
		meta:      meta,
		logger:    logger.Named("hybrid"),
		metrics:   NewMetrics(),
		cfg:       cfg,
		weights:   weights,
		keywords:  deriveKeywords(cfg.Topic, extraKeywords),
	}
	return h, nil
}

// Classify returns the label for the text.
func (h *Hybrid) Classify(ctx context.Context, text string) (string, error) {
	res, err := h.ClassifyWithConfidence(ctx, text)
	if err != nil {
		return "", err
	}
	return res.Classification, nil
}

// ClassifyWithConfidence computes the weighted sub-score sum. The sum itself
// is the confidence.
func (h *Hybrid) ClassifyWithConfidence(ctx context.Context, text string) (Result, error) {
	start := time.Now()
	var classifyErr error
	defer func() {
		h.metrics.RecordClassification(ctx, h.meta.Name, TypeHybrid, time.Since(start), classifyErr)
	}()

	if err := validateText(text); err != nil {
		classifyErr = err
		return Result{}, err
	}

	h.mu.Lock()
	cfg := h.cfg
	weights := h.weights
	keywords := make([]string, len(h.keywords))
	copy(keywords, h.keywords)
	h.mu.Unlock()

	kwScore := keywordScore(text, keywords)

	// Sub-strategy confidences are raw scores whichever branch they take,
	// so the threshold decision stays local to the hybrid.
	embRes, err := h.embedding.ClassifyWithConfidence(ctx, text)
	if err != nil {
		classifyErr = fmt.Errorf("embedding sub-score: %w", err)
		return Result{}, classifyErr
	}
	zsRes, err := h.zeroshot.ClassifyWithConfidence(ctx, text)
	if err != nil {
		classifyErr = fmt.Errorf("zero-shot sub-score: %w", err)
		return Result{}, classifyErr
	}

	weighted := weights.Keyword*kwScore +
		weights.Semantic*embRes.Confidence +
		weights.Ensemble*zsRes.Confidence
	confidence := clamp01(weighted)

	h.logger.Debug("hybrid sub-scores",
		zap.Float64("keyword", kwScore),
		zap.Float64("semantic", embRes.Confidence),
		zap.Float64("ensemble", zsRes.Confidence),
		zap.Float64("weighted", confidence))

	if confidence >= cfg.Threshold {
		return Result{Classification: cfg.Topic, Confidence: confidence}, nil
	}
	return Result{Classification: Idle, Confidence: confidence}, nil
}

// SetTopicConfig reconfigures the hybrid and both sub-strategies, and
// re-derives topic keywords.
func (h *Hybrid) SetTopicConfig(cfg TopicConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := h.embedding.SetTopicConfig(cfg); err != nil {
		return err
	}
	if err := h.zeroshot.SetTopicConfig(cfg); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if cfg.Topic != h.cfg.Topic {
		h.keywords = deriveKeywords(cfg.Topic, nil)
	}
	h.cfg = cfg
	return nil
}

// TopicConfig returns the current configuration.
func (h *Hybrid) TopicConfig() TopicConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

// SetWeights replaces the ensemble weights.
func (h *Hybrid) SetWeights(w Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.weights = w
	return nil
}

// Weights returns the current ensemble weights.
func (h *Hybrid) Weights() Weights {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.weights
}

// Metadata returns the static description of this strategy+model pair.
func (h *Hybrid) Metadata() Metadata {
	return h.meta
}

// Available requires both sub-strategies.
func (h *Hybrid) Available(ctx context.Context) bool {
	return h.embedding.Available(ctx) && h.zeroshot.Available(ctx)
}

// Labels returns the two possible outcomes: topic and idle.
func (h *Hybrid) Labels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return []string{h.cfg.Topic, Idle}
}

// Keywords returns a copy of the active keyword list.
func (h *Hybrid) Keywords() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.keywords))
	copy(out, h.keywords)
	return out
}

// deriveKeywords builds the keyword list from the topic words plus any
// configured extras, lowercased and deduplicated.
func deriveKeywords(topic string, extras []string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	add := func(word string) {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			return
		}
		if _, ok := seen[word]; ok {
			return
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	for _, word := range strings.Fields(topic) {
		add(word)
	}
	for _, word := range extras {
		add(word)
	}
	return keywords
}

// keywordScore is the fraction of keywords found in the text, with a capped
// bonus for repeated occurrences.
func keywordScore(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	occurrences := 0
	for _, kw := range keywords {
		n := strings.Count(lower, kw)
		if n > 0 {
			matched++
			occurrences += n
		}
	}
	ratio := float64(matched) / float64(len(keywords))
	extra := occurrences - matched
	if extra > maxBonusMatches {
		extra = maxBonusMatches
	}
	return math.Min(1.0, ratio+bonusPerExtraMatch*float64(extra))
}
