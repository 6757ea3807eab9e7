// Package classifier aggregates per-segment classifications into an overall
// verdict for a full screen of OCR text.
package classifier

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/classifyd/internal/segment"
	"github.com/fyrsmithlabs/classifyd/internal/strategy"
)

// Default aggregation parameters.
const (
	// DefaultConfidenceThreshold is the per-segment confidence floor for a
	// segment to count as positive.
	DefaultConfidenceThreshold = 0.85
	// DefaultSegmentProportion is the fraction of positive segments needed
	// for a positive overall verdict.
	DefaultSegmentProportion = 0.4
)

// StrategyProvider builds the classification strategy. Satisfied by
// *strategy.Factory.
type StrategyProvider interface {
	NewStrategy(ctx context.Context, typ strategy.Type, model string, cfg strategy.TopicConfig) (strategy.Strategy, error)
}

// SegmentResult pairs one segment with its classification.
type SegmentResult struct {
	Segment        segment.TextSegment `json:"segment"`
	Classification string              `json:"classification"`
	Confidence     float64             `json:"confidence"`
}

// Result is the aggregated verdict over all segments. Confidence is always
// the highest per-segment confidence seen, even when the overall
// classification is idle.
type Result struct {
	Classification string          `json:"classification"`
	Confidence     float64         `json:"confidence"`
	Segments       []SegmentResult `json:"segments"`
}

// Config configures the segmented classifier.
type Config struct {
	// Strategy selects the underlying classification strategy.
	Strategy strategy.Type
	// Model names the model, or "auto".
	Model string
	// Topic configures the strategy's topic and per-call threshold.
	Topic strategy.TopicConfig
	// ConfidenceThreshold is the per-segment positive floor.
	ConfidenceThreshold float64
	// SegmentProportion is the positive-fraction floor for the overall
	// verdict.
	SegmentProportion float64
	// Mode selects segmentation granularity.
	Mode segment.Type
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.SegmentProportion == 0 {
		c.SegmentProportion = DefaultSegmentProportion
	}
	if c.Mode == "" {
		c.Mode = segment.TypeSentence
	}
	return c
}

// Validate checks the aggregation parameters.
func (c Config) Validate() error {
	if err := c.Topic.Validate(); err != nil {
		return err
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v out of range [0,1]", c.ConfidenceThreshold)
	}
	if c.SegmentProportion < 0 || c.SegmentProportion > 1 {
		return fmt.Errorf("segment proportion %v out of range [0,1]", c.SegmentProportion)
	}
	return nil
}

// Segmented classifies text segment by segment and aggregates the results.
// The last result is cached for cheap re-reads between screen captures.
type Segmented struct {
	provider     StrategyProvider
	preprocessor Preprocessor
	logger       *zap.Logger

	mu        sync.Mutex
	cfg       Config
	segmenter segment.Segmenter
	strat     strategy.Strategy
	last      *Result
}

// NewSegmented creates a segmented classifier. The strategy is built lazily
// on first classification.
func NewSegmented(provider StrategyProvider, cfg Config, logger *zap.Logger) (*Segmented, error) {
	if provider == nil {
		return nil, fmt.Errorf("strategy provider is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Segmented{
		provider:     provider,
		preprocessor: NewWhitespacePreprocessor(),
		logger:       logger.Named("classifier"),
		cfg:          cfg,
		segmenter:    segment.NewSimple(cfg.Mode),
	}, nil
}

// SetPreprocessor replaces the text preprocessor.
func (s *Segmented) SetPreprocessor(p Preprocessor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p != nil {
		s.preprocessor = p
	}
}

// Classify preprocesses, segments and classifies the text, then aggregates
// the per-segment results into an overall verdict.
func (s *Segmented) Classify(ctx context.Context, text string) (*Result, error) {
	s.mu.Lock()
	cfg := s.cfg
	seg := s.segmenter
	pre := s.preprocessor
	s.mu.Unlock()

	strat, err := s.ensureStrategy(ctx)
	if err != nil {
		return nil, err
	}

	segments := seg.Segment(pre.Process(text))
	if len(segments) == 0 {
		res := &Result{Classification: strategy.Idle, Confidence: 0, Segments: []SegmentResult{}}
		s.store(res)
		return res, nil
	}

	results := make([]SegmentResult, 0, len(segments))
	for _, ts := range segments {
		r, err := strat.ClassifyWithConfidence(ctx, ts.Text)
		if err != nil {
			return nil, fmt.Errorf("classifying segment at %d: %w", ts.StartIndex, err)
		}
		results = append(results, SegmentResult{
			Segment:        ts,
			Classification: r.Classification,
			Confidence:     r.Confidence,
		})
	}

	res := aggregate(results, cfg)
	s.logger.Debug("segmented classification",
		zap.Int("segments", len(results)),
		zap.String("classification", res.Classification),
		zap.Float64("confidence", res.Confidence))
	s.store(res)
	return res, nil
}

// LastResult returns the most recent verdict, or nil before any call.
func (s *Segmented) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Config returns the active configuration.
func (s *Segmented) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetConfig replaces the configuration. The strategy and cached result are
// discarded; the next classification rebuilds from scratch.
func (s *Segmented) SetConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.segmenter = segment.NewSimple(cfg.Mode)
	s.strat = nil
	s.last = nil
	return nil
}

func (s *Segmented) ensureStrategy(ctx context.Context) (strategy.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strat != nil {
		return s.strat, nil
	}
	strat, err := s.provider.NewStrategy(ctx, s.cfg.Strategy, s.cfg.Model, s.cfg.Topic)
	if err != nil {
		return nil, err
	}
	s.strat = strat
	return strat, nil
}

func (s *Segmented) store(res *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = res
}

// aggregate applies the two-level decision: a segment is positive when it is
// non-idle with confidence at or above the threshold, and the overall
// verdict is positive when enough segments are. The overall confidence is
// the global maximum either way, so callers can see how close an idle
// verdict was.
func aggregate(results []SegmentResult, cfg Config) *Result {
	positives := 0
	best := 0
	for i, r := range results {
		if r.Classification != strategy.Idle && r.Confidence >= cfg.ConfidenceThreshold {
			positives++
		}
		if r.Confidence > results[best].Confidence {
			best = i
		}
	}

	overall := strategy.Idle
	if float64(positives)/float64(len(results)) >= cfg.SegmentProportion {
		overall = results[best].Classification
	}
	return &Result{
		Classification: overall,
		Confidence:     results[best].Confidence,
		Segments:       results,
	}
}
