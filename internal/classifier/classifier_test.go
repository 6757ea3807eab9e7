package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/classifyd/internal/segment"
	"github.com/fyrsmithlabs/classifyd/internal/strategy"
)

// scriptedStrategy returns results keyed by input text.
type scriptedStrategy struct {
	cfg     strategy.TopicConfig
	results map[string]strategy.Result
	err     error
	calls   int
}

func (s *scriptedStrategy) Classify(ctx context.Context, text string) (string, error) {
	res, err := s.ClassifyWithConfidence(ctx, text)
	return res.Classification, err
}

func (s *scriptedStrategy) ClassifyWithConfidence(ctx context.Context, text string) (strategy.Result, error) {
	s.calls++
	if s.err != nil {
		return strategy.Result{}, s.err
	}
	if res, ok := s.results[text]; ok {
		return res, nil
	}
	return strategy.Result{Classification: strategy.Idle, Confidence: 0.1}, nil
}

func (s *scriptedStrategy) SetTopicConfig(cfg strategy.TopicConfig) error { s.cfg = cfg; return nil }
func (s *scriptedStrategy) TopicConfig() strategy.TopicConfig             { return s.cfg }
func (s *scriptedStrategy) Metadata() strategy.Metadata                   { return strategy.Metadata{} }
func (s *scriptedStrategy) Available(ctx context.Context) bool            { return true }
func (s *scriptedStrategy) Labels() []string                              { return nil }

// fakeProvider serves a fixed strategy and counts constructions.
type fakeProvider struct {
	strat strategy.Strategy
	err   error
	built int
}

func (f *fakeProvider) NewStrategy(ctx context.Context, typ strategy.Type, model string, cfg strategy.TopicConfig) (strategy.Strategy, error) {
	f.built++
	if f.err != nil {
		return nil, f.err
	}
	return f.strat, nil
}

func testConfig() Config {
	return Config{
		Strategy: strategy.TypeZeroShot,
		Model:    "m",
		Topic:    strategy.TopicConfig{Topic: "studying", Threshold: 0.7},
	}
}

func newTestClassifier(t *testing.T, strat strategy.Strategy) (*Segmented, *fakeProvider) {
	t.Helper()
	provider := &fakeProvider{strat: strat}
	c, err := NewSegmented(provider, testConfig(), nil)
	require.NoError(t, err)
	return c, provider
}

func TestSegmentedPositiveVerdict(t *testing.T) {
	strat := &scriptedStrategy{results: map[string]strategy.Result{
		"Chapter 4 limits and continuity.": {Classification: "studying", Confidence: 0.93},
		"Exercise 12 compute the limit.":   {Classification: "studying", Confidence: 0.88},
	}}
	c, _ := newTestClassifier(t, strat)

	res, err := c.Classify(context.Background(), "Chapter 4 limits and continuity. Exercise 12 compute the limit. Toolbar clock 3:15.")
	require.NoError(t, err)
	require.Len(t, res.Segments, 3)
	assert.Equal(t, "studying", res.Classification)
	assert.InDelta(t, 0.93, res.Confidence, 1e-9)
}

func TestSegmentedProportionBelowFloorIsIdle(t *testing.T) {
	// 10 segments, 3 positive: 0.3 < 0.4.
	results := make(map[string]strategy.Result)
	var text string
	for i := 0; i < 10; i++ {
		s := fmt.Sprintf("segment number %d here.", i)
		text += s + " "
		if i < 3 {
			results[s] = strategy.Result{Classification: "studying", Confidence: 0.9}
		}
	}
	strat := &scriptedStrategy{results: results}
	c, _ := newTestClassifier(t, strat)

	res, err := c.Classify(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, res.Segments, 10)
	assert.Equal(t, strategy.Idle, res.Classification)
	// The strongest segment's confidence is still surfaced.
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
}

func TestSegmentedProportionAtFloorIsPositive(t *testing.T) {
	// 10 segments, 4 positive: exactly 0.4.
	results := make(map[string]strategy.Result)
	var text string
	for i := 0; i < 10; i++ {
		s := fmt.Sprintf("segment number %d here.", i)
		text += s + " "
		if i < 4 {
			results[s] = strategy.Result{Classification: "studying", Confidence: 0.86 + float64(i)*0.01}
		}
	}
	strat := &scriptedStrategy{results: results}
	c, _ := newTestClassifier(t, strat)

	res, err := c.Classify(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, "studying", res.Classification)
	assert.InDelta(t, 0.89, res.Confidence, 1e-9)
}

func TestSegmentedHighConfidenceBelowThresholdNotPositive(t *testing.T) {
	strat := &scriptedStrategy{results: map[string]strategy.Result{
		"reading the calculus chapter.": {Classification: "studying", Confidence: 0.80},
	}}
	c, _ := newTestClassifier(t, strat)

	// One segment, non-idle but below the 0.85 floor: not positive.
	res, err := c.Classify(context.Background(), "reading the calculus chapter.")
	require.NoError(t, err)
	assert.Equal(t, strategy.Idle, res.Classification)
	assert.InDelta(t, 0.80, res.Confidence, 1e-9)
}

func TestSegmentedEmptyText(t *testing.T) {
	strat := &scriptedStrategy{}
	c, _ := newTestClassifier(t, strat)

	res, err := c.Classify(context.Background(), "   \n \t ")
	require.NoError(t, err)
	assert.Equal(t, strategy.Idle, res.Classification)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Empty(t, res.Segments)
	assert.Equal(t, 0, strat.calls, "nothing to classify")
}

func TestSegmentedSegmentFailure(t *testing.T) {
	strat := &scriptedStrategy{err: errors.New("runtime gone")}
	c, _ := newTestClassifier(t, strat)

	_, err := c.Classify(context.Background(), "some text here.")
	assert.Error(t, err)
	assert.Nil(t, c.LastResult())
}

func TestSegmentedLastResultCached(t *testing.T) {
	strat := &scriptedStrategy{results: map[string]strategy.Result{
		"studying hard.": {Classification: "studying", Confidence: 0.9},
	}}
	c, _ := newTestClassifier(t, strat)

	assert.Nil(t, c.LastResult())
	res, err := c.Classify(context.Background(), "studying hard.")
	require.NoError(t, err)
	assert.Equal(t, res, c.LastResult())
}

func TestSegmentedStrategyBuiltOnce(t *testing.T) {
	strat := &scriptedStrategy{}
	c, provider := newTestClassifier(t, strat)

	_, err := c.Classify(context.Background(), "first text.")
	require.NoError(t, err)
	_, err = c.Classify(context.Background(), "second text.")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.built)
}

func TestSegmentedSetConfigRebuildsStrategy(t *testing.T) {
	strat := &scriptedStrategy{results: map[string]strategy.Result{
		"some text.": {Classification: "studying", Confidence: 0.9},
	}}
	c, provider := newTestClassifier(t, strat)

	_, err := c.Classify(context.Background(), "some text.")
	require.NoError(t, err)
	require.NotNil(t, c.LastResult())

	cfg := testConfig()
	cfg.Topic.Topic = "coding"
	require.NoError(t, c.SetConfig(cfg))
	assert.Nil(t, c.LastResult(), "stale verdict must not survive reconfiguration")

	_, err = c.Classify(context.Background(), "some text.")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.built)
}

func TestSegmentedSetConfigValidation(t *testing.T) {
	c, _ := newTestClassifier(t, &scriptedStrategy{})

	cfg := testConfig()
	cfg.ConfidenceThreshold = 1.5
	assert.Error(t, c.SetConfig(cfg))

	cfg = testConfig()
	cfg.Topic.Topic = ""
	assert.Error(t, c.SetConfig(cfg))
}

func TestSegmentedStrategyConstructionFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model not available")}
	c, err := NewSegmented(provider, testConfig(), nil)
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), "text.")
	assert.Error(t, err)
}

func TestSegmentedLineMode(t *testing.T) {
	strat := &scriptedStrategy{results: map[string]strategy.Result{
		"derivative rules": {Classification: "studying", Confidence: 0.9},
	}}
	provider := &fakeProvider{strat: strat}
	cfg := testConfig()
	cfg.Mode = segment.TypeLine
	c, err := NewSegmented(provider, cfg, nil)
	require.NoError(t, err)

	res, err := c.Classify(context.Background(), "derivative rules\nbrowser tabs")
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, segment.TypeLine, res.Segments[0].Segment.Type)
	assert.Equal(t, "studying", res.Classification)
}

func TestWhitespacePreprocessor(t *testing.T) {
	p := NewWhitespacePreprocessor()
	assert.Equal(t, "hello world\nsecond line", p.Process("  hello   world  \n\n\t\n second\tline \n"))
	assert.Equal(t, "", p.Process(" \n\t "))
	assert.Equal(t, "unchanged", p.Process("unchanged"))
}
