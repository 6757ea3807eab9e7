package evaluator

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/classifyd/internal/strategy"
)

// benchmarkCandidates caps how many pairs a benchmark run exercises.
const benchmarkCandidates = 3

// TestCase is one labeled benchmark sample.
type TestCase struct {
	// Text is the input to classify.
	Text string `json:"text" yaml:"text"`
	// ExpectedMatch is true when the text belongs to the configured topic.
	ExpectedMatch bool `json:"expected_match" yaml:"expected_match"`
}

// BenchmarkResult is the measured outcome for one strategy+model pair.
type BenchmarkResult struct {
	Strategy   strategy.Type `json:"strategy"`
	Model      string        `json:"model"`
	Accuracy   float64       `json:"accuracy"`
	AvgLatency time.Duration `json:"avg_latency"`
	Samples    int           `json:"samples"`
}

// Benchmark runs the labeled samples through the top available pairs and
// measures real accuracy and latency. Pairs that fail mid-run are logged and
// excluded rather than aborting the whole benchmark. Results are cached for
// the lifetime of the evaluator, per pair and per case set.
func (e *Evaluator) Benchmark(ctx context.Context, cases []TestCase) ([]BenchmarkResult, error) {
	if len(cases) == 0 {
		return nil, fmt.Errorf("benchmark requires at least one test case")
	}

	runKey := casesKey(cases)
	if cached, ok := e.cachedBenchmark(runKey); ok {
		return cached, nil
	}

	var candidates []Evaluation
	for _, ev := range e.EvaluateAll(ctx) {
		if !ev.Available {
			continue
		}
		candidates = append(candidates, ev)
		if len(candidates) == benchmarkCandidates {
			break
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no strategy available to benchmark")
	}

	var results []BenchmarkResult
	for _, cand := range candidates {
		res, err := e.benchmarkPair(ctx, cand, cases)
		if err != nil {
			e.logger.Warn("benchmark candidate failed",
				zap.String("strategy", string(cand.Strategy)),
				zap.String("model", cand.Model), zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("every benchmark candidate failed")
	}

	e.storeBenchmark(runKey, results)
	return results, nil
}

// benchmarkPair measures one pair over all cases. A classification error
// fails the pair; the caller decides what to do with the failure.
func (e *Evaluator) benchmarkPair(ctx context.Context, cand Evaluation, cases []TestCase) (BenchmarkResult, error) {
	s, err := e.factory.NewStrategy(ctx, cand.Strategy, cand.Model, e.topic)
	if err != nil {
		return BenchmarkResult{}, err
	}

	correct := 0
	var total time.Duration
	for _, tc := range cases {
		start := time.Now()
		res, err := s.ClassifyWithConfidence(ctx, tc.Text)
		if err != nil {
			return BenchmarkResult{}, fmt.Errorf("classifying %q: %w", tc.Text, err)
		}
		total += time.Since(start)

		matched := res.Classification != strategy.Idle
		if matched == tc.ExpectedMatch {
			correct++
		}
	}

	return BenchmarkResult{
		Strategy:   cand.Strategy,
		Model:      cand.Model,
		Accuracy:   float64(correct) / float64(len(cases)),
		AvgLatency: total / time.Duration(len(cases)),
		Samples:    len(cases),
	}, nil
}

func (e *Evaluator) cachedBenchmark(runKey string) ([]BenchmarkResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	results, ok := e.benchCache[runKey]
	return results, ok
}

func (e *Evaluator) storeBenchmark(runKey string, results []BenchmarkResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.benchCache[runKey] = results
	for _, r := range results {
		e.benchCache[cacheKey(r.Strategy, r.Model)] = []BenchmarkResult{r}
	}
}

// CachedResult returns the cached benchmark for one pair, if present.
func (e *Evaluator) CachedResult(typ strategy.Type, model string) (BenchmarkResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	results, ok := e.benchCache[cacheKey(typ, model)]
	if !ok || len(results) == 0 {
		return BenchmarkResult{}, false
	}
	return results[0], true
}

// InvalidateBenchmarks drops all cached benchmark results.
func (e *Evaluator) InvalidateBenchmarks() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.benchCache = make(map[string][]BenchmarkResult)
}

func cacheKey(typ strategy.Type, model string) string {
	return fmt.Sprintf("%s-%s", typ, model)
}

// casesKey digests a case set so a full-run cache hit only fires when the
// same samples come back.
func casesKey(cases []TestCase) string {
	h := fnv.New64a()
	for _, tc := range cases {
		h.Write([]byte(tc.Text))
		if tc.ExpectedMatch {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		h.Write([]byte{0xff})
	}
	return fmt.Sprintf("run-%x", h.Sum64())
}
