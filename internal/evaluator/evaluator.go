// Package evaluator ranks strategy+model pairs against resource requirements
// and benchmarks them on labeled samples. It implements strategy.Recommender
// so the factory can delegate "auto" selection here.
package evaluator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/classifyd/internal/strategy"
)

// Factory is the subset of the strategy factory the evaluator needs.
type Factory interface {
	RegisteredTypes() []strategy.Type
	DiscoverModels(ctx context.Context, typ strategy.Type) ([]string, error)
	MetadataFor(typ strategy.Type, model string) (strategy.Metadata, error)
	NewStrategy(ctx context.Context, typ strategy.Type, model string, cfg strategy.TopicConfig) (strategy.Strategy, error)
}

// Evaluation is one strategy+model pair with its expected characteristics
// mapped to comparable numbers.
type Evaluation struct {
	Strategy         strategy.Type `json:"strategy"`
	Model            string        `json:"model"`
	ExpectedAccuracy float64       `json:"expected_accuracy"`
	ExpectedLatency  time.Duration `json:"expected_latency"`
	MemoryMB         int           `json:"memory_mb"`
	NeedsNetwork     bool          `json:"needs_network"`
	Available        bool          `json:"available"`
}

// Evaluator surveys the registered strategies and recommends the pair that
// best fits a set of requirements.
type Evaluator struct {
	factory Factory
	topic   strategy.TopicConfig
	logger  *zap.Logger

	mu         sync.Mutex
	benchCache map[string][]BenchmarkResult
}

// New creates an evaluator. The topic config is used for availability probes
// and benchmarks.
func New(factory Factory, topic strategy.TopicConfig, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		factory:    factory,
		topic:      topic,
		logger:     logger.Named("evaluator"),
		benchCache: make(map[string][]BenchmarkResult),
	}
}

// EvaluateAll surveys every registered strategy type and every discovered
// model. Failures never abort the survey: a pair that cannot be probed is
// reported unavailable. Results are sorted by expected accuracy, best first.
func (e *Evaluator) EvaluateAll(ctx context.Context) []Evaluation {
	var evals []Evaluation
	for _, typ := range e.factory.RegisteredTypes() {
		models, err := e.factory.DiscoverModels(ctx, typ)
		if err != nil {
			e.logger.Warn("model discovery failed",
				zap.String("strategy", string(typ)), zap.Error(err))
			continue
		}
		for _, model := range models {
			meta, err := e.factory.MetadataFor(typ, model)
			if err != nil {
				e.logger.Warn("metadata lookup failed",
					zap.String("strategy", string(typ)),
					zap.String("model", model), zap.Error(err))
				continue
			}
			evals = append(evals, Evaluation{
				Strategy:         typ,
				Model:            model,
				ExpectedAccuracy: meta.Performance.Accuracy,
				ExpectedLatency:  latencyFor(meta.Performance.Speed),
				MemoryMB:         memoryFor(meta.Performance.MemoryUsage),
				NeedsNetwork:     meta.Requirements.NeedsNetwork,
				Available:        e.probe(ctx, typ, model),
			})
		}
	}
	sort.SliceStable(evals, func(i, j int) bool {
		if evals[i].ExpectedAccuracy != evals[j].ExpectedAccuracy {
			return evals[i].ExpectedAccuracy > evals[j].ExpectedAccuracy
		}
		return evals[i].ExpectedLatency < evals[j].ExpectedLatency
	})
	return evals
}

// probe verifies a pair end to end by constructing it. Construction includes
// the factory's availability check, so any failure means unavailable.
func (e *Evaluator) probe(ctx context.Context, typ strategy.Type, model string) bool {
	if _, err := e.factory.NewStrategy(ctx, typ, model, e.topic); err != nil {
		e.logger.Debug("availability probe failed",
			zap.String("strategy", string(typ)),
			zap.String("model", model), zap.Error(err))
		return false
	}
	return true
}

// Recommend picks the best available pair satisfying the requirements. When
// nothing qualifies it falls back to the default zero-shot model rather than
// failing: a recommendation is advice, not a guarantee.
func (e *Evaluator) Recommend(ctx context.Context, req strategy.ModelRequirements) (*strategy.Recommendation, error) {
	candidates := e.filter(e.EvaluateAll(ctx), req)
	if len(candidates) == 0 {
		return e.fallback(req), nil
	}

	if req.PreferSpeed {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].ExpectedLatency < candidates[j].ExpectedLatency
		})
	}

	best := candidates[0]
	rec := &strategy.Recommendation{
		Strategy:         best.Strategy,
		Model:            best.Model,
		ExpectedAccuracy: best.ExpectedAccuracy,
		ExpectedLatency:  best.ExpectedLatency,
		MemoryUsageMB:    best.MemoryMB,
		Rationale:        rationale(best, req),
	}
	for _, alt := range candidates[1:] {
		if len(rec.Alternatives) == 3 {
			break
		}
		rec.Alternatives = append(rec.Alternatives, strategy.Alternative{
			Strategy: alt.Strategy,
			Model:    alt.Model,
			Reason: fmt.Sprintf("expected accuracy %.2f at ~%s, ~%dMB",
				alt.ExpectedAccuracy, alt.ExpectedLatency, alt.MemoryMB),
		})
	}
	return rec, nil
}

// filter keeps available candidates that satisfy every constraint.
func (e *Evaluator) filter(evals []Evaluation, req strategy.ModelRequirements) []Evaluation {
	var out []Evaluation
	for _, ev := range evals {
		if !ev.Available {
			continue
		}
		if req.MaxLatency > 0 && ev.ExpectedLatency > req.MaxLatency {
			continue
		}
		if req.MinAccuracy > 0 && ev.ExpectedAccuracy < req.MinAccuracy {
			continue
		}
		if req.MaxMemoryMB > 0 && ev.MemoryMB > req.MaxMemoryMB {
			continue
		}
		if req.RequiresOffline && ev.NeedsNetwork {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// fallback is the known-good default used when no candidate qualifies.
func (e *Evaluator) fallback(req strategy.ModelRequirements) *strategy.Recommendation {
	meta, err := e.factory.MetadataFor(strategy.TypeZeroShot, strategy.DefaultZeroShotModel)
	if err != nil {
		meta = strategy.Metadata{}
	}
	e.logger.Warn("no candidate satisfied the requirements, falling back",
		zap.Float64("min_accuracy", req.MinAccuracy),
		zap.Duration("max_latency", req.MaxLatency),
		zap.Int("max_memory_mb", req.MaxMemoryMB))
	return &strategy.Recommendation{
		Strategy:         strategy.TypeZeroShot,
		Model:            strategy.DefaultZeroShotModel,
		ExpectedAccuracy: meta.Performance.Accuracy,
		ExpectedLatency:  latencyFor(meta.Performance.Speed),
		MemoryUsageMB:    memoryFor(meta.Performance.MemoryUsage),
		Rationale:        "no local strategy satisfied the requirements; defaulting to the reference zero-shot model",
	}
}

func rationale(ev Evaluation, req strategy.ModelRequirements) string {
	criterion := "highest expected accuracy"
	if req.PreferSpeed {
		criterion = "lowest expected latency"
	}
	return fmt.Sprintf("%s among qualifying candidates: accuracy %.2f at ~%s, ~%dMB",
		criterion, ev.ExpectedAccuracy, ev.ExpectedLatency, ev.MemoryMB)
}

// latencyFor maps a qualitative speed bucket to a representative latency.
func latencyFor(s strategy.Speed) time.Duration {
	switch s {
	case strategy.SpeedFast:
		return 50 * time.Millisecond
	case strategy.SpeedMedium:
		return 200 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// memoryFor maps a qualitative usage bucket to representative megabytes.
func memoryFor(u strategy.ResourceUsage) int {
	switch u {
	case strategy.UsageLow:
		return 500
	case strategy.UsageMedium:
		return 1500
	default:
		return 3000
	}
}
