package strategy

import (
	"context"
	"time"
)

// ModelRequirements constrains strategy recommendation.
type ModelRequirements struct {
	// MaxLatency caps expected per-call latency. Zero means unconstrained.
	MaxLatency time.Duration
	// MinAccuracy is the minimum expected accuracy in [0,1].
	MinAccuracy float64
	// MaxMemoryMB caps expected memory usage. Zero means unconstrained.
	MaxMemoryMB int
	// PreferSpeed ranks candidates by ascending latency instead of
	// descending accuracy.
	PreferSpeed bool
	// RequiresOffline excludes candidates needing network access.
	RequiresOffline bool
	// SupportedTopics lists the topics the caller intends to classify
	// against. Catalog models are topic-agnostic, so this is recorded
	// for callers but does not filter candidates.
	SupportedTopics []string
}

// Alternative is a ranked runner-up in a recommendation.
type Alternative struct {
	Strategy Type
	Model    string
	Reason   string
}

// Recommendation is the evaluator's strategy+model pick.
type Recommendation struct {
	Strategy         Type
	Model            string
	ExpectedAccuracy float64
	ExpectedLatency  time.Duration
	MemoryUsageMB    int
	Rationale        string
	// Alternatives holds up to 3 ranked runners-up.
	Alternatives []Alternative
}

// Recommender resolves "auto" strategy selection. Implemented by the
// evaluator and injected into the factory to keep the dependency one-way.
type Recommender interface {
	Recommend(ctx context.Context, req ModelRequirements) (*Recommendation, error)
}
