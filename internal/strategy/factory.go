package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/classifyd/internal/bridge"
	"github.com/fyrsmithlabs/classifyd/internal/embeddings"
)

// Registration wires a strategy type into the factory: construction, model
// discovery, and static metadata.
type Registration struct {
	New            func(ctx context.Context, model string, cfg TopicConfig) (Strategy, error)
	DiscoverModels func(ctx context.Context) ([]string, error)
	Metadata       func(model string) Metadata
}

// FactoryOptions configures the factory.
type FactoryOptions struct {
	// ModelsDir is the root directory holding zero-shot model artifacts.
	ModelsDir string
	// PreferQuantized selects the quantized artifact variant when present.
	PreferQuantized bool
	// EmbeddingProvider selects the embedding backend: "fastembed" (local
	// ONNX, the default) or "remote" (a text-embeddings-inference server).
	EmbeddingProvider string
	// EmbeddingModel is the embedding model used by embedding and hybrid
	// strategies. Defaults to DefaultEmbeddingModel.
	EmbeddingModel string
	// EmbeddingBaseURL is the inference server URL, remote provider only.
	EmbeddingBaseURL string
	// EmbeddingCacheDir caches downloaded embedding model files, fastembed
	// only.
	EmbeddingCacheDir string
	// BridgeConfig templates the runtime process; the model is filled in
	// per strategy instance.
	BridgeConfig bridge.Config
	// Weights are the hybrid ensemble weights.
	Weights Weights
	// ExtraKeywords supplement the hybrid's topic-derived keywords.
	ExtraKeywords []string

	// NewBackend overrides runtime creation, used in tests.
	NewBackend func(model string) (NLIBackend, error)
	// NewEmbedder overrides embedder creation, used in tests.
	NewEmbedder func(model string) (Embedder, error)

	Logger *zap.Logger
}

func (o FactoryOptions) withDefaults() FactoryOptions {
	if o.EmbeddingModel == "" {
		o.EmbeddingModel = DefaultEmbeddingModel
	}
	if o.Weights == (Weights{}) {
		o.Weights = Weights{Keyword: 0.3, Semantic: 0.4, Ensemble: 0.3}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Factory maintains the strategy registry and instantiates configured,
// availability-verified strategies. Backends and embedders are cached per
// model so concurrent strategies share one runtime process.
type Factory struct {
	opts   FactoryOptions
	logger *zap.Logger

	mu          sync.Mutex
	registry    map[Type]Registration
	recommender Recommender
	backends    map[string]NLIBackend
	embedders   map[string]Embedder
}

// NewFactory creates a factory with the built-in strategy types registered.
func NewFactory(opts FactoryOptions) *Factory {
	opts = opts.withDefaults()
	f := &Factory{
		opts:      opts,
		logger:    opts.Logger.Named("factory"),
		registry:  make(map[Type]Registration),
		backends:  make(map[string]NLIBackend),
		embedders: make(map[string]Embedder),
	}
	f.registerBuiltins()
	return f
}

// SetRecommender injects the evaluator used to resolve "auto" selection.
func (f *Factory) SetRecommender(r Recommender) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recommender = r
}

// Register adds or replaces a strategy type registration.
func (f *Factory) Register(typ Type, reg Registration) error {
	if typ == "" || typ == TypeAuto {
		return fmt.Errorf("%w: cannot register type %q", ErrInvalidConfig, typ)
	}
	if reg.New == nil || reg.DiscoverModels == nil || reg.Metadata == nil {
		return fmt.Errorf("%w: registration for %q is incomplete", ErrInvalidConfig, typ)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry[typ] = reg
	return nil
}

// RegisteredTypes lists registered strategy types, sorted.
func (f *Factory) RegisteredTypes() []Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]Type, 0, len(f.registry))
	for typ := range f.registry {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// DiscoverModels lists the available models for a strategy type.
func (f *Factory) DiscoverModels(ctx context.Context, typ Type) ([]string, error) {
	reg, err := f.registration(typ)
	if err != nil {
		return nil, err
	}
	return reg.DiscoverModels(ctx)
}

// MetadataFor returns the static metadata for a strategy+model pair.
func (f *Factory) MetadataFor(typ Type, model string) (Metadata, error) {
	reg, err := f.registration(typ)
	if err != nil {
		return Metadata{}, err
	}
	return reg.Metadata(model), nil
}

// NewStrategy resolves, instantiates, configures and verifies a strategy.
// "auto" for either the type or the model defers to the recommender. Any
// failing step returns a typed error; a degraded strategy is never returned.
func (f *Factory) NewStrategy(ctx context.Context, typ Type, model string, cfg TopicConfig) (Strategy, error) {
	if typ == "" {
		return nil, fmt.Errorf("%w: strategy type cannot be empty", ErrInvalidInput)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: model cannot be empty", ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if typ == TypeAuto || model == "auto" {
		resolved, resolvedModel, err := f.resolveAuto(ctx, typ, model)
		if err != nil {
			return nil, err
		}
		typ, model = resolved, resolvedModel
	}

	reg, err := f.registration(typ)
	if err != nil {
		return nil, err
	}

	available, err := reg.DiscoverModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: discovering models for %s: %v", ErrModelNotAvailable, typ, err)
	}
	if !containsString(available, model) {
		return nil, fmt.Errorf("%w: %s model %q not found locally", ErrModelNotAvailable, typ, model)
	}

	s, err := reg.New(ctx, model, cfg)
	if err != nil {
		return nil, err
	}
	if !s.Available(ctx) {
		return nil, fmt.Errorf("%w: %s/%s failed availability verification", ErrModelNotAvailable, typ, model)
	}

	f.logger.Info("strategy created",
		zap.String("type", string(typ)),
		zap.String("model", model),
		zap.String("topic", cfg.Topic))
	return s, nil
}

// resolveAuto asks the recommender for a concrete (type, model) pair.
func (f *Factory) resolveAuto(ctx context.Context, typ Type, model string) (Type, string, error) {
	f.mu.Lock()
	rec := f.recommender
	f.mu.Unlock()

	if rec == nil {
		return "", "", fmt.Errorf("%w: auto selection requested but no recommender configured", ErrInvalidConfig)
	}

	recommendation, err := rec.Recommend(ctx, ModelRequirements{})
	if err != nil {
		return "", "", fmt.Errorf("resolving auto selection: %w", err)
	}

	resolvedType := recommendation.Strategy
	resolvedModel := recommendation.Model
	if typ != TypeAuto {
		// Only the model was auto; keep the caller's type.
		resolvedType = typ
	}
	if model != "auto" {
		resolvedModel = model
	}
	f.logger.Info("auto selection resolved",
		zap.String("type", string(resolvedType)),
		zap.String("model", resolvedModel),
		zap.String("rationale", recommendation.Rationale))
	return resolvedType, resolvedModel, nil
}

func (f *Factory) registration(typ Type) (Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.registry[typ]
	if !ok {
		return Registration{}, fmt.Errorf("%w: %q", ErrStrategyNotFound, typ)
	}
	return reg, nil
}

// backend returns the shared runtime backend for a model, creating it on
// first use. The runtime process is a scarce resource: one per model.
func (f *Factory) backend(model string) (NLIBackend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.backends[model]; ok {
		return b, nil
	}

	var (
		b   NLIBackend
		err error
	)
	if f.opts.NewBackend != nil {
		b, err = f.opts.NewBackend(model)
	} else {
		cfg := f.opts.BridgeConfig
		cfg.Model = model
		b = bridge.New(cfg, f.opts.Logger)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: creating runtime for %q: %v", ErrModelInit, model, err)
	}
	f.backends[model] = b
	return b, nil
}

// embedder returns the shared embedding provider for a model.
func (f *Factory) embedder(model string) (Embedder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.embedders[model]; ok {
		return e, nil
	}

	var (
		e   Embedder
		err error
	)
	if f.opts.NewEmbedder != nil {
		e, err = f.opts.NewEmbedder(model)
	} else {
		e, err = embeddings.NewProvider(embeddings.ProviderConfig{
			Provider: f.opts.EmbeddingProvider,
			Model:    model,
			BaseURL:  f.opts.EmbeddingBaseURL,
			CacheDir: f.opts.EmbeddingCacheDir,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: creating embedder for %q: %v", ErrModelInit, model, err)
	}
	f.embedders[model] = e
	return e, nil
}

// Close releases every cached backend and embedder: runtime processes are
// shut down and embedding providers closed. The factory can be reused
// afterwards; new strategies spawn fresh resources.
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	backends := f.backends
	embedders := f.embedders
	f.backends = make(map[string]NLIBackend)
	f.embedders = make(map[string]Embedder)
	f.mu.Unlock()

	var errs []error
	for model, b := range backends {
		if s, ok := b.(interface{ Shutdown(context.Context) error }); ok {
			if err := s.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutting down runtime for %q: %w", model, err))
			}
		}
	}
	for model, e := range embedders {
		if c, ok := e.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing embedder for %q: %w", model, err))
			}
		}
	}
	return errors.Join(errs...)
}

// registerBuiltins wires the three built-in variants.
func (f *Factory) registerBuiltins() {
	f.registry[TypeZeroShot] = Registration{
		New: func(ctx context.Context, model string, cfg TopicConfig) (Strategy, error) {
			backend, err := f.backend(model)
			if err != nil {
				return nil, err
			}
			return NewZeroShot(backend, zeroShotMetadata(model), cfg, f.opts.Logger)
		},
		DiscoverModels: func(ctx context.Context) ([]string, error) {
			return discoverZeroShotModels(f.opts.ModelsDir, f.opts.PreferQuantized), nil
		},
		Metadata: zeroShotMetadata,
	}

	f.registry[TypeEmbedding] = Registration{
		New: func(ctx context.Context, model string, cfg TopicConfig) (Strategy, error) {
			embedder, err := f.embedder(model)
			if err != nil {
				return nil, err
			}
			return NewEmbedding(embedder, embeddingMetadata(model), cfg, f.opts.Logger)
		},
		DiscoverModels: func(ctx context.Context) ([]string, error) {
			return discoverEmbeddingModels(), nil
		},
		Metadata: embeddingMetadata,
	}

	// Hybrid availability composes zero-shot and embedding: its model names
	// the NLI model, the embedding model comes from factory options.
	f.registry[TypeHybrid] = Registration{
		New: func(ctx context.Context, model string, cfg TopicConfig) (Strategy, error) {
			embedder, err := f.embedder(f.opts.EmbeddingModel)
			if err != nil {
				return nil, err
			}
			emb, err := NewEmbedding(embedder, embeddingMetadata(f.opts.EmbeddingModel), cfg, f.opts.Logger)
			if err != nil {
				return nil, err
			}
			backend, err := f.backend(model)
			if err != nil {
				return nil, err
			}
			zs, err := NewZeroShot(backend, zeroShotMetadata(model), cfg, f.opts.Logger)
			if err != nil {
				return nil, err
			}
			return NewHybrid(emb, zs, f.opts.Weights, f.opts.ExtraKeywords, hybridMetadata(model), cfg, f.opts.Logger)
		},
		DiscoverModels: func(ctx context.Context) ([]string, error) {
			if len(discoverEmbeddingModels()) == 0 {
				return nil, nil
			}
			return discoverZeroShotModels(f.opts.ModelsDir, f.opts.PreferQuantized), nil
		},
		Metadata: hybridMetadata,
	}
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
