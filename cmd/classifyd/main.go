// Package main implements the classifyd CLI for classifying OCR'd screen
// text against a configured topic.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/classifyd/internal/bridge"
	"github.com/fyrsmithlabs/classifyd/internal/config"
	"github.com/fyrsmithlabs/classifyd/internal/evaluator"
	"github.com/fyrsmithlabs/classifyd/internal/logging"
	"github.com/fyrsmithlabs/classifyd/internal/strategy"
)

var (
	// configPath is the optional YAML config file
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "classifyd",
	Short: "Adaptive text classification for OCR'd screen captures",
	Long: `classifyd classifies noisy OCR text against a configured topic using
interchangeable strategies: zero-shot NLI via an external model runtime,
local embedding similarity, or a hybrid ensemble of both.

Configuration is read from a YAML file and CLASSIFYD_* environment
variables; every command accepts --config.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
}

// engine bundles the wired components commands work against.
type engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	factory   *strategy.Factory
	evaluator *evaluator.Evaluator
}

// buildEngine loads configuration and wires the factory and evaluator
// together, including the recommender loop that serves "auto" selection.
func buildEngine() (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, err
	}

	factory := strategy.NewFactory(strategy.FactoryOptions{
		ModelsDir:         cfg.Models.Dir,
		PreferQuantized:   cfg.Models.PreferQuantized,
		EmbeddingProvider: cfg.Models.EmbeddingProvider,
		EmbeddingModel:    cfg.Models.EmbeddingModel,
		EmbeddingBaseURL:  cfg.Models.EmbeddingBaseURL,
		EmbeddingCacheDir: cfg.Models.CacheDir,
		BridgeConfig: bridge.Config{
			Command:     cfg.Bridge.Command,
			Args:        cfg.Bridge.Args,
			Model:       cfg.Bridge.Model,
			InitTimeout: cfg.Bridge.InitTimeout,
		},
		Weights: strategy.Weights{
			Keyword:  cfg.Strategy.KeywordWeight,
			Semantic: cfg.Strategy.SemanticWeight,
			Ensemble: cfg.Strategy.EnsembleWeight,
		},
		Logger: logger,
	})

	topic := strategy.TopicConfig{Topic: cfg.Topic, Threshold: cfg.Strategy.Threshold}
	eval := evaluator.New(factory, topic, logger)
	factory.SetRecommender(eval)

	return &engine{
		cfg:       cfg,
		logger:    logger,
		factory:   factory,
		evaluator: eval,
	}, nil
}

// Close releases the factory's cached runtimes and embedders, then flushes
// buffered log entries.
func (e *engine) Close(ctx context.Context) {
	if err := e.factory.Close(ctx); err != nil {
		e.logger.Warn("resource shutdown failed", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func (e *engine) topicConfig() strategy.TopicConfig {
	return strategy.TopicConfig{Topic: e.cfg.Topic, Threshold: e.cfg.Strategy.Threshold}
}
