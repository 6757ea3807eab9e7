package strategy

import (
	"os"
	"path/filepath"
	"sort"
)

// DefaultZeroShotModel is the known-good NLI model used for fallback
// recommendations and default configuration.
const DefaultZeroShotModel = "facebook/bart-large-mnli"

// DefaultEmbeddingModel is the default local embedding model.
const DefaultEmbeddingModel = "BAAI/bge-small-en-v1.5"

// Zero-shot model artifact names. The quantized variant trades accuracy for
// startup time and memory.
const (
	configArtifact    = "config.json"
	tokenizerArtifact = "tokenizer.json"
	fullWeights       = "model.onnx"
	quantizedWeights  = "model_quantized.onnx"
)

// zeroShotCatalog describes the NLI models the engine knows how to run.
var zeroShotCatalog = map[string]Metadata{
	"facebook/bart-large-mnli": {
		Name: "facebook/bart-large-mnli",
		Type: TypeZeroShot,
		Performance: Performance{
			Accuracy:    0.88,
			Speed:       SpeedSlow,
			MemoryUsage: UsageHigh,
			CPUUsage:    UsageHigh,
		},
		Requirements: Requirements{
			Models:             []string{"facebook/bart-large-mnli"},
			MinRAMMB:           3000,
			SupportedLanguages: []string{"en"},
		},
	},
	"typeform/distilbert-base-uncased-mnli": {
		Name: "typeform/distilbert-base-uncased-mnli",
		Type: TypeZeroShot,
		Performance: Performance{
			Accuracy:    0.82,
			Speed:       SpeedMedium,
			MemoryUsage: UsageMedium,
			CPUUsage:    UsageMedium,
		},
		Requirements: Requirements{
			Models:             []string{"typeform/distilbert-base-uncased-mnli"},
			MinRAMMB:           1500,
			SupportedLanguages: []string{"en"},
		},
	},
	"cross-encoder/nli-MiniLM2-L6-H768": {
		Name: "cross-encoder/nli-MiniLM2-L6-H768",
		Type: TypeZeroShot,
		Performance: Performance{
			Accuracy:    0.79,
			Speed:       SpeedFast,
			MemoryUsage: UsageLow,
			CPUUsage:    UsageLow,
		},
		Requirements: Requirements{
			Models:             []string{"cross-encoder/nli-MiniLM2-L6-H768"},
			MinRAMMB:           500,
			SupportedLanguages: []string{"en"},
		},
	},
}

// embeddingCatalog describes the local embedding models.
var embeddingCatalog = map[string]Metadata{
	"BAAI/bge-small-en-v1.5": {
		Name: "BAAI/bge-small-en-v1.5",
		Type: TypeEmbedding,
		Performance: Performance{
			Accuracy:    0.76,
			Speed:       SpeedFast,
			MemoryUsage: UsageLow,
			CPUUsage:    UsageLow,
		},
		Requirements: Requirements{
			Models:             []string{"BAAI/bge-small-en-v1.5"},
			MinRAMMB:           500,
			SupportedLanguages: []string{"en"},
			NeedsNetwork:       true,
		},
	},
	"BAAI/bge-base-en-v1.5": {
		Name: "BAAI/bge-base-en-v1.5",
		Type: TypeEmbedding,
		Performance: Performance{
			Accuracy:    0.79,
			Speed:       SpeedMedium,
			MemoryUsage: UsageMedium,
			CPUUsage:    UsageMedium,
		},
		Requirements: Requirements{
			Models:             []string{"BAAI/bge-base-en-v1.5"},
			MinRAMMB:           1500,
			SupportedLanguages: []string{"en"},
			NeedsNetwork:       true,
		},
	},
	"sentence-transformers/all-MiniLM-L6-v2": {
		Name: "sentence-transformers/all-MiniLM-L6-v2",
		Type: TypeEmbedding,
		Performance: Performance{
			Accuracy:    0.74,
			Speed:       SpeedFast,
			MemoryUsage: UsageLow,
			CPUUsage:    UsageLow,
		},
		Requirements: Requirements{
			Models:             []string{"sentence-transformers/all-MiniLM-L6-v2"},
			MinRAMMB:           500,
			SupportedLanguages: []string{"en"},
			NeedsNetwork:       true,
		},
	},
}

// zeroShotMetadata returns catalog metadata, or conservative defaults for
// models configured outside the catalog.
func zeroShotMetadata(model string) Metadata {
	if meta, ok := zeroShotCatalog[model]; ok {
		return meta
	}
	return Metadata{
		Name: model,
		Type: TypeZeroShot,
		Performance: Performance{
			Accuracy:    0.75,
			Speed:       SpeedMedium,
			MemoryUsage: UsageMedium,
			CPUUsage:    UsageMedium,
		},
		Requirements: Requirements{
			Models:             []string{model},
			MinRAMMB:           1500,
			SupportedLanguages: []string{"en"},
		},
	}
}

// embeddingMetadata returns catalog metadata, or conservative defaults.
func embeddingMetadata(model string) Metadata {
	if meta, ok := embeddingCatalog[model]; ok {
		return meta
	}
	return Metadata{
		Name: model,
		Type: TypeEmbedding,
		Performance: Performance{
			Accuracy:    0.72,
			Speed:       SpeedFast,
			MemoryUsage: UsageLow,
			CPUUsage:    UsageLow,
		},
		Requirements: Requirements{
			Models:             []string{model},
			MinRAMMB:           500,
			SupportedLanguages: []string{"en"},
			NeedsNetwork:       true,
		},
	}
}

// hybridMetadata combines the zero-shot model's profile with the embedding
// overhead. The ensemble's expected accuracy exceeds either signal alone.
func hybridMetadata(model string) Metadata {
	zs := zeroShotMetadata(model)
	meta := Metadata{
		Name:         zs.Name,
		Type:         TypeHybrid,
		Performance:  zs.Performance,
		Requirements: zs.Requirements,
	}
	meta.Performance.Accuracy = clamp01(zs.Performance.Accuracy + 0.03)
	if meta.Performance.MemoryUsage == UsageLow {
		meta.Performance.MemoryUsage = UsageMedium
	}
	// The embedding signal pulls its model over the network on first use.
	meta.Requirements.NeedsNetwork = true
	return meta
}

// resolveWeightsPath applies the quantized-vs-full policy: the preferred
// variant wins, the other is the fallback.
func resolveWeightsPath(modelDir string, preferQuantized bool) (string, bool) {
	variants := []string{fullWeights, quantizedWeights}
	if preferQuantized {
		variants = []string{quantizedWeights, fullWeights}
	}
	for _, v := range variants {
		path := filepath.Join(modelDir, v)
		if fileExists(path) {
			return path, true
		}
	}
	return "", false
}

// zeroShotModelAvailable checks that the required artifact files exist
// under the resolved local path.
func zeroShotModelAvailable(modelsDir, model string, preferQuantized bool) bool {
	modelDir := filepath.Join(modelsDir, filepath.FromSlash(model))
	if !fileExists(filepath.Join(modelDir, configArtifact)) {
		return false
	}
	if !fileExists(filepath.Join(modelDir, tokenizerArtifact)) {
		return false
	}
	_, ok := resolveWeightsPath(modelDir, preferQuantized)
	return ok
}

// discoverZeroShotModels lists catalog models whose artifacts are present.
func discoverZeroShotModels(modelsDir string, preferQuantized bool) []string {
	var models []string
	for model := range zeroShotCatalog {
		if zeroShotModelAvailable(modelsDir, model, preferQuantized) {
			models = append(models, model)
		}
	}
	sort.Strings(models)
	return models
}

// discoverEmbeddingModels lists the embedding models the provider supports.
// FastEmbed downloads model files on demand, so catalog membership is the
// availability criterion.
func discoverEmbeddingModels() []string {
	models := make([]string, 0, len(embeddingCatalog))
	for model := range embeddingCatalog {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
