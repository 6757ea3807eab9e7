package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeModelArtifacts lays out a local model directory with the given weight
// variants present.
func writeModelArtifacts(t *testing.T, modelsDir, model string, variants ...string) {
	t.Helper()
	dir := filepath.Join(modelsDir, filepath.FromSlash(model))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	files := append([]string{configArtifact, tokenizerArtifact}, variants...)
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
}

func TestDiscoverZeroShotModels(t *testing.T) {
	dir := t.TempDir()
	writeModelArtifacts(t, dir, "facebook/bart-large-mnli", fullWeights)
	writeModelArtifacts(t, dir, "cross-encoder/nli-MiniLM2-L6-H768", quantizedWeights)

	got := discoverZeroShotModels(dir, true)
	assert.Equal(t, []string{"cross-encoder/nli-MiniLM2-L6-H768", "facebook/bart-large-mnli"}, got)
}

func TestDiscoverZeroShotModelsIncompleteArtifacts(t *testing.T) {
	dir := t.TempDir()
	// No weight file at all.
	modelDir := filepath.Join(dir, "facebook", "bart-large-mnli")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, configArtifact), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, tokenizerArtifact), []byte("{}"), 0o644))

	assert.Empty(t, discoverZeroShotModels(dir, true))
}

func TestDiscoverZeroShotModelsMissingDir(t *testing.T) {
	assert.Empty(t, discoverZeroShotModels(filepath.Join(t.TempDir(), "absent"), false))
}

func TestResolveWeightsPath(t *testing.T) {
	dir := t.TempDir()
	writeModelArtifacts(t, dir, "m", fullWeights, quantizedWeights)
	modelDir := filepath.Join(dir, "m")

	path, ok := resolveWeightsPath(modelDir, true)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(modelDir, quantizedWeights), path)

	path, ok = resolveWeightsPath(modelDir, false)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(modelDir, fullWeights), path)

	// Only one variant present: the policy falls back to it either way.
	require.NoError(t, os.Remove(filepath.Join(modelDir, fullWeights)))
	path, ok = resolveWeightsPath(modelDir, false)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(modelDir, quantizedWeights), path)
}

func TestDiscoverEmbeddingModels(t *testing.T) {
	got := discoverEmbeddingModels()
	assert.Contains(t, got, DefaultEmbeddingModel)
	assert.Contains(t, got, "BAAI/bge-base-en-v1.5")
	assert.Contains(t, got, "sentence-transformers/all-MiniLM-L6-v2")
}

func TestMetadataCatalogs(t *testing.T) {
	meta := zeroShotMetadata(DefaultZeroShotModel)
	assert.Equal(t, TypeZeroShot, meta.Type)
	assert.InDelta(t, 0.88, meta.Performance.Accuracy, 1e-9)
	assert.Equal(t, SpeedSlow, meta.Performance.Speed)

	// Unknown models get conservative defaults, not zero values.
	meta = zeroShotMetadata("someone/custom-mnli")
	assert.Equal(t, "someone/custom-mnli", meta.Name)
	assert.Greater(t, meta.Performance.Accuracy, 0.0)
	assert.NotEmpty(t, meta.Performance.Speed)

	hybrid := hybridMetadata(DefaultZeroShotModel)
	assert.Equal(t, TypeHybrid, hybrid.Type)
	assert.Greater(t, hybrid.Performance.Accuracy, zeroShotMetadata(DefaultZeroShotModel).Performance.Accuracy)
}
