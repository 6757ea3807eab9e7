package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder maps known strings to fixed vectors.
type fakeEmbedder struct {
	dim     int
	vectors map[string][]float32
	err     error

	embedCalls int
	closeCalls int
}

func (f *fakeEmbedder) Close() error {
	f.closeCalls++
	return nil
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}

func (f *fakeEmbedder) Dimension() int    { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake-model" }

func newTestEmbedding(t *testing.T, embedder Embedder) *EmbeddingStrategy {
	t.Helper()
	e, err := NewEmbedding(embedder, embeddingMetadata(DefaultEmbeddingModel), TopicConfig{Topic: "studying", Threshold: 0.7}, nil)
	require.NoError(t, err)
	return e
}

func TestEmbeddingClassify(t *testing.T) {
	embedder := &fakeEmbedder{
		dim: 3,
		vectors: map[string][]float32{
			"studying":      {1, 0, 0},
			"calculus exam": {0.9, 0.1, 0},
			"cat videos":    {0, 1, 0},
		},
	}
	e := newTestEmbedding(t, embedder)

	res, err := e.ClassifyWithConfidence(context.Background(), "calculus exam")
	require.NoError(t, err)
	assert.Equal(t, "studying", res.Classification)
	assert.Greater(t, res.Confidence, 0.9)

	res, err = e.ClassifyWithConfidence(context.Background(), "cat videos")
	require.NoError(t, err)
	assert.Equal(t, Idle, res.Classification)
	assert.Equal(t, 0.0, res.Confidence, "orthogonal vectors score zero")
}

func TestEmbeddingTopicVectorCached(t *testing.T) {
	embedder := &fakeEmbedder{dim: 3}
	e := newTestEmbedding(t, embedder)

	_, err := e.ClassifyWithConfidence(context.Background(), "first")
	require.NoError(t, err)
	_, err = e.ClassifyWithConfidence(context.Background(), "second")
	require.NoError(t, err)

	// Topic embedded once, each text embedded once.
	assert.Equal(t, 3, embedder.embedCalls)
}

func TestEmbeddingTopicChangeInvalidatesCache(t *testing.T) {
	embedder := &fakeEmbedder{dim: 3}
	e := newTestEmbedding(t, embedder)

	_, err := e.ClassifyWithConfidence(context.Background(), "text")
	require.NoError(t, err)
	calls := embedder.embedCalls

	require.NoError(t, e.SetTopicConfig(TopicConfig{Topic: "coding", Threshold: 0.7}))
	_, err = e.ClassifyWithConfidence(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, calls+2, embedder.embedCalls, "new topic and text both re-embedded")

	// Same topic, new threshold: cache survives.
	require.NoError(t, e.SetTopicConfig(TopicConfig{Topic: "coding", Threshold: 0.5}))
	_, err = e.ClassifyWithConfidence(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, calls+3, embedder.embedCalls)
}

func TestEmbeddingEmbedderFailure(t *testing.T) {
	embedder := &fakeEmbedder{dim: 3, err: errors.New("onnx session lost")}
	e := newTestEmbedding(t, embedder)

	_, err := e.ClassifyWithConfidence(context.Background(), "text")
	assert.ErrorIs(t, err, ErrInference)
	assert.False(t, e.Available(context.Background()))
}

func TestEmbeddingRejectsEmptyText(t *testing.T) {
	e := newTestEmbedding(t, &fakeEmbedder{dim: 3})
	_, err := e.Classify(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEmbeddingLabels(t *testing.T) {
	e := newTestEmbedding(t, &fakeEmbedder{dim: 3})
	assert.Equal(t, []string{"studying", Idle}, e.Labels())
}

func TestEmbeddingNegativeSimilarityClamped(t *testing.T) {
	embedder := &fakeEmbedder{
		dim: 3,
		vectors: map[string][]float32{
			"studying": {1, 0, 0},
			"opposite": {-1, 0, 0},
		},
	}
	e := newTestEmbedding(t, embedder)

	res, err := e.ClassifyWithConfidence(context.Background(), "opposite")
	require.NoError(t, err)
	assert.Equal(t, Idle, res.Classification)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float32
		want    float64
		wantErr error
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1.0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0.0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1.0},
		{name: "zero magnitude", a: []float32{0, 0}, b: []float32{1, 1}, want: 0.0},
		{name: "dimension mismatch", a: []float32{1, 2}, b: []float32{1, 2, 3}, wantErr: ErrDimensionMismatch},
		{name: "empty", a: nil, b: []float32{1}, wantErr: ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cosineSimilarity(tt.a, tt.b)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
