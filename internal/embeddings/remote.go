package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteConfig holds configuration for the remote provider.
type RemoteConfig struct {
	// BaseURL is the base URL of a text-embeddings-inference server.
	BaseURL string

	// Model is the embedding model served by the endpoint, used for
	// dimension detection and logging.
	Model string
}

// Validate validates the configuration.
func (c RemoteConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// RemoteProvider generates embeddings via a text-embeddings-inference server.
type RemoteProvider struct {
	config    RemoteConfig
	client    *http.Client
	dimension int
	metrics   *Metrics
}

// NewRemoteProvider creates a remote embedding provider.
func NewRemoteProvider(cfg RemoteConfig) (*RemoteProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &RemoteProvider{
		config:    cfg,
		client:    &http.Client{Timeout: 30 * time.Second},
		dimension: detectDimensionFromModel(cfg.Model),
		metrics:   NewMetrics(),
	}, nil
}

// embedRequest is the request body for the /embed endpoint.
type embedRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

// Embed generates an embedding for a single text.
func (p *RemoteProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed", time.Since(start), genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	body, err := json.Marshal(embedRequest{Inputs: []string{text}, Truncate: true})
	if err != nil {
		genErr = fmt.Errorf("encoding request: %w", err)
		return nil, genErr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		genErr = fmt.Errorf("creating request: %w", err)
		return nil, genErr
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, genErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		genErr = fmt.Errorf("%w: server returned status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
		return nil, genErr
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		genErr = fmt.Errorf("decoding response: %w", err)
		return nil, genErr
	}
	if len(embeddings) == 0 {
		genErr = fmt.Errorf("%w: server returned no embeddings", ErrEmbeddingFailed)
		return nil, genErr
	}
	return embeddings[0], nil
}

// Dimension returns the embedding dimension based on the configured model.
func (p *RemoteProvider) Dimension() int {
	return p.dimension
}

// ModelName returns the configured model name.
func (p *RemoteProvider) ModelName() string {
	return p.config.Model
}

// Close is a no-op since the provider uses HTTP.
func (p *RemoteProvider) Close() error {
	return nil
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if the model is unknown.
func detectDimensionFromModel(model string) int {
	if m, ok := modelMapping[model]; ok {
		return modelDimensions[m]
	}
	switch {
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	default:
		return 384
	}
}
