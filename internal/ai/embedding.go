package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EmbeddingConfig holds API settings for text embedding (OpenAI-compatible).
// Dimension, when set, is checked against every response: all vectors going
// into one index must share a dimensionality.
type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
}

// EmbeddingClient converts text into fixed-length vectors via an external
// OpenAI-compatible provider. One long-lived client is shared by all
// requests.
type EmbeddingClient struct {
	cfg        EmbeddingConfig
	httpClient *http.Client
}

func NewEmbeddingClient(cfg EmbeddingConfig) *EmbeddingClient {
	return &EmbeddingClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Dimension returns the configured vector dimensionality.
func (c *EmbeddingClient) Dimension() int {
	return c.cfg.Dimension
}

// Embed returns the embedding vector for the given text. Connection-level
// failures surface as ErrEmbeddingUnavailable; provider rejections as
// *EmbeddingError. Transient statuses (429/503/504) are retried with backoff
// before giving up.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &EmbeddingError{Message: "embedding input is empty"}
	}

	reqBody := map[string]interface{}{
		"model": c.cfg.Model,
		"input": text,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	resp, err := doWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		return req, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &EmbeddingError{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &EmbeddingError{Message: fmt.Sprintf("parse embedding json failed: %v", err)}
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, &EmbeddingError{Message: "empty embedding in response"}
	}

	vec := parsed.Data[0].Embedding
	if c.cfg.Dimension > 0 && len(vec) != c.cfg.Dimension {
		return nil, &EmbeddingError{Message: fmt.Sprintf("embedding dimension %d does not match configured %d", len(vec), c.cfg.Dimension)}
	}
	return vec, nil
}
