package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/docingest/internal/common"
	"github.com/sethvargo/go-retry"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "text-embedding-3-small"
	defaultTimeout = 30 * time.Second
)

// OpenAIClient calls an OpenAI-compatible /embeddings endpoint. Ollama's
// {"embedding": [...]} response shape is accepted as well.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	backoff func() retry.Backoff
}

// NewOpenAIClient reads the API key from cfg.APIKeyEnv. An empty APIKeyEnv
// means the endpoint needs no key (local Ollama).
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &OpenAIClient{
		baseURL: baseURL,
		apiKey:  key,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		backoff: func() retry.Backoff {
			b := retry.NewExponential(200 * time.Millisecond)
			b = retry.WithCappedDuration(5*time.Second, b)
			return retry.WithMaxRetries(4, b)
		},
	}, nil
}

func (c *OpenAIClient) Available() bool { return true }
func (c *OpenAIClient) Dimension() int  { return Dimension }

type embeddingRequest struct {
	Input      string `json:"input"`
	Prompt     string `json:"prompt,omitempty"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Embedding []float32 `json:"embedding"`
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) Result {
	body, err := json.Marshal(embeddingRequest{Input: text, Prompt: text, Model: c.model, Dimensions: Dimension})
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %w", common.ErrEmbeddingUnavailable, err)}
	}

	var vec []float32
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		v, err := c.call(ctx, body)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %w", common.ErrEmbeddingUnavailable, err)}
	}
	if len(vec) != Dimension {
		return Result{Err: fmt.Errorf("%w: model returned %d dimensions, want %d",
			common.ErrEmbeddingUnavailable, len(vec), Dimension)}
	}
	return Result{Vector: vec}
}

// call performs one request. Transport errors, 429 and 5xx are retryable.
func (c *OpenAIClient) call(ctx context.Context, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, retry.RetryableError(fmt.Errorf("embeddings request failed: %s", resp.Status))
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embeddings request failed: %s", resp.Status)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(out.Data) > 0 && len(out.Data[0].Embedding) > 0 {
		return out.Data[0].Embedding, nil
	}
	if len(out.Embedding) > 0 {
		return out.Embedding, nil
	}
	return nil, errors.New("no embedding returned")
}
