// Package llm is an HTTP client for the Ollama API, covering model listing,
// one-shot generation, incremental streaming and text embeddings.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ragline-platform/ragline/internal/config"
)

// Client talks to a single Ollama instance.
type Client struct {
	baseURL    string
	embedModel string

	// generateClient has no timeout: a generation call is open-ended and is
	// bounded only by the caller's context.
	generateClient *http.Client
	// controlClient covers cheap control-plane calls (tags, embeddings, probe).
	controlClient *http.Client
}

func NewClient(cfg config.OllamaConfig) *Client {
	return &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		embedModel:     cfg.EmbedModel,
		generateClient: &http.Client{},
		controlClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

// ListModels returns the names of the models the Ollama instance serves.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating tags request: %w", err)
	}

	resp, err := c.controlClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing ollama models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama tags returned status %d: %s", resp.StatusCode, string(body))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decoding tags response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Generate runs a single blocking completion and returns the full output.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	payload := generateRequest{Model: model, Prompt: prompt, Stream: false}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.generateClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading generate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama generate returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var gen generateResponse
	if err := json.Unmarshal(respBody, &gen); err != nil {
		return "", fmt.Errorf("decoding generate response: %w", err)
	}
	return gen.Response, nil
}

// GenerateStream runs a streaming completion, invoking fn once per incremental
// fragment in arrival order. A non-nil error from fn aborts the stream and is
// returned unchanged.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string, fn func(chunk string) error) error {
	payload := generateRequest{Model: model, Prompt: prompt, Stream: true}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.generateClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama generate call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama generate returned status %d: %s", resp.StatusCode, string(respBody))
	}

	// Ollama streams one JSON object per line.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var gen generateResponse
		if err := json.Unmarshal(line, &gen); err != nil {
			return fmt.Errorf("decoding stream fragment: %w", err)
		}
		if gen.Response != "" {
			if err := fn(gen.Response); err != nil {
				return err
			}
		}
		if gen.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading generate stream: %w", err)
	}
	return nil
}

// Probe checks that a model can actually serve a request by running a
// one-token completion against it.
func (c *Client) Probe(ctx context.Context, model string) error {
	payload := generateRequest{
		Model:   model,
		Prompt:  "Hi",
		Stream:  false,
		Options: map[string]any{"num_predict": 1, "stop": []string{"Hi"}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling probe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating probe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.controlClient.Do(req)
	if err != nil {
		return fmt.Errorf("probing model %q: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("probe of %q returned status %d: %s", model, resp.StatusCode, string(respBody))
	}

	slog.Debug("model probe succeeded", "model", model)
	return nil
}

// Embed returns the embedding vector for the given text using the configured
// embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: c.embedModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.controlClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embeddings returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var emb embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&emb); err != nil {
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}
	if len(emb.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return emb.Embedding, nil
}
