package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/efebarandurmaz/bookchunk/internal/llm"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultEmbedModel = "text-embedding-3-small"
)

// Client implements llm.Provider for OpenAI-compatible embedding APIs
// (OpenAI, Upstage Solar, Ollama, vLLM, etc.).
type Client struct {
	name       string
	apiKey     string
	baseURL    string
	embedModel string
	http       *http.Client
}

// New creates an OpenAI-compatible provider. A zero timeout leaves the
// deadline entirely to the request context.
func New(name, apiKey, baseURL, embedModel string, timeout time.Duration) *Client {
	if name == "" {
		name = "openai"
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}
	return &Client{
		name:       name,
		apiKey:     apiKey,
		baseURL:    baseURL,
		embedModel: embedModel,
		http:       &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return c.name }

// Model returns the embedding model sent with every request.
func (c *Client) Model() string { return c.embedModel }

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any = texts
	if len(texts) == 1 {
		// Solar only accepts a bare string for single inputs.
		input = texts[0]
	}
	body := map[string]any{
		"model": c.embedModel,
		"input": input,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s embed: %s: %s", c.name, resp.Status, respBody)
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%s embed: decode: %w", c.name, err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("%s embed: got %d vectors for %d inputs", c.name, len(result.Data), len(texts))
	}

	sort.SliceStable(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })
	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

var _ llm.Provider = (*Client)(nil)
