package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ClientConfig configures the HTTP collaborator client.
type ClientConfig struct {
	// BaseURL of the agent runtime, e.g. "http://runtime:9000".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey is sent as a bearer token when set.
	APIKey string `yaml:"api_key" json:"api_key"`
	// RequestTimeout bounds a single HTTP exchange.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// HTTPClient talks to the external agent runtime over HTTP. POST
// /v1/generate answers a Request with a Result; POST /v1/complete answers
// a routing prompt with raw text. The engine treats both bodies as
// opaque.
type HTTPClient struct {
	config ClientConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates the client.
func NewHTTPClient(config ClientConfig, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		config: config,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "llm_client")),
	}
}

// Generate implements Generator.
func (c *HTTPClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	var result Result
	if err := c.post(ctx, "/v1/generate", req, &result); err != nil {
		return nil, ClassifyError(err)
	}
	return &result, nil
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Complete implements Completer.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	var resp completionResponse
	if err := c.post(ctx, "/v1/complete", completionRequest{Prompt: prompt}, &resp); err != nil {
		return "", ClassifyError(err)
	}
	return resp.Text, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upstream %s returned %d: %s", path, resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
