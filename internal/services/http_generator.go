package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const DefaultGeneratorTimeout = 120 * time.Second

// HTTPGenerator calls a generation backend over JSON/HTTP.
type HTTPGenerator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Generator = (*HTTPGenerator)(nil)

func NewHTTPGenerator(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPGenerator {
	if timeout <= 0 {
		timeout = DefaultGeneratorTimeout
	}
	return &HTTPGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (g *HTTPGenerator) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResponse, error) {
	var resp EvaluateResponse
	if err := g.post(ctx, "/evaluate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *HTTPGenerator) Advance(ctx context.Context, req AdvanceRequest) (*AdvanceResponse, error) {
	var resp AdvanceResponse
	if err := g.post(ctx, "/advance", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *HTTPGenerator) Hint(ctx context.Context, req HintRequest) (*HintResponse, error) {
	var resp HintResponse
	if err := g.post(ctx, "/hint", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *HTTPGenerator) post(ctx context.Context, path string, in, out any) error {
	reqBody, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	g.logger.Debug("Generator call finished", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("generator request %s failed with status %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
