package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPGenerator forwards requests to an out-of-process generator service
// over HTTP. The service receives the serialized workspace document plus
// the definitions and generator references, and answers with generated
// source text.
type HTTPGenerator struct {
	URL    string
	Client *http.Client
}

// NewHTTPGenerator creates a generator client for the given endpoint.
func NewHTTPGenerator(url string) *HTTPGenerator {
	return &HTTPGenerator{URL: url, Client: http.DefaultClient}
}

type generateRequest struct {
	Document    string `json:"document"`
	Definitions string `json:"definitions"`
	Generator   string `json:"generator"`
}

type generateResponse struct {
	Code  string `json:"code"`
	Error string `json:"error,omitempty"`
}

// Generate posts the document and returns the generated code.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(generateRequest{
		Document:    string(req.Document),
		Definitions: req.Definitions,
		Generator:   req.Generator,
	})
	if err != nil {
		return "", fmt.Errorf("encoding generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling generator: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("reading generator response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generator returned %d: %s", resp.StatusCode, data)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decoding generator response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("generator error: %s", out.Error)
	}
	return out.Code, nil
}
