package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/mailclean/internal/engine"
)

// maxResponseBytes bounds the body read from a classifier service.
const maxResponseBytes = 4 << 20

type httpRequest struct {
	Items []Item `json:"items"`
}

type httpResponse struct {
	Results []Result `json:"results"`
}

// HTTP calls a classification service speaking the batch contract directly:
// POST {"items":[...]} and receive {"results":[...]} in the same order.
type HTTP struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTP creates an HTTP classifier. A nil client uses http.DefaultClient;
// per-call deadlines come from the context.
func NewHTTP(endpoint, apiKey string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{endpoint: endpoint, apiKey: apiKey, client: client}
}

// Classify implements Classifier.
func (h *HTTP) Classify(ctx context.Context, items []Item) ([]engine.External, error) {
	if len(items) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(httpRequest{Items: items})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned %s", resp.Status)
	}

	var out httpResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return alignPositional(out.Results, len(items))
}
