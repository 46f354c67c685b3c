// internal/common/genai/http.go
package genai

import (
	"context"
	"net/http"
	"strings"
	"time"

	httpclient "followup-orchestrator/internal/common/http"
)

// HTTPGenerator calls the in-house GenAI gateway (POST /api/ai/generate).
type HTTPGenerator struct {
	baseURL     string
	apiKey      string
	maxTokens   int
	temperature float64
	client      *httpclient.Client
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewHTTPGenerator(baseURL, apiKey string, maxTokens int, temperature float64) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		maxTokens:   maxTokens,
		temperature: temperature,
		// Hard ceiling only; the per-attempt bound comes from ctx.
		client: httpclient.NewClient(60 * time.Second),
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	headers := map[string]string{}
	if g.apiKey != "" {
		headers["Authorization"] = "Bearer " + g.apiKey
	}

	var resp generateResponse
	err := g.client.DoJSON(ctx, http.MethodPost, g.baseURL+"/api/ai/generate", headers, generateRequest{
		Prompt:      prompt,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}, &resp)
	if err != nil {
		return "", classify("genai-http", ctx, err)
	}

	text, err := clean(resp.Text)
	if err != nil {
		return "", classify("genai-http", ctx, err)
	}
	return text, nil
}
