// File: internal/llmclient/gemini_client.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// GeminiClient implements schemas.LLMClient against the Gemini REST API.
// The same client serves text-only calls and multimodal (screenshot) calls;
// image attachments become inline_data parts.
type GeminiClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	model      config.LLMModelConfig
}

var _ schemas.LLMClient = (*GeminiClient)(nil)

// -- Gemini API request/response structures (internal to this file) --

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	TopP             float64 `json:"topP,omitempty"`
	TopK             int     `json:"topK,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig,omitempty"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiClient initializes a client for one model. The endpoint, when not
// overridden (tests override it), is derived from the model name.
func NewGeminiClient(llmCfg config.LLMConfig, model config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if llmCfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set FORMPILOT_LLM_API_KEY)")
	}
	if model.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent", llmCfg.Endpoint, model.ModelName)

	rpm := llmCfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	return &GeminiClient{
		apiKey:     llmCfg.APIKey,
		endpoint:   endpoint,
		model:      model,
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		httpClient: &http.Client{Timeout: model.Timeout},
		logger:     logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends the request to the Gemini API and returns the generated
// content, retrying transient failures with exponential backoff.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	payload := c.buildRequestPayload(req)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var responseContent string

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload geminiResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		if len(responsePayload.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}

		candidate := responsePayload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
		}

		c.logger.Info("LLM generation complete",
			zap.String("model", c.model.ModelName),
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", responsePayload.UsageMetadata.PromptTokenCount),
			zap.Int("completion_tokens", responsePayload.UsageMetadata.CandidatesTokenCount),
			zap.Int("total_tokens", responsePayload.UsageMetadata.TotalTokenCount),
		)

		responseContent = candidate.Content.Parts[0].Text
		return nil
	}

	if err = backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}

	return responseContent, nil
}

// Close satisfies schemas.LLMClient. The HTTP client holds no resources
// needing explicit teardown.
func (c *GeminiClient) Close() error { return nil }

// SetEndpoint overrides the derived endpoint. Tests point it at a local
// httptest server.
func (c *GeminiClient) SetEndpoint(endpoint string) { c.endpoint = endpoint }

func (c *GeminiClient) buildRequestPayload(req schemas.GenerationRequest) geminiRequestPayload {
	genConfig := geminiGenerationConfig{
		Temperature:     req.Options.Temperature,
		TopP:            c.model.TopP,
		TopK:            c.model.TopK,
		MaxOutputTokens: c.model.MaxOutputTokens,
	}
	if req.Options.TopP > 0 {
		genConfig.TopP = req.Options.TopP
	}
	if req.Options.TopK > 0 {
		genConfig.TopK = req.Options.TopK
	}
	if req.Options.ForceJSONFormat {
		genConfig.ResponseMimeType = "application/json"
	}

	// Image parts come first so the model reads the screenshot before the
	// instructions that reference it.
	parts := make([]geminiPart, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	parts = append(parts, geminiPart{Text: req.UserPrompt})

	payload := geminiRequestPayload{
		Contents: []geminiContent{
			{Role: "user", Parts: parts},
		},
		GenerationConfig: genConfig,
	}
	if req.SystemPrompt != "" {
		payload.SystemInstruction = &geminiSystemInstruction{
			Parts: []geminiPart{{Text: req.SystemPrompt}},
		}
	}
	return payload
}

func (c *GeminiClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Gemini API returned error status", zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("gemini API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // Transient, retry.
	default:
		return backoff.Permanent(err)
	}
}
