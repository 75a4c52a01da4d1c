// File: internal/llmclient/gemini_client_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:          "gemini",
		APIKey:            "test-key",
		Endpoint:          "https://generativelanguage.googleapis.com/v1beta/models",
		RequestsPerMinute: 6000, // effectively unlimited for tests
		Fast:              config.LLMModelConfig{ModelName: "fast-model", Timeout: 5 * time.Second},
		Powerful:          config.LLMModelConfig{ModelName: "powerful-model", Timeout: 5 * time.Second},
	}
}

func okResponse(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":` + jsonString(text) + `}]},"finishReason":"STOP"}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newClientAgainst(t *testing.T, server *httptest.Server) *GeminiClient {
	t.Helper()
	cfg := testLLMConfig()
	client, err := NewGeminiClient(cfg, cfg.Fast, zap.NewNop())
	require.NoError(t, err)
	client.SetEndpoint(server.URL)
	return client
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("returns candidate text and sends auth header", func(t *testing.T) {
		var gotKey string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("x-goog-api-key")
			w.Write([]byte(okResponse(`{"ok": true}`)))
		}))
		defer server.Close()

		client := newClientAgainst(t, server)
		out, err := client.Generate(ctx, schemas.GenerationRequest{UserPrompt: "hello"})
		require.NoError(t, err)
		assert.Equal(t, `{"ok": true}`, out)
		assert.Equal(t, "test-key", gotKey)
	})

	t.Run("retries 429 then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(okResponse("recovered")))
		}))
		defer server.Close()

		client := newClientAgainst(t, server)
		out, err := client.Generate(ctx, schemas.GenerationRequest{UserPrompt: "hello"})
		require.NoError(t, err)
		assert.Equal(t, "recovered", out)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("4xx other than 429 is permanent", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, `{"error": "bad request"}`, http.StatusBadRequest)
		}))
		defer server.Close()

		client := newClientAgainst(t, server)
		_, err := client.Generate(ctx, schemas.GenerationRequest{UserPrompt: "hello"})
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load(), "permanent errors must not retry")
	})

	t.Run("request carries images, system prompt and JSON mime", func(t *testing.T) {
		var payload geminiRequestPayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			w.Write([]byte(okResponse("[]")))
		}))
		defer server.Close()

		client := newClientAgainst(t, server)
		_, err := client.Generate(ctx, schemas.GenerationRequest{
			SystemPrompt: "You analyze screenshots.",
			UserPrompt:   "Identify the fields.",
			Images:       [][]byte{{0x89, 0x50, 0x4e, 0x47}},
			Options:      schemas.GenerationOptions{ForceJSONFormat: true},
		})
		require.NoError(t, err)

		require.NotNil(t, payload.SystemInstruction)
		require.Len(t, payload.Contents, 1)
		parts := payload.Contents[0].Parts
		require.Len(t, parts, 2)
		// Image part precedes the instruction text.
		require.NotNil(t, parts[0].InlineData)
		assert.Equal(t, "image/png", parts[0].InlineData.MimeType)
		assert.Equal(t, "Identify the fields.", parts[1].Text)
		assert.Equal(t, "application/json", payload.GenerationConfig.ResponseMimeType)
	})

	t.Run("blocked content is permanent", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`))
		}))
		defer server.Close()

		client := newClientAgainst(t, server)
		_, err := client.Generate(ctx, schemas.GenerationRequest{UserPrompt: "hello"})
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestNewGeminiClient(t *testing.T) {
	t.Run("requires an API key", func(t *testing.T) {
		cfg := testLLMConfig()
		cfg.APIKey = ""
		_, err := NewGeminiClient(cfg, cfg.Fast, zap.NewNop())
		require.Error(t, err)
	})
}

func TestRouter(t *testing.T) {
	cfg := testLLMConfig()
	fast, err := NewGeminiClient(cfg, cfg.Fast, zap.NewNop())
	require.NoError(t, err)
	powerful, err := NewGeminiClient(cfg, cfg.Powerful, zap.NewNop())
	require.NoError(t, err)

	router, err := NewRouter(fast, powerful, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, router.Close())
}
