// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// NewFromConfig constructs the tier router for the configured provider.
func NewFromConfig(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case "gemini":
		fast, err := NewGeminiClient(cfg, cfg.Fast, logger)
		if err != nil {
			return nil, fmt.Errorf("building fast-tier client: %w", err)
		}
		powerful, err := NewGeminiClient(cfg, cfg.Powerful, logger)
		if err != nil {
			return nil, fmt.Errorf("building powerful-tier client: %w", err)
		}
		return NewRouter(fast, powerful, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
