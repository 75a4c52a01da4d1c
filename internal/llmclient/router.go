// File: internal/llmclient/router.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// Router dispatches generation requests to the client registered for the
// requested model tier. An unknown or empty tier falls back to the fast
// client.
type Router struct {
	clients map[schemas.ModelTier]schemas.LLMClient
	logger  *zap.Logger
}

var _ schemas.LLMClient = (*Router)(nil)

// NewRouter builds a router over per-tier clients. Both tiers must be
// populated; pointing them at the same client is allowed.
func NewRouter(fast, powerful schemas.LLMClient, logger *zap.Logger) (*Router, error) {
	if fast == nil || powerful == nil {
		return nil, fmt.Errorf("router requires both a fast and a powerful client")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Router{
		clients: map[schemas.ModelTier]schemas.LLMClient{
			schemas.TierFast:     fast,
			schemas.TierPowerful: powerful,
		},
		logger: logger.Named("llm_router"),
	}, nil
}

// Generate routes the request by tier.
func (r *Router) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	client, ok := r.clients[tier]
	if !ok {
		r.logger.Debug("Unknown model tier, falling back to fast", zap.String("tier", string(tier)))
		client = r.clients[schemas.TierFast]
	}
	return client.Generate(ctx, req)
}

// Close closes every distinct underlying client once.
func (r *Router) Close() error {
	closed := map[schemas.LLMClient]bool{}
	var firstErr error
	for _, client := range r.clients {
		if closed[client] {
			continue
		}
		closed[client] = true
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
