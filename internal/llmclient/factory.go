// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// NewClient builds a single-model client for the configured provider.
func NewClient(ctx context.Context, provider string, model config.ModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch provider {
	case config.ProviderGemini:
		return NewGoogleClient(model, logger)
	case config.ProviderGenAISDK:
		return NewGenAIClient(ctx, model, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			provider, config.ProviderGemini, config.ProviderGenAISDK)
	}
}

// NewRouterFromConfig wires a fast and a powerful client from the per-tier
// model settings and returns the router over them.
func NewRouterFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*LLMRouter, error) {
	fast, err := NewClient(ctx, cfg.LLM.Provider, cfg.Model(string(schemas.TierFast)), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build fast tier client: %w", err)
	}

	powerful, err := NewClient(ctx, cfg.LLM.Provider, cfg.Model(string(schemas.TierPowerful)), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build powerful tier client: %w", err)
	}

	return NewLLMRouter(logger, fast, powerful, cfg.Agent.RequestsPerMinute)
}
