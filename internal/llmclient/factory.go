// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// NewProvider creates the provider implementation selected by the entry's adapter.
func NewProvider(ctx context.Context, id string, cfg config.ProviderConfig, logger *zap.Logger) (Provider, error) {
	apiKey := cfg.ResolveAPIKey(id)

	switch cfg.Adapter {
	case "", config.AdapterOpenAI:
		return NewOpenAIClient(id, cfg, apiKey, logger)
	case config.AdapterAnthropic:
		return NewAnthropicClient(id, cfg, apiKey, logger)
	case config.AdapterGemini:
		return NewGeminiClient(ctx, id, cfg, apiKey, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM adapter configured for %q: '%s'. Supported: [%s, %s, %s]",
			id, cfg.Adapter, config.AdapterOpenAI, config.AdapterAnthropic, config.AdapterGemini)
	}
}
