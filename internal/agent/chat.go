// internal/agent/chat.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/llmclient"
)

// Chat sends one message to the chat role and returns the reply. It does not
// touch the goal state machine; streamed chunks still reach the notifier.
func (e *Engine) Chat(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("%w: message must not be empty", ErrInvalidParameters)
	}
	provider, cc, err := e.deps.Providers.CallConfigForRole(llmclient.RoleChat)
	if err != nil {
		return "", fmt.Errorf("no chat model available: %w", err)
	}

	msgs := []llmclient.Message{
		llmclient.SystemMessage(chatSystemPrompt),
		llmclient.UserMessage(message),
	}
	resp, err := provider.Chat(ctx, msgs, nil, cc, e.sink())
	if err != nil {
		return "", fmt.Errorf("chat call failed: %w", err)
	}
	e.logger.Debug("Chat reply received.", zap.String("provider", provider.Name()), zap.Int("tokens", resp.Usage.TotalTokens))
	return resp.Content, nil
}
