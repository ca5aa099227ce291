package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// MockProvider is a testify mock of the Provider interface.
type MockProvider struct {
	mock.Mock
	ID string
}

func (m *MockProvider) Name() string { return m.ID }

func (m *MockProvider) Chat(ctx context.Context, messages []Message, tools []ToolDef, cfg CallConfig, sink ChunkSink) (*Response, error) {
	args := m.Called(ctx, messages, tools, cfg)
	resp, _ := args.Get(0).(*Response)
	return resp, args.Error(1)
}

// setupTestLogger is a helper to create a zap logger for testing with an observer.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

// getValidProviderConfig returns a provider entry pointing at base.
func getValidProviderConfig(base string) config.ProviderConfig {
	return config.ProviderConfig{
		DisplayName: "Test",
		APIBase:     base,
		Model:       "test-model",
		Temperature: floatPtr(0.3),
		Timeout:     5 * time.Second,
	}
}
