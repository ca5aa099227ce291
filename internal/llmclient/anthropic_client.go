// internal/llmclient/anthropic_client.go
package llmclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// anthropicDefaultMaxTokens is used when the provider entry leaves max_tokens unset;
// the Messages API requires a value.
const anthropicDefaultMaxTokens = 4096

// AnthropicMessages is the subset of the SDK message service used here.
// *sdk.MessageService satisfies it.
type AnthropicMessages interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicClient implements Provider on the Anthropic Messages API. Replies
// are always fetched whole; when streaming is requested the finished reply
// is replayed to the sink as chunks.
type AnthropicClient struct {
	id      string
	msg     AnthropicMessages
	limiter *rate.Limiter
	logger  *zap.Logger
	config  config.ProviderConfig
}

var _ Provider = (*AnthropicClient)(nil)

// NewAnthropicClient creates an SDK-backed client for one provider entry.
func NewAnthropicClient(id string, cfg config.ProviderConfig, apiKey string, logger *zap.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API Key is required (set %s)", config.APIKeyEnvVar(id))
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	ac := sdk.NewClient(opts...)
	return NewAnthropicClientWith(id, cfg, &ac.Messages, logger), nil
}

// NewAnthropicClientWith wires an explicit message service, used by tests.
func NewAnthropicClientWith(id string, cfg config.ProviderConfig, msg AnthropicMessages, logger *zap.Logger) *AnthropicClient {
	c := &AnthropicClient{
		id:     id,
		msg:    msg,
		logger: logger.Named("llm_client.anthropic").With(zap.String("provider", id)),
		config: cfg,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

// Name returns the provider id.
func (c *AnthropicClient) Name() string { return c.id }

// Chat sends one Messages request with retries on transient statuses.
func (c *AnthropicClient) Chat(ctx context.Context, messages []Message, tools []ToolDef, cfg CallConfig, sink ChunkSink) (*Response, error) {
	params := c.buildParams(messages, tools, cfg)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	startTime := time.Now()
	var msg *sdk.Message
	operation := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		m, err := c.msg.New(ctx, params)
		if err != nil {
			return c.classifyError(ctx, err)
		}
		msg = m
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		sink.emit(StreamChunk{Kind: ChunkError, Content: err.Error()})
		return nil, err
	}
	if msg == nil {
		return nil, ErrEmptyResponse
	}

	out := &Response{FinishReason: string(msg.StopReason)}
	var text strings.Builder
	acc := NewToolCallAccumulator()
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			out.Reasoning += block.Thinking
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			acc.Add(acc.Len(), block.ID, block.Name, args)
		}
	}
	out.Content = text.String()
	out.ToolCalls = acc.Calls()
	out.Usage = Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}

	if cfg.Stream {
		if out.Reasoning != "" {
			sink.emit(StreamChunk{Kind: ChunkReasoning, Content: out.Reasoning})
		}
		if out.Content != "" {
			sink.emit(StreamChunk{Kind: ChunkContent, Content: out.Content})
		}
		for _, tc := range out.ToolCalls {
			sink.emit(StreamChunk{Kind: ChunkToolCall, Content: tc.Name})
		}
		sink.emit(StreamChunk{Kind: ChunkDone, Content: out.FinishReason})
	}

	c.logger.Info("LLM generation complete (Anthropic)",
		zap.String("model", string(params.Model)),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("tool_calls", len(out.ToolCalls)),
		zap.Int("total_tokens", out.Usage.TotalTokens))
	return out, nil
}

func (c *AnthropicClient) classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		c.logger.Error("Anthropic API returned error status", zap.Int("status", apiErr.StatusCode), zap.Error(err))
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError, 529:
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
	return err
}

func (c *AnthropicClient) buildParams(messages []Message, tools []ToolDef, cfg CallConfig) sdk.MessageNewParams {
	model := cfg.Model
	if model == "" {
		model = c.config.Model
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: sdk.Float(cfg.Temperature),
	}

	for _, m := range messages {
		switch m.Role {
		case MessageSystem:
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		case MessageAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Args(), tc.Name))
			}
			if len(blocks) > 0 {
				params.Messages = append(params.Messages, sdk.NewAssistantMessage(blocks...))
			}
		case MessageTool:
			block := sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)
			params.Messages = appendUserBlocks(params.Messages, block)
		default:
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Images)+1)
			for _, img := range m.Images {
				blocks = append(blocks, sdk.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(img)))
			}
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			params.Messages = appendUserBlocks(params.Messages, blocks...)
		}
	}

	for _, t := range tools {
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: t.Parameters}, t.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Description)
		}
		params.Tools = append(params.Tools, u)
	}
	return params
}

// appendUserBlocks merges consecutive user turns, since the API requires
// strictly alternating roles and tool results travel as user content.
func appendUserBlocks(msgs []sdk.MessageParam, blocks ...sdk.ContentBlockParamUnion) []sdk.MessageParam {
	if len(blocks) == 0 {
		return msgs
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == sdk.MessageParamRoleUser {
		msgs[n-1].Content = append(msgs[n-1].Content, blocks...)
		return msgs
	}
	return append(msgs, sdk.NewUserMessage(blocks...))
}
