// internal/llmclient/openai_client.go
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// OpenAIClient speaks the OpenAI-compatible /chat/completions protocol, which
// covers OpenAI itself and most self-hosted or third-party gateways.
type OpenAIClient struct {
	id         string
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	config     config.ProviderConfig
	// maxElapsed bounds the retry loop.
	maxElapsed time.Duration
}

var _ Provider = (*OpenAIClient)(nil)

// -- Wire structures (internal to this file) --

type oaContentPart struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *oaImageURL `json:"image_url,omitempty"`
}

type oaImageURL struct {
	URL string `json:"url"`
}

type oaFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function oaFunctionCall `json:"function"`
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    interface{}  `json:"content"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
}

type oaFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type oaTool struct {
	Type     string        `json:"type"`
	Function oaFunctionDef `json:"function"`
}

type oaRequest struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	Tools       []oaTool    `json:"tools,omitempty"`
	Temperature float64     `json:"temperature"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Stream      bool        `json:"stream"`
}

type oaResponse struct {
	Choices []struct {
		Message struct {
			Content          string       `json:"content"`
			ReasoningContent string       `json:"reasoning_content"`
			ToolCalls        []oaToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient initializes the client for one configured provider entry.
func NewOpenAIClient(id string, cfg config.ProviderConfig, apiKey string, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIBase == "" {
		return nil, fmt.Errorf("provider %q requires an api_base", id)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	c := &OpenAIClient{
		id:         id,
		apiKey:     apiKey,
		endpoint:   strings.TrimRight(cfg.APIBase, "/") + "/chat/completions",
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("llm_client.openai").With(zap.String("provider", id)),
		config:     cfg,
		maxElapsed: 2 * time.Minute,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c, nil
}

// Name returns the provider id from the configuration.
func (c *OpenAIClient) Name() string { return c.id }

// Chat sends the conversation and returns the reassembled reply, retrying
// transient HTTP failures. Once a streamed body has started, errors are not retried.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, tools []ToolDef, cfg CallConfig, sink ChunkSink) (*Response, error) {
	payload := c.buildRequestPayload(messages, tools, cfg)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	b.MaxInterval = 30 * time.Second

	var result *Response
	operation := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		if cfg.Stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		}

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		if cfg.Stream {
			result, err = c.readStream(resp.Body, sink)
		} else {
			result, err = c.readResponse(resp.Body)
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		c.logger.Info("LLM generation complete",
			zap.String("model", payload.Model),
			zap.Bool("stream", cfg.Stream),
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("tool_calls", len(result.ToolCalls)),
			zap.Int("total_tokens", result.Usage.TotalTokens),
		)
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		sink.emit(StreamChunk{Kind: ChunkError, Content: err.Error()})
		return nil, err
	}
	return result, nil
}

func (c *OpenAIClient) readResponse(r io.Reader) (*Response, error) {
	var payload oaResponse
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response payload: %w", err)
	}
	if len(payload.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrEmptyResponse)
	}
	choice := payload.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		Reasoning:    choice.Message.ReasoningContent,
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     payload.Usage.PromptTokens,
			CompletionTokens: payload.Usage.CompletionTokens,
			TotalTokens:      payload.Usage.TotalTokens,
		},
	}
	acc := NewToolCallAccumulator()
	for i, tc := range choice.Message.ToolCalls {
		acc.Add(i, tc.ID, tc.Function.Name, tc.Function.Arguments)
	}
	out.ToolCalls = acc.Calls()
	return out, nil
}

func (c *OpenAIClient) readStream(r io.Reader, sink ChunkSink) (*Response, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)

	var content, reasoning strings.Builder
	acc := NewToolCallAccumulator()
	out := &Response{}

	for scanner.Scan() {
		chunk, err := ParseSSELine(strings.TrimRight(scanner.Text(), "\r"))
		if err != nil {
			c.logger.Debug("Skipping malformed SSE line", zap.Error(err))
			continue
		}
		if chunk == nil {
			continue
		}
		switch chunk.Kind {
		case ChunkReasoning:
			reasoning.WriteString(chunk.Content)
		case ChunkContent:
			content.WriteString(chunk.Content)
		case ChunkToolCall:
			if err := acc.AddJSON(chunk.Content); err != nil {
				c.logger.Debug("Skipping malformed tool call fragment", zap.Error(err))
			}
		}
		sink.emit(*chunk)
		if chunk.Kind == ChunkDone {
			out.FinishReason = chunk.Content
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}

	out.Content = content.String()
	out.Reasoning = reasoning.String()
	out.ToolCalls = acc.Calls()
	return out, nil
}

func (c *OpenAIClient) buildRequestPayload(messages []Message, tools []ToolDef, cfg CallConfig) oaRequest {
	model := cfg.Model
	if model == "" {
		model = c.config.Model
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	req := oaRequest{
		Model:       model,
		Messages:    make([]oaMessage, 0, len(messages)),
		Temperature: cfg.Temperature,
		MaxTokens:   maxTokens,
		Stream:      cfg.Stream,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, toOpenAIMessage(m))
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, oaTool{
			Type:     "function",
			Function: oaFunctionDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return req
}

func toOpenAIMessage(m Message) oaMessage {
	out := oaMessage{Role: m.Role, ToolCallID: m.ToolCallID, Content: m.Content}
	if len(m.Images) > 0 {
		parts := make([]oaContentPart, 0, len(m.Images)+1)
		if m.Content != "" {
			parts = append(parts, oaContentPart{Type: "text", Text: m.Content})
		}
		for _, img := range m.Images {
			parts = append(parts, oaContentPart{
				Type:     "image_url",
				ImageURL: &oaImageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)},
			})
		}
		out.Content = parts
	}
	for _, tc := range m.ToolCalls {
		args := tc.Arguments
		if args == "" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, oaToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: oaFunctionCall{Name: tc.Name, Arguments: args},
		})
	}
	return out
}

func (c *OpenAIClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("LLM API returned error status", zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("LLM API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err)
	}
}
