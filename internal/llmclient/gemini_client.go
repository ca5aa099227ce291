// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// geminiModels is the subset of *genai.Models used by the client.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiClient implements Provider on top of the Google Gen AI SDK.
type GeminiClient struct {
	id      string
	models  geminiModels
	limiter *rate.Limiter
	logger  *zap.Logger
	config  config.ProviderConfig
}

var _ Provider = (*GeminiClient)(nil)

// NewGeminiClient initializes the SDK client for one provider entry.
func NewGeminiClient(ctx context.Context, id string, cfg config.ProviderConfig, apiKey string, logger *zap.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required (set %s)", config.APIKeyEnvVar(id))
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.APIBase != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.APIBase}
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newGeminiClient(id, cfg, client.Models, logger), nil
}

func newGeminiClient(id string, cfg config.ProviderConfig, models geminiModels, logger *zap.Logger) *GeminiClient {
	c := &GeminiClient{
		id:     id,
		models: models,
		logger: logger.Named("llm_client.gemini").With(zap.String("provider", id)),
		config: cfg,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

// Name returns the provider id.
func (c *GeminiClient) Name() string { return c.id }

// Chat sends the conversation through GenerateContent or its streaming form.
func (c *GeminiClient) Chat(ctx context.Context, messages []Message, tools []ToolDef, cfg CallConfig, sink ChunkSink) (*Response, error) {
	model := cfg.Model
	if model == "" {
		model = c.config.Model
	}
	contents, genCfg := c.buildRequest(messages, tools, cfg)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	startTime := time.Now()
	var (
		out *Response
		err error
	)
	if cfg.Stream {
		out, err = c.chatStream(ctx, model, contents, genCfg, sink)
	} else {
		out, err = c.chatOnce(ctx, model, contents, genCfg)
	}
	if err != nil {
		sink.emit(StreamChunk{Kind: ChunkError, Content: err.Error()})
		return nil, err
	}
	c.logger.Info("LLM generation complete (Gemini)",
		zap.String("model", model),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("tool_calls", len(out.ToolCalls)),
		zap.Int("total_tokens", out.Usage.TotalTokens))
	return out, nil
}

func (c *GeminiClient) chatOnce(ctx context.Context, model string, contents []*genai.Content, genCfg *genai.GenerateContentConfig) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var resp *genai.GenerateContentResponse
	operation := func() error {
		r, err := c.models.GenerateContent(ctx, model, contents, genCfg)
		if err != nil {
			return c.classifyError(ctx, err)
		}
		resp = r
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	out := &Response{}
	acc := NewToolCallAccumulator()
	if err := c.foldResponse(resp, out, acc, nil); err != nil {
		return nil, err
	}
	out.ToolCalls = acc.Calls()
	return out, nil
}

func (c *GeminiClient) chatStream(ctx context.Context, model string, contents []*genai.Content, genCfg *genai.GenerateContentConfig, sink ChunkSink) (*Response, error) {
	out := &Response{}
	acc := NewToolCallAccumulator()
	for resp, err := range c.models.GenerateContentStream(ctx, model, contents, genCfg) {
		if err != nil {
			return nil, fmt.Errorf("gemini stream failed: %w", err)
		}
		if err := c.foldResponse(resp, out, acc, sink); err != nil {
			return nil, err
		}
	}
	out.ToolCalls = acc.Calls()
	sink.emit(StreamChunk{Kind: ChunkDone, Content: out.FinishReason})
	return out, nil
}

// foldResponse merges one (possibly partial) response into out.
func (c *GeminiClient) foldResponse(resp *genai.GenerateContentResponse, out *Response, acc *ToolCallAccumulator, sink ChunkSink) error {
	if resp == nil {
		return nil
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != "" {
		out.FinishReason = string(cand.FinishReason)
		if cand.FinishReason == genai.FinishReasonSafety || cand.FinishReason == genai.FinishReasonBlocklist {
			return fmt.Errorf("gemini API blocked the request (Reason: %s)", cand.FinishReason)
		}
	}
	if cand.Content == nil {
		return nil
	}
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				args = []byte("{}")
			}
			acc.Add(acc.Len(), part.FunctionCall.ID, part.FunctionCall.Name, string(args))
			sink.emit(StreamChunk{Kind: ChunkToolCall, Content: part.FunctionCall.Name})
		case part.Thought && part.Text != "":
			out.Reasoning += part.Text
			sink.emit(StreamChunk{Kind: ChunkReasoning, Content: part.Text})
		case part.Text != "":
			out.Content += part.Text
			sink.emit(StreamChunk{Kind: ChunkContent, Content: part.Text})
		}
	}
	return nil
}

func (c *GeminiClient) classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	if code, ok := geminiStatus(err); ok {
		c.logger.Error("Gemini API returned error status", zap.Int("status", code), zap.Error(err))
		switch code {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
	return err
}

func geminiStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func (c *GeminiClient) buildRequest(messages []Message, tools []ToolDef, cfg CallConfig) ([]*genai.Content, *genai.GenerateContentConfig) {
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(cfg.Temperature)),
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(maxTokens)
	}

	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case MessageSystem:
			system = append(system, m.Content)
		case MessageAssistant:
			parts := make([]*genai.Part, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Args(),
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		case MessageTool:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     m.Name,
					Response: map[string]any{"output": m.Content},
				},
			}}})
		default:
			parts := make([]*genai.Part, 0, len(m.Images)+1)
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, img := range m.Images {
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: img}})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
		}
	}
	if len(system) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		genCfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return contents, genCfg
}
