// Package openai provides a model.Provider over the OpenAI Chat Completions
// API. The same adapter serves OpenAI-compatible endpoints (for example the
// Gemini compatibility endpoint) by overriding BaseURL and Kind.
package openai

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI provider.
type Options struct {
	APIKeys             []string
	BaseURL             string
	Kind                model.ProviderKind
	Temperature         float64
	MaxCompletionTokens int64
	Logger              logging.Logger
}

// Provider wraps the Chat Completions API behind model.Provider.
type Provider struct {
	clients []*openai.Client
	active  atomic.Int32
	opts    Options
}

// NewProvider creates a provider with one SDK client per configured API key.
// Without keys a single client reads OPENAI_API_KEY from the environment.
func NewProvider(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Kind:                model.KindOpenAI,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	keys := opts.APIKeys
	if len(keys) == 0 {
		keys = []string{""}
	}
	clients := make([]*openai.Client, 0, len(keys))
	for _, key := range keys {
		clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
		if key != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(key))
		}
		if opts.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
		}
		client := openai.NewClient(clientOpts...)
		clients = append(clients, &client)
	}
	return &Provider{clients: clients, opts: opts}
}

// NewProviderFromClient creates a provider from an existing client.
func NewProviderFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Kind:                model.KindOpenAI,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Provider{clients: []*openai.Client{client}, opts: opts}
}

// Kind implements model.Provider.
func (p *Provider) Kind() model.ProviderKind { return p.opts.Kind }

// RotateAuth implements model.AuthRotator.
func (p *Provider) RotateAuth() bool {
	if len(p.clients) < 2 {
		return false
	}
	n := int32(len(p.clients))
	for {
		cur := p.active.Load()
		if next := (cur + 1) % n; p.active.CompareAndSwap(cur, next) {
			p.opts.Logger.Info("openai.auth.rotated", "key_index", next, "keys", n)
			return true
		}
	}
}

// Complete implements model.Provider.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Completion, error) {
	messages := buildMessages(req.Messages)
	if len(messages) == 0 {
		return nil, &model.InvalidRequestError{Message: "no messages provided"}
	}
	_, name := model.SplitModelID(req.Model)

	maxTokens := p.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               name,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	client := p.clients[int(p.active.Load())%len(p.clients)]
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		mapped := mapError(ctx, err, req.Model)
		p.opts.Logger.Debug("openai.request.failed", "model", req.Model, "error", mapped.Error())
		return nil, mapped
	}
	if len(resp.Choices) == 0 {
		return nil, &model.StreamClosedError{}
	}

	ch0 := resp.Choices[0]
	parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)
	if ch0.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}
	for _, tc := range ch0.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}
	return &model.Completion{
		Content: core.Content{Role: core.RoleAssistant, Parts: parts},
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
		FinishReason: ch0.FinishReason,
	}, nil
}

// mapError translates SDK and transport failures into the provider error
// taxonomy. Context errors pass through unchanged.
func mapError(ctx context.Context, err error, modelID string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == "context_length_exceeded" {
			return &model.ContextLengthExceededError{}
		}
		var retryAfter *time.Duration
		if apiErr.Response != nil {
			retryAfter = model.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), time.Now())
		}
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.RawJSON()
		}
		return model.FromStatus(apiErr.StatusCode, msg, retryAfter, modelID)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &model.StreamClosedError{}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &model.NetworkError{Err: err}
	}
	return &model.UnknownError{Err: err}
}

// buildMessages converts a repaired transcript into chat messages. Tool
// results become tool messages keyed by their call id.
func buildMessages(contents []core.Content) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, c := range contents {
		switch c.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(c.Text()))
		case core.RoleAssistant:
			calls := toolCalls(c)
			if len(calls) == 0 {
				messages = append(messages, openai.AssistantMessage(c.Text()))
				continue
			}
			msg := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if text := c.Text(); text != "" {
				msg.Content.OfString = openai.String(text)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		case core.RoleTool:
			for _, p := range c.Parts {
				fr, ok := p.(core.FunctionResponsePart)
				if !ok {
					continue
				}
				body := fr.FunctionResponse.Response
				if fr.FunctionResponse.Error != "" {
					body = "error: " + fr.FunctionResponse.Error
				}
				messages = append(messages, openai.ToolMessage(body, fr.FunctionResponse.ID))
			}
		default:
			if text := strings.TrimSpace(c.Text()); text != "" {
				messages = append(messages, openai.UserMessage(c.Text()))
			}
		}
	}
	return messages
}

func toolCalls(c core.Content) []openai.ChatCompletionMessageToolCallParam {
	var calls []openai.ChatCompletionMessageToolCallParam
	for _, fc := range c.FunctionCalls() {
		calls = append(calls, openai.ChatCompletionMessageToolCallParam{
			ID:   fc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.Name,
				Arguments: fc.Arguments,
			},
		})
	}
	return calls
}

func buildTools(tools []model.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		out[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}
