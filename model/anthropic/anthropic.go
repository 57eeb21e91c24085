// Package anthropic provides a model.Provider for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
)

// Options configures the Anthropic provider. APIKeys holds one or more
// credentials; RetryWithNextAuth rotates through them in order.
type Options struct {
	APIKeys     []string
	BaseURL     string
	Temperature float64
	MaxTokens   int64
	Logger      logging.Logger
}

// Provider wraps the Anthropic Messages API behind model.Provider.
type Provider struct {
	clients []*anthropic.Client
	active  atomic.Int32
	opts    Options
}

// NewProvider creates a provider with one SDK client per configured API key.
// Without keys a single client reads ANTHROPIC_API_KEY from the environment.
func NewProvider(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	keys := opts.APIKeys
	if len(keys) == 0 {
		keys = []string{""}
	}
	clients := make([]*anthropic.Client, 0, len(keys))
	for _, key := range keys {
		var clientOpts []option.RequestOption
		if key != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(key))
		}
		if opts.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
		}
		// Retries are owned by the failover loop.
		clientOpts = append(clientOpts, option.WithMaxRetries(0))
		client := anthropic.NewClient(clientOpts...)
		clients = append(clients, &client)
	}

	return &Provider{clients: clients, opts: opts}
}

// NewProviderFromClient creates a provider from an existing client.
func NewProviderFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Provider{clients: []*anthropic.Client{client}, opts: opts}
}

// Kind implements model.Provider.
func (p *Provider) Kind() model.ProviderKind { return model.KindAnthropic }

// RotateAuth implements model.AuthRotator.
func (p *Provider) RotateAuth() bool {
	if len(p.clients) < 2 {
		return false
	}
	n := int32(len(p.clients))
	for {
		cur := p.active.Load()
		if next := (cur + 1) % n; p.active.CompareAndSwap(cur, next) {
			p.opts.Logger.Info("anthropic.auth.rotated", "key_index", next, "keys", n)
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

	maxTokens := p.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	_, name := model.SplitModelID(req.Model)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(name),
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
	}
	if system := systemBlocks(req.Messages); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	client := p.clients[int(p.active.Load())%len(p.clients)]
	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		mapped := mapError(ctx, err, req.Model)
		p.opts.Logger.Debug("anthropic.request.failed", "model", req.Model, "error", mapped.Error())
		return nil, mapped
	}

	var parts []core.Part
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if text := block.AsText().Text; text != "" {
				parts = append(parts, core.TextPart{Text: text})
			}
		case "tool_use":
			tu := block.AsToolUse()
			args := ""
			if tu.Input != nil {
				if b, err := json.Marshal(tu.Input); err == nil {
					args = string(b)
				}
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			}})
		}
	}

	finish := "stop"
	if resp.StopReason != "" {
		finish = string(resp.StopReason)
	}
	return &model.Completion{
		Content: core.Content{Role: core.RoleAssistant, Parts: parts},
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
		FinishReason: finish,
	}, nil
}

// mapError translates SDK and transport failures into the provider error
// taxonomy. Context errors are returned unchanged so callers can tell
// cancellation apart from provider failures.
func mapError(ctx context.Context, err error, modelID string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var retryAfter *time.Duration
		if apiErr.Response != nil {
			retryAfter = model.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), time.Now())
		}
		return model.FromStatus(apiErr.StatusCode, apiErr.RawJSON(), retryAfter, modelID)
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

// buildMessages converts a repaired transcript into Anthropic messages.
// System messages travel separately; tool results become user turns.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, c := range contents {
		switch c.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			if blocks := assistantBlocks(c.Parts); len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			if blocks := userBlocks(c.Parts); len(blocks) > 0 {
				messages = append(messages, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	return messages
}

func systemBlocks(contents []core.Content) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, c := range contents {
		if c.Role != core.RoleSystem {
			continue
		}
		if text := c.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}
	return blocks
}

func userBlocks(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionResponsePart:
			fr := part.FunctionResponse
			if fr.Error != "" {
				blocks = append(blocks, anthropic.NewToolResultBlock(fr.ID, fr.Error, true))
				continue
			}
			blocks = append(blocks, anthropic.NewToolResultBlock(fr.ID, fr.Response, false))
		}
	}
	return blocks
}

func assistantBlocks(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			var input any = map[string]any{}
			if part.FunctionCall.Arguments != "" {
				if err := json.Unmarshal([]byte(part.FunctionCall.Arguments), &input); err != nil {
					input = part.FunctionCall.Arguments
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(part.FunctionCall.ID, input, part.FunctionCall.Name))
		}
	}
	return blocks
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if props, ok := tool.Parameters["properties"]; ok {
			schema.Properties = props
		}
		switch req := tool.Parameters["required"].(type) {
		case []string:
			schema.Required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, tool.Name)
	}
	return out
}
