// Package anthropic implements request/response/stream transcoding for the
// Anthropic Messages API, grounded nearly line-for-line on
// features/model/anthropic/client.go and features/model/anthropic/stream.go
// (same prepareRequest/encodeMessages/encodeTools/translateResponse
// breakdown) but rewired to the gateway's own internal/model package and
// gwerrors taxonomy instead of the agent runtime's.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/streaming"
)

// MessagesClient captures the subset of the Anthropic SDK client used by
// the adapter so tests can substitute a double.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements model.Client and providerctx.BodyEncoder on top of
// Anthropic Messages.
type Client struct {
	msg MessagesClient
}

// New builds an Anthropic-backed model client.
func New(msg MessagesClient) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	return &Client{msg: msg}, nil
}

// EncodeRequest translates a canonical Request into an Anthropic-native
// MessageNewParams body.
func (c *Client) EncodeRequest(req model.Request, mapping model.ProviderMapping) (any, error) {
	return encodeRequest(req, mapping)
}

func encodeRequest(req model.Request, mapping model.ProviderMapping) (sdk.MessageNewParams, error) {
	var params sdk.MessageNewParams
	if len(req.Messages) == 0 {
		return params, errors.New("anthropic: messages are required")
	}
	maxTokens := mapping.MaxOutput
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	if maxTokens <= 0 {
		return params, errors.New("anthropic: max_tokens must be positive")
	}

	msgs, system, err := encodeMessages(req.Messages)
	if err != nil {
		return params, err
	}

	params = sdk.MessageNewParams{
		Model:     sdk.Model(mapping.ModelName),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = sdk.Float(*req.TopP)
	}
	if req.Reasoning != nil && req.Reasoning.MaxTokens > 0 {
		if req.Reasoning.MaxTokens >= maxTokens {
			return params, fmt.Errorf("anthropic: reasoning max_tokens %d must be less than max_tokens %d", req.Reasoning.MaxTokens, maxTokens)
		}
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(req.Reasoning.MaxTokens))
	}
	return params, nil
}

func encodeMessages(msgs []model.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0, len(msgs))

	for _, m := range msgs {
		if m.Role == model.ConversationRoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok && v.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: v.Text})
				}
			}
			continue
		}

		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch p := part.(type) {
			case model.TextPart:
				if p.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(p.Text))
				}
			case model.ToolUsePart:
				var input any
				_ = json.Unmarshal(p.Input, &input)
				blocks = append(blocks, sdk.NewToolUseBlock(p.ID, input, p.Name))
			case model.ToolResultPart:
				blocks = append(blocks, sdk.NewToolResultBlock(p.ToolUseID, p.Content, p.IsError))
			case model.ThinkingPart:
				if p.Signature != "" {
					blocks = append(blocks, sdk.NewThinkingBlock(p.Signature, p.Text))
				}
			}
		}
		role := sdk.MessageParamRoleUser
		if m.Role == model.ConversationRoleAssistant {
			role = sdk.MessageParamRoleAssistant
		}
		conversation = append(conversation, sdk.MessageParam{Role: role, Content: blocks})
	}
	return conversation, system, nil
}

func encodeTools(defs []model.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	tools := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.InputSchema) > 0 {
			if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("anthropic: marshal tool %s schema: %w", def.Name, err)
			}
		}
		tools = append(tools, sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{Properties: schema}, def.Name))
	}
	return tools, nil
}

// Complete issues a non-streaming Messages.New request.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	params, err := encodeRequest(req, model.ProviderMapping{ModelName: req.ModelInput, MaxOutput: 4096})
	if err != nil {
		return model.Response{}, err
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return model.Response{}, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateResponse(msg), nil
}

func translateResponse(msg *sdk.Message) model.Response {
	var out model.Response
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			out.Content = append(out.Content, model.TextPart{Text: b.Text})
		case sdk.ToolUseBlock:
			input, _ := json.Marshal(b.Input)
			out.ToolCalls = append(out.ToolCalls, model.ToolUsePart{ID: b.ID, Name: b.Name, Input: input})
		case sdk.ThinkingBlock:
			out.Content = append(out.Content, model.ThinkingPart{Text: b.Thinking, Signature: b.Signature, Final: true})
		}
	}
	out.Usage = model.TokenUsage{
		InputTokens:      int(msg.Usage.InputTokens),
		OutputTokens:     int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		CacheReadTokens:  int(msg.Usage.CacheReadInputTokens),
		CacheWriteTokens: int(msg.Usage.CacheCreationInputTokens),
	}
	out.StopReason = translateStopReason(string(msg.StopReason))
	return out
}

func translateStopReason(reason string) model.StopReason {
	switch reason {
	case "tool_use":
		return model.StopReasonToolCalls
	case "max_tokens":
		return model.StopReasonLength
	default:
		return model.StopReasonStop
	}
}

// Stream invokes Messages.NewStreaming and reassembles native events into
// canonical Chunks via internal/streaming's state machine.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, err := encodeRequest(req, model.ProviderMapping{ModelName: req.ModelInput, MaxOutput: 4096})
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: messages.new stream: %w", err)
	}
	return newStreamer(ctx, stream), nil
}
