// Package bedrock implements request/response/stream transcoding for AWS
// Bedrock Converse/ConverseStream, grounded on
// features/model/bedrock/client.go's RuntimeClient interface, Options
// shape, and system/conversational message split, and
// features/model/bedrock/stream.go's event translation, adapted to the
// gateway's canonical chunk model via internal/upstream's bridge.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/streaming"
	"goa.design/llmgateway/internal/upstream"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client
// required by the adapter, matching *bedrockruntime.Client so callers can
// pass either the real client or a test double.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client implements model.Client and providerctx.BodyEncoder on top of AWS
// Bedrock Converse.
type Client struct {
	runtime RuntimeClient
}

// New builds a Bedrock-backed model client.
func New(runtime RuntimeClient) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	return &Client{runtime: runtime}, nil
}

// EncodeRequest translates a canonical Request into a Bedrock-native
// ConverseInput body.
func (c *Client) EncodeRequest(req model.Request, mapping model.ProviderMapping) (any, error) {
	return encodeRequest(req, mapping)
}

func encodeRequest(req model.Request, mapping model.ProviderMapping) (bedrockruntime.ConverseInput, error) {
	var input bedrockruntime.ConverseInput
	if len(req.Messages) == 0 {
		return input, errors.New("bedrock: messages are required")
	}

	var system []brtypes.SystemContentBlock
	var conversation []brtypes.Message
	for _, m := range req.Messages {
		if m.Role == model.ConversationRoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok && v.Text != "" {
					system = append(system, &brtypes.SystemContentBlockMemberText{Value: v.Text})
				}
			}
			continue
		}
		blocks, err := encodeContentBlocks(m.Parts)
		if err != nil {
			return input, err
		}
		role := brtypes.ConversationRoleUser
		if m.Role == model.ConversationRoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}

	input.ModelId = aws.String(mapping.ModelName)
	input.System = system
	input.Messages = conversation

	inferenceCfg := &brtypes.InferenceConfiguration{}
	if req.MaxTokens != nil {
		v := int32(*req.MaxTokens)
		inferenceCfg.MaxTokens = &v
	}
	if req.Temperature != nil {
		v := float32(*req.Temperature)
		inferenceCfg.Temperature = &v
	}
	if req.TopP != nil {
		v := float32(*req.TopP)
		inferenceCfg.TopP = &v
	}
	input.InferenceConfig = inferenceCfg

	if len(req.Tools) > 0 {
		toolCfg, err := encodeToolConfig(req.Tools)
		if err != nil {
			return input, err
		}
		input.ToolConfig = toolCfg
	}

	return input, nil
}

func encodeContentBlocks(parts []model.Part) ([]brtypes.ContentBlock, error) {
	blocks := make([]brtypes.ContentBlock, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case model.TextPart:
			if p.Text != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: p.Text})
			}
		case model.ThinkingPart:
			switch {
			case p.Signature != "" && p.Text != "":
				blocks = append(blocks, &brtypes.ContentBlockMemberReasoningContent{
					Value: &brtypes.ReasoningContentBlockMemberReasoningText{
						Value: brtypes.ReasoningTextBlock{
							Text:      aws.String(p.Text),
							Signature: aws.String(p.Signature),
						},
					},
				})
			case len(p.Redacted) > 0:
				blocks = append(blocks, &brtypes.ContentBlockMemberReasoningContent{
					Value: &brtypes.ReasoningContentBlockMemberRedactedContent{Value: p.Redacted},
				})
			}
		case model.ToolUsePart:
			var input any
			_ = json.Unmarshal(p.Input, &input)
			blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
				Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(p.ID),
					Name:      aws.String(p.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		case model.ToolResultPart:
			blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
				Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(p.ToolUseID),
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: p.Content},
					},
				},
			})
		}
	}
	return blocks, nil
}

func encodeToolConfig(defs []model.ToolDefinition) (*brtypes.ToolConfiguration, error) {
	tools := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		var schema any
		if len(def.InputSchema) > 0 {
			if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("bedrock: marshal tool %s schema: %w", def.Name, err)
			}
		}
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(def.Name),
				Description: aws.String(def.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: tools}, nil
}

// Complete performs a non-streaming Converse call.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	input, err := encodeRequest(req, model.ProviderMapping{ModelName: req.ModelInput})
	if err != nil {
		return model.Response{}, err
	}
	out, err := c.runtime.Converse(ctx, &input)
	if err != nil {
		return model.Response{}, classifyError("converse", err)
	}
	return translateResponse(out), nil
}

func translateResponse(out *bedrockruntime.ConverseOutput) model.Response {
	var resp model.Response
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if ok {
		for _, block := range msg.Value.Content {
			switch b := block.(type) {
			case *brtypes.ContentBlockMemberText:
				resp.Content = append(resp.Content, model.TextPart{Text: b.Value})
			case *brtypes.ContentBlockMemberReasoningContent:
				switch rc := b.Value.(type) {
				case *brtypes.ReasoningContentBlockMemberReasoningText:
					resp.Content = append(resp.Content, model.ThinkingPart{
						Text:      aws.ToString(rc.Value.Text),
						Signature: aws.ToString(rc.Value.Signature),
						Final:     true,
					})
				case *brtypes.ReasoningContentBlockMemberRedactedContent:
					resp.Content = append(resp.Content, model.ThinkingPart{Redacted: rc.Value, Final: true})
				}
			case *brtypes.ContentBlockMemberToolUse:
				var raw json.RawMessage
				if b.Value.Input != nil {
					raw, _ = b.Value.Input.MarshalSmithyDocument()
				}
				resp.ToolCalls = append(resp.ToolCalls, model.ToolUsePart{
					ID:    aws.ToString(b.Value.ToolUseId),
					Name:  aws.ToString(b.Value.Name),
					Input: raw,
				})
			}
		}
	}
	if out.Usage != nil {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	resp.StopReason = translateStopReason(out.StopReason)
	return resp
}

func translateStopReason(reason brtypes.StopReason) model.StopReason {
	switch reason {
	case brtypes.StopReasonToolUse:
		return model.StopReasonToolCalls
	case brtypes.StopReasonMaxTokens:
		return model.StopReasonLength
	case brtypes.StopReasonContentFiltered:
		return model.StopReasonContentFilter
	default:
		return model.StopReasonStop
	}
}

// Stream performs a ConverseStream call, bridging the Bedrock binary event
// stream into the canonical Streamer interface via internal/upstream.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	input, err := encodeRequest(req, model.ProviderMapping{ModelName: req.ModelInput})
	if err != nil {
		return nil, err
	}
	streamInput := bedrockruntime.ConverseStreamInput{
		ModelId:         input.ModelId,
		Messages:        input.Messages,
		System:          input.System,
		InferenceConfig: input.InferenceConfig,
		ToolConfig:      input.ToolConfig,
	}
	out, err := c.runtime.ConverseStream(ctx, &streamInput)
	if err != nil {
		return nil, classifyError("converse_stream", err)
	}
	stream := out.GetStream()
	state := streaming.NewState()
	return upstream.BridgeBedrockStream(ctx, bedrockEventStream{stream}, translatorFor(state)), nil
}

// bedrockEventStream narrows *bedrockruntime.ConverseStreamEventStream to
// upstream.BedrockEventStream.
type bedrockEventStream struct {
	*bedrockruntime.ConverseStreamEventStream
}

func (s bedrockEventStream) Events() <-chan any {
	ch := make(chan any)
	go func() {
		defer close(ch)
		for ev := range s.ConverseStreamEventStream.Events() {
			ch <- ev
		}
	}()
	return ch
}

func translatorFor(state *streaming.State) upstream.BedrockChunkTranslator {
	return func(event any) (model.Chunk, bool, error) {
		events := translateStreamEvent(event)
		for _, ev := range events {
			chunk, emit, err := state.Apply(ev)
			if err != nil {
				return model.Chunk{}, false, err
			}
			if emit {
				return chunk, true, nil
			}
		}
		return model.Chunk{}, false, nil
	}
}

func translateStreamEvent(event any) []streaming.Event {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockStart:
		idx := int(ev.Value.ContentBlockIndex)
		if toolUse, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
			return []streaming.Event{{
				Kind: streaming.EventToolStart, Index: idx,
				ToolID: aws.ToString(toolUse.Value.ToolUseId), ToolName: aws.ToString(toolUse.Value.Name),
			}}
		}
		return nil

	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := int(ev.Value.ContentBlockIndex)
		switch delta := ev.Value.Delta.(type) {
		case *brtypes.ContentBlockDeltaMemberText:
			if delta.Value == "" {
				return nil
			}
			return []streaming.Event{{Kind: streaming.EventText, Index: idx, Text: delta.Value}}
		case *brtypes.ContentBlockDeltaMemberToolUse:
			raw, _ := delta.Value.Input.MarshalSmithyDocument()
			if len(raw) == 0 {
				return nil
			}
			return []streaming.Event{{Kind: streaming.EventToolDelta, Index: idx, Text: string(raw)}}
		case *brtypes.ContentBlockDeltaMemberReasoningContent:
			switch rc := delta.Value.(type) {
			case *brtypes.ReasoningContentBlockDeltaMemberText:
				if rc.Value == "" {
					return nil
				}
				return []streaming.Event{{Kind: streaming.EventThinkingDelta, Index: idx, Text: rc.Value}}
			case *brtypes.ReasoningContentBlockDeltaMemberSignature:
				if rc.Value == "" {
					return nil
				}
				return []streaming.Event{{Kind: streaming.EventThinkingSignature, Index: idx, Signature: rc.Value}}
			}
			return nil
		}
		return nil

	case *brtypes.ConverseStreamOutputMemberContentBlockStop:
		return []streaming.Event{{Kind: streaming.EventBlockStop, Index: int(ev.Value.ContentBlockIndex)}}

	case *brtypes.ConverseStreamOutputMemberMessageStop:
		return []streaming.Event{{Kind: streaming.EventStop, StopReason: translateStopReason(ev.Value.StopReason)}}

	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage != nil {
			return []streaming.Event{{
				Kind: streaming.EventUsage,
				Usage: model.TokenUsage{
					InputTokens:  int(aws.ToInt32(ev.Value.Usage.InputTokens)),
					OutputTokens: int(aws.ToInt32(ev.Value.Usage.OutputTokens)),
					TotalTokens:  int(aws.ToInt32(ev.Value.Usage.TotalTokens)),
				},
			}}
		}
		return nil

	default:
		return nil
	}
}
