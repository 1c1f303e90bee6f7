// Package openai implements request/response/stream transcoding for the
// OpenAI Chat Completions API, grounded on features/model/openai/client.go's
// adapter shape (narrow ChatClient-style interface, Options, New,
// translateResponse, encodeTools) but rewired to github.com/openai/openai-go
// -- the SDK actually present in the dependency pack -- instead of the
// teacher file's sashabaranov/go-openai.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/streaming"
)

// ChatClient captures the subset of the OpenAI SDK client used by the
// adapter, so tests can substitute a double.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// Client implements model.Client and providerctx.BodyEncoder on top of
// OpenAI Chat Completions.
type Client struct {
	chat ChatClient
}

// New builds an OpenAI-backed model client.
func New(chat ChatClient) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	return &Client{chat: chat}, nil
}

// EncodeRequest translates a canonical Request into an OpenAI-native
// ChatCompletionNewParams body, implementing providerctx.BodyEncoder.
func (c *Client) EncodeRequest(req model.Request, mapping model.ProviderMapping) (any, error) {
	return encodeRequest(req, mapping)
}

func encodeRequest(req model.Request, mapping model.ProviderMapping) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: mapping.ModelName,
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		encoded, err := encodeMessage(msg)
		if err != nil {
			return params, err
		}
		messages = append(messages, encoded)
	}
	params.Messages = messages

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*req.PresencePenalty)
	}

	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
	}

	if req.ResponseFormat != nil && req.ResponseFormat.Type == model.ResponseFormatJSONObject {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	return params, nil
}

func encodeMessage(msg model.Message) (openai.ChatCompletionMessageParamUnion, error) {
	text := textContent(msg)
	switch msg.Role {
	case model.ConversationRoleSystem:
		return openai.SystemMessage(text), nil
	case model.ConversationRoleUser:
		return openai.UserMessage(text), nil
	case model.ConversationRoleAssistant:
		return openai.AssistantMessage(text), nil
	case model.ConversationRoleTool:
		return openai.ToolMessage(text, toolCallID(msg)), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unsupported role %q", msg.Role)
	}
}

func textContent(msg model.Message) string {
	var out string
	for _, part := range msg.Parts {
		if tp, ok := part.(model.TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

func toolCallID(msg model.Message) string {
	for _, part := range msg.Parts {
		if tr, ok := part.(model.ToolResultPart); ok {
			return tr.ToolUseID
		}
	}
	return ""
}

func encodeTools(defs []model.ToolDefinition) ([]openai.ChatCompletionToolParam, error) {
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.InputSchema) > 0 {
			if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("openai: marshal tool %s schema: %w", def.Name, err)
			}
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  schema,
			},
		})
	}
	return tools, nil
}

// Complete performs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	params, err := encodeRequest(req, model.ProviderMapping{ModelName: req.ModelInput})
	if err != nil {
		return model.Response{}, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return model.Response{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	return translateResponse(resp), nil
}

func translateResponse(resp *openai.ChatCompletion) model.Response {
	var out model.Response
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	if choice.Message.Content != "" {
		out.Content = append(out.Content, model.TextPart{Text: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolUsePart{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: json.RawMessage(call.Function.Arguments),
		})
	}
	out.Usage = model.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	out.StopReason = translateFinishReason(string(choice.FinishReason))
	return out
}

func translateFinishReason(reason string) model.StopReason {
	switch reason {
	case "tool_calls":
		return model.StopReasonToolCalls
	case "length":
		return model.StopReasonLength
	case "content_filter":
		return model.StopReasonContentFilter
	default:
		return model.StopReasonStop
	}
}

// Stream performs a streaming chat completion, reassembling native SSE
// events into canonical Chunks via internal/streaming's state machine.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, err := encodeRequest(req, model.ProviderMapping{ModelName: req.ModelInput})
	if err != nil {
		return nil, err
	}
	sdkStream := c.chat.NewStreaming(ctx, params)
	return newStreamer(ctx, sdkStream), nil
}

type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	state  *streaming.State
	chunks chan model.Chunk
	errCh  chan error
}

func newStreamer(ctx context.Context, s *ssestream.Stream[openai.ChatCompletionChunk]) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	st := &streamer{
		ctx:    cctx,
		cancel: cancel,
		stream: s,
		state:  streaming.NewState(),
		chunks: make(chan model.Chunk, 32),
		errCh:  make(chan error, 1),
	}
	go st.run()
	return st
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer s.stream.Close()
	for s.stream.Next() {
		chunk := s.stream.Current()
		for _, ev := range translateChunk(chunk) {
			out, emit, err := s.state.Apply(ev)
			if err != nil {
				s.errCh <- err
				return
			}
			if !emit {
				continue
			}
			select {
			case s.chunks <- out:
			case <-s.ctx.Done():
				return
			}
		}
	}
	if err := s.stream.Err(); err != nil {
		s.errCh <- err
	}
}

func translateChunk(chunk openai.ChatCompletionChunk) []streaming.Event {
	var events []streaming.Event
	if len(chunk.Choices) == 0 {
		return events
	}
	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		events = append(events, streaming.Event{Kind: streaming.EventText, Text: choice.Delta.Content})
	}
	for i, call := range choice.Delta.ToolCalls {
		if call.ID != "" {
			events = append(events, streaming.Event{
				Kind: streaming.EventToolStart, Index: i, ToolID: call.ID, ToolName: call.Function.Name,
			})
		}
		if call.Function.Arguments != "" {
			events = append(events, streaming.Event{Kind: streaming.EventToolDelta, Index: i, Text: call.Function.Arguments})
		}
	}
	if choice.FinishReason != "" {
		if len(choice.Delta.ToolCalls) > 0 || choice.FinishReason == "tool_calls" {
			for i := range choice.Delta.ToolCalls {
				events = append(events, streaming.Event{Kind: streaming.EventToolStop, Index: i})
			}
		}
		events = append(events, streaming.Event{Kind: streaming.EventStop, StopReason: translateFinishReason(string(choice.FinishReason))})
	}
	return events
}

func (s *streamer) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		select {
		case err := <-s.errCh:
			return model.Chunk{}, err
		default:
			return model.Chunk{}, io.EOF
		}
	case <-s.ctx.Done():
		return model.Chunk{}, s.ctx.Err()
	}
}

func (s *streamer) Close() error {
	s.cancel()
	return nil
}

func (s *streamer) Metadata() map[string]string { return nil }
