package httpapi

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"goa.design/llmgateway/internal/gwerrors"
	"goa.design/llmgateway/internal/model"
)

// normalizedEnvelope is C1's output: an immutable Request plus the routing
// inputs derived from the model identifier and transport headers.
type normalizedEnvelope struct {
	Request          model.Request
	RequestedModelID string // the "model" part of "[provider/]model"
	RequestedProvider string // empty unless the client pinned a provider
	IsAuto           bool
	IsCustom         bool
	NoFallback       bool
	DebugMode        bool
	Source           string
	WebSearchTool    bool
}

// normalizeRequest implements C1 (spec.md §4.1): parses the JSON body,
// extracts transport headers, and produces the immutable Request Envelope.
func normalizeRequest(r *http.Request, forceDebug bool) (normalizedEnvelope, error) {
	var body wireRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		return normalizedEnvelope{}, gwerrors.InvalidJSON(err)
	}
	if body.Model == "" {
		return normalizedEnvelope{}, gwerrors.InvalidParameters("model is required")
	}
	if len(body.Messages) == 0 {
		return normalizedEnvelope{}, gwerrors.InvalidParameters("messages must not be empty")
	}

	messages, err := toCanonicalMessages(body.Messages)
	if err != nil {
		return normalizedEnvelope{}, gwerrors.InvalidParameters(err.Error())
	}

	tools, webSearchToolPresent := toCanonicalTools(body.Tools)
	webSearch := body.WebSearch || webSearchToolPresent
	if webSearch && !webSearchToolPresent {
		// spec.md §4.1: "If web_search=true and no web_search tool is
		// present, synthesize one."
		tools = append(tools, model.ToolDefinition{Name: "web_search", WebSearch: true})
	}

	providerID, modelID, isAuto, isCustom := splitModelIdentifier(body.Model)

	requestID := r.Header.Get("x-request-id")
	if requestID == "" {
		requestID = randomID()
	}

	req := model.Request{
		RequestID:        requestID,
		ModelInput:       modelID,
		Messages:         messages,
		Temperature:      body.Temperature,
		TopP:             body.TopP,
		MaxTokens:        body.MaxTokens,
		FrequencyPenalty: body.FrequencyPenalty,
		PresencePenalty:  body.PresencePenalty,
		ResponseFormat:   toCanonicalResponseFormat(body.ResponseFormat),
		Tools:            tools,
		ToolChoice:       toCanonicalToolChoice(body.ToolChoice),
		Stream:           body.Stream,
		Reasoning:        toCanonicalReasoning(body),
		ReasoningEffort:  model.ReasoningEffort(body.ReasoningEffort),
		WebSearch:        webSearch,
		FreeModelsOnly:   body.FreeModelsOnly,
		NoReasoning:      body.NoReasoning,
		ImageConfig:      toCanonicalImageConfig(body.ImageConfig),
		Plugins:          toCanonicalPlugins(body.Plugins),
		Source:           r.Header.Get("x-source"),
		UserAgent:        r.Header.Get("User-Agent"),
		NoFallback:       r.Header.Get("x-no-fallback") == "true",
		DebugMode:        forceDebug || r.Header.Get("x-debug") == "true",
		ReceivedAt:       time.Now(),
	}

	if err := validateRequestSchemas(req); err != nil {
		return normalizedEnvelope{}, gwerrors.InvalidParameters(err.Error())
	}

	return normalizedEnvelope{
		Request:           req,
		RequestedModelID:  modelID,
		RequestedProvider: providerID,
		IsAuto:            isAuto,
		IsCustom:          isCustom,
		NoFallback:        req.NoFallback,
		DebugMode:         req.DebugMode,
		Source:            req.Source,
		WebSearchTool:     webSearch,
	}, nil
}

// splitModelIdentifier parses "[provider/]model" per spec.md §4.1, treating
// the bare values "auto" and "custom" specially.
func splitModelIdentifier(raw string) (providerID, modelID string, isAuto, isCustom bool) {
	if raw == "auto" {
		return "", "auto", true, false
	}
	if raw == "custom" {
		return "custom", "", false, true
	}
	if idx := strings.IndexByte(raw, '/'); idx > 0 {
		providerID, modelID = raw[:idx], raw[idx+1:]
		if providerID == "custom" {
			isCustom = true
		}
		return providerID, modelID, false, isCustom
	}
	return "", raw, false, false
}

func randomID() string {
	buf := make([]byte, 20)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func decodeDataURL(url string) (model.ImageFormat, []byte, bool) {
	const prefix = "data:image/"
	if !strings.HasPrefix(url, prefix) {
		return "", nil, false
	}
	rest := url[len(prefix):]
	semi := strings.IndexByte(rest, ';')
	if semi < 0 {
		return "", nil, false
	}
	format := model.ImageFormat(rest[:semi])
	b64idx := strings.Index(rest, "base64,")
	if b64idx < 0 {
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(rest[b64idx+len("base64,"):])
	if err != nil {
		return "", nil, false
	}
	return format, data, true
}
