package httpapi

import (
	"context"
	"net/http"

	"goa.design/llmgateway/internal/cache"
	"goa.design/llmgateway/internal/capability"
	"goa.design/llmgateway/internal/catalog"
	"goa.design/llmgateway/internal/config"
	"goa.design/llmgateway/internal/guardrail"
	"goa.design/llmgateway/internal/logstore"
	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/principal"
	"goa.design/llmgateway/internal/providerctx"
	"goa.design/llmgateway/internal/routing"
	"goa.design/llmgateway/internal/telemetry"
	"goa.design/llmgateway/internal/upstream"
)

// ProviderVisibility resolves which providers an organization can reach in
// api-keys/hybrid mode (spec.md §4.5a: "those with stored keys for the
// org"). The store backing it is out of scope per spec.md §1; only this
// contract is used.
type ProviderVisibility interface {
	StoredKeyProviders(ctx context.Context, orgID string) ([]string, error)
}

// Server wires every gateway component into the single HTTP surface named
// in spec.md §6, generalized from features/model/gateway/server.go's
// Server/Option pattern (there built around one provider client; here
// around the full C1-C12 pipeline).
type Server struct {
	cfg config.Config

	principals  *principal.Resolver
	guardrail   *guardrail.Gate
	routing     *routing.Engine
	health      routing.HealthStore
	providerCtx *providerctx.Resolver
	executor    *upstream.Executor
	cacheStore  cache.Store
	logger      *logstore.Logger
	telemetry   telemetry.Logger
	catalog     catalog.Catalog

	visibility       ProviderVisibility
	envPoolProviders []string

	mux *http.ServeMux
}

// Option configures a Server at construction time, mirroring the teacher's
// functional-option convention.
type Option func(*Server)

// WithCache attaches the Cache Layer (C7). Omitting it disables caching
// entirely, which is a valid deployment (spec.md §4.7 describes it as an
// optional fast path, not a correctness requirement).
func WithCache(store cache.Store) Option {
	return func(s *Server) { s.cacheStore = store }
}

// New constructs a Server with every mandatory collaborator wired.
func New(
	cfg config.Config,
	cat catalog.Catalog,
	health routing.HealthStore,
	principals *principal.Resolver,
	gate *guardrail.Gate,
	pctx *providerctx.Resolver,
	executor *upstream.Executor,
	logger *logstore.Logger,
	tel telemetry.Logger,
	visibility ProviderVisibility,
	opts ...Option,
) *Server {
	s := &Server{
		cfg:              cfg,
		catalog:          cat,
		health:           health,
		principals:       principals,
		guardrail:        gate,
		routing:          routing.New(cat, health),
		providerCtx:      pctx,
		executor:         executor,
		logger:           logger,
		telemetry:        tel,
		visibility:       visibility,
		envPoolProviders: providerKeys(cfg.ProviderTokenPools),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func providerKeys(pools map[string][]string) []string {
	out := make([]string, 0, len(pools))
	for k := range pools {
		out = append(out, k)
	}
	return out
}

// requirementsFrom builds a capability.Requirements value from a
// normalized envelope, estimating prompt size with the char_count/4
// tokenizer fallback named in spec.md §4.5a.
func requirementsFrom(env normalizedEnvelope) capability.Requirements {
	req := env.Request

	promptChars := 0
	hasImages := false
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			switch part := p.(type) {
			case model.TextPart:
				promptChars += len(part.Text)
			case model.ImagePart:
				hasImages = true
			}
		}
	}
	toolsTokens := 0
	for _, t := range req.Tools {
		promptChars += len(t.Name) + len(t.Description)
		toolsTokens += (len(t.Description) + len(t.InputSchema)) / 4
	}

	maxTokens := 4096
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	return capability.Requirements{
		EstimatedPromptTokens: promptChars/4 + toolsTokens,
		ToolsTokens:           toolsTokens,
		MaxTokens:             maxTokens,
		NoReasoning:           req.NoReasoning,
		ReasoningEffortSet:    req.Reasoning != nil && req.Reasoning.Effort != "",
		ReasoningMaxTokensSet: req.Reasoning != nil && req.Reasoning.MaxTokens > 0,
		ToolsRequested:        len(req.Tools) > 0,
		WebSearchRequested:    req.WebSearch,
		ResponseFormat:        req.ResponseFormat,
		HasImages:             hasImages,
		FreeModelsOnly:        req.FreeModelsOnly,
	}
}
