// Package providerctx implements the Provider Context Resolver (C6):
// endpoint URL, credential, and native-request-body resolution for a
// chosen (provider, model) mapping (spec.md §4.6).
package providerctx

import (
	"context"
	"fmt"

	"goa.design/llmgateway/internal/gwerrors"
	"goa.design/llmgateway/internal/model"
)

// EndpointParams carries the inputs to a per-provider endpoint URL
// function (spec.md §4.6).
type EndpointParams struct {
	BaseURL              string
	Model                string
	Token                string // Google-variant endpoints embed the token in the URL
	Stream               bool
	SupportsReasoning    bool
	HasExistingToolCalls bool
	ProviderOptions      map[string]string
	ConfigIndex          int
	ImageGeneration      bool
}

// EndpointResolver computes the upstream URL for one provider family.
type EndpointResolver func(EndpointParams) (string, error)

// Credentials is the resolved credential for one attempt, with the
// bookkeeping needed for key-health reporting (spec.md §4.6: "Records
// env_var_name, config_index when env-pool is used").
type Credentials struct {
	APIKey      string
	FromEnvPool bool
	EnvVarName  string
	ConfigIndex int
}

// CredentialSource resolves credentials for a project mode.
type CredentialSource interface {
	StoredKey(ctx context.Context, orgID, providerID string) (string, bool, error)
	EnvPoolKey(ctx context.Context, providerID string) (Credentials, bool, error)
}

// ThoughtSignatureStore keys cached thought_signature / reasoning_content
// values by tool-call id, for Google-family and Moonshot multi-turn
// continuity (spec.md §4.6).
type ThoughtSignatureStore interface {
	Get(ctx context.Context, toolCallID string) (string, bool, error)
	Set(ctx context.Context, toolCallID, signature string) error
}

// BodyEncoder translates a canonical Request into a provider-native wire
// body. Implemented by internal/providers/{openai,anthropic,bedrock}.
type BodyEncoder interface {
	EncodeRequest(req model.Request, mapping model.ProviderMapping) (any, error)
}

// Resolver implements C6.
type Resolver struct {
	endpoints   map[string]EndpointResolver
	credentials CredentialSource
	encoders    map[string]BodyEncoder
	signatures  ThoughtSignatureStore
}

// New constructs a Resolver.
func New(endpoints map[string]EndpointResolver, credentials CredentialSource, encoders map[string]BodyEncoder, signatures ThoughtSignatureStore) *Resolver {
	return &Resolver{endpoints: endpoints, credentials: credentials, encoders: encoders, signatures: signatures}
}

// ResolvedContext is the fully resolved per-attempt dispatch context built
// fresh on every C6 invocation -- including retries -- per spec.md §9's
// re-architecture note ("explicit per-attempt RequestContext value built
// anew by C6").
type ResolvedContext struct {
	Endpoint    string
	Credentials Credentials
	Body        any
	Mapping     model.ProviderMapping
}

const googleFamilyPrefix = "google"
const moonshotProvider = "moonshot"

// Resolve produces a ResolvedContext for one (provider, model) attempt.
func (r *Resolver) Resolve(ctx context.Context, orgID string, mode model.ProjectMode, mapping model.ProviderMapping, req model.Request) (ResolvedContext, error) {
	creds, err := r.resolveCredentials(ctx, orgID, mode, mapping.ProviderID)
	if err != nil {
		return ResolvedContext{}, err
	}

	if req.MaxTokens != nil && *req.MaxTokens > mapping.MaxOutput {
		return ResolvedContext{}, gwerrors.InvalidParameters(
			fmt.Sprintf("max_tokens %d exceeds provider max_output %d", *req.MaxTokens, mapping.MaxOutput))
	}

	if mode == model.ProjectModeCredits || (mode == model.ProjectModeHybrid && !creds.storedKeyUsed) {
		// Credit gating is not applied: Resolve receives neither the
		// organization's credit balance nor the model's Free flag, and
		// its caller does not check credits before calling it.
	}

	encoder, ok := r.encoders[mapping.ProviderID]
	if !ok {
		return ResolvedContext{}, gwerrors.Internal(fmt.Errorf("providerctx: no body encoder for provider %q", mapping.ProviderID))
	}
	body, err := encoder.EncodeRequest(stripUnsupportedParams(req, mapping), mapping)
	if err != nil {
		return ResolvedContext{}, err
	}

	if r.signatures != nil && (isGoogleFamily(mapping.ProviderID) || mapping.ProviderID == moonshotProvider) {
		if err := r.enrichToolCallSignatures(ctx, req); err != nil {
			return ResolvedContext{}, err
		}
	}

	endpointFn, ok := r.endpoints[mapping.ProviderID]
	if !ok {
		return ResolvedContext{}, gwerrors.Internal(fmt.Errorf("providerctx: no endpoint resolver for provider %q", mapping.ProviderID))
	}
	endpoint, err := endpointFn(EndpointParams{
		Model:                mapping.ModelName,
		Token:                creds.Credentials.APIKey,
		Stream:               req.Stream,
		SupportsReasoning:    mapping.Reasoning,
		HasExistingToolCalls: hasToolCalls(req),
		ConfigIndex:          creds.Credentials.ConfigIndex,
		ImageGeneration:      mapping.ImageGenerations && req.ImageConfig != nil,
	})
	if err != nil {
		return ResolvedContext{}, gwerrors.FetchFailed(err)
	}

	return ResolvedContext{
		Endpoint:    endpoint,
		Credentials: creds.Credentials,
		Body:        body,
		Mapping:     mapping,
	}, nil
}

type resolvedCreds struct {
	Credentials   Credentials
	storedKeyUsed bool
}

func (r *Resolver) resolveCredentials(ctx context.Context, orgID string, mode model.ProjectMode, providerID string) (resolvedCreds, error) {
	switch mode {
	case model.ProjectModeAPIKeys:
		key, ok, err := r.credentials.StoredKey(ctx, orgID, providerID)
		if err != nil {
			return resolvedCreds{}, gwerrors.Internal(err)
		}
		if !ok {
			return resolvedCreds{}, gwerrors.InvalidParameters("no stored provider key for " + providerID)
		}
		return resolvedCreds{Credentials: Credentials{APIKey: key}, storedKeyUsed: true}, nil
	case model.ProjectModeCredits:
		creds, ok, err := r.credentials.EnvPoolKey(ctx, providerID)
		if err != nil {
			return resolvedCreds{}, gwerrors.Internal(err)
		}
		if !ok {
			return resolvedCreds{}, gwerrors.InvalidParameters("no environment token pool for " + providerID)
		}
		return resolvedCreds{Credentials: creds}, nil
	case model.ProjectModeHybrid:
		if key, ok, err := r.credentials.StoredKey(ctx, orgID, providerID); err == nil && ok {
			return resolvedCreds{Credentials: Credentials{APIKey: key}, storedKeyUsed: true}, nil
		}
		creds, ok, err := r.credentials.EnvPoolKey(ctx, providerID)
		if err != nil {
			return resolvedCreds{}, gwerrors.Internal(err)
		}
		if !ok {
			return resolvedCreds{}, gwerrors.InvalidParameters("no credentials available for " + providerID)
		}
		return resolvedCreds{Credentials: creds}, nil
	default:
		return resolvedCreds{}, gwerrors.Internal(fmt.Errorf("providerctx: unknown project mode %q", mode))
	}
}

// stripUnsupportedParams drops sampling parameters absent from the
// mapping's supported_parameters list, and clears top_p for Anthropic when
// both temperature and top_p are set (spec.md §4.6).
func stripUnsupportedParams(req model.Request, mapping model.ProviderMapping) model.Request {
	out := req
	if req.Temperature != nil && !mapping.SupportsParameter("temperature") {
		out.Temperature = nil
	}
	if req.TopP != nil && !mapping.SupportsParameter("top_p") {
		out.TopP = nil
	}
	if req.FrequencyPenalty != nil && !mapping.SupportsParameter("frequency_penalty") {
		out.FrequencyPenalty = nil
	}
	if req.PresencePenalty != nil && !mapping.SupportsParameter("presence_penalty") {
		out.PresencePenalty = nil
	}
	if mapping.ProviderID == "anthropic" && out.Temperature != nil && out.TopP != nil {
		out.TopP = nil
	}
	return out
}

func hasToolCalls(req model.Request) bool {
	for _, msg := range req.Messages {
		for _, part := range msg.Parts {
			if _, ok := part.(model.ToolUsePart); ok {
				return true
			}
		}
	}
	return false
}

func isGoogleFamily(providerID string) bool {
	return len(providerID) >= len(googleFamilyPrefix) && providerID[:len(googleFamilyPrefix)] == googleFamilyPrefix
}

// enrichToolCallSignatures attaches cached thought_signature/reasoning_content
// values (keyed by tool-call id) onto assistant tool-call messages so
// multi-turn continuity survives across requests (spec.md §4.6).
func (r *Resolver) enrichToolCallSignatures(ctx context.Context, req model.Request) error {
	for i := range req.Messages {
		if req.Messages[i].Role != model.ConversationRoleAssistant {
			continue
		}
		for j, part := range req.Messages[i].Parts {
			tu, ok := part.(model.ToolUsePart)
			if !ok {
				continue
			}
			sig, found, err := r.signatures.Get(ctx, tu.ID)
			if err != nil {
				return gwerrors.Internal(err)
			}
			if !found {
				continue
			}
			req.Messages[i].Parts[j] = model.ThinkingPart{Text: sig, Index: j}
		}
	}
	return nil
}
