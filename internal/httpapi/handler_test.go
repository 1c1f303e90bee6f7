package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/routing"
)

// TestIsEmptyResponseBoundary verifies spec.md §7's empty-response
// reclassification boundary: a content_filter finish is never reclassified
// as empty even with zero content, while any other zero-content finish is.
func TestIsEmptyResponseBoundary(t *testing.T) {
	require.True(t, isEmptyResponse(model.Response{StopReason: model.StopReasonStop}))
	require.False(t, isEmptyResponse(model.Response{StopReason: model.StopReasonContentFilter}))
	require.False(t, isEmptyResponse(model.Response{
		StopReason: model.StopReasonToolCalls,
		ToolCalls:  []model.ToolUsePart{{ID: "call_1"}},
	}))
	require.False(t, isEmptyResponse(model.Response{
		StopReason: model.StopReasonStop,
		Usage:      model.TokenUsage{TotalTokens: 1},
	}))
	require.False(t, isEmptyResponse(model.Response{
		StopReason: model.StopReasonStop,
		Content:    []model.Part{model.TextPart{Text: "x"}},
	}))
}

// TestAccumulateUsageSumsDeltas verifies spec.md §8 invariant 4: accumulated
// streaming usage is the sum of every usage delta observed.
func TestAccumulateUsageSumsDeltas(t *testing.T) {
	acc := model.TokenUsage{}
	acc = accumulate(acc, model.TokenUsage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12})
	acc = accumulate(acc, model.TokenUsage{OutputTokens: 3, TotalTokens: 3, CacheReadTokens: 1})
	require.Equal(t, model.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, CacheReadTokens: 1}, acc)
}

func TestMappingForFallsBackToOriginalMappingWhenUnknownProvider(t *testing.T) {
	decision := routing.Decision{
		Model: model.ModelDefinition{
			ID:        "claude-sonnet-4-5",
			Providers: []model.ProviderMapping{{ProviderID: "anthropic"}},
		},
		Mapping: model.ProviderMapping{ProviderID: "anthropic"},
	}
	got := mappingFor(decision, "nonexistent")
	require.Equal(t, "anthropic", got.ProviderID)
}

func TestMappingForResolvesKnownProvider(t *testing.T) {
	decision := routing.Decision{
		Model: model.ModelDefinition{
			ID: "claude-sonnet-4-5",
			Providers: []model.ProviderMapping{
				{ProviderID: "anthropic"},
				{ProviderID: "bedrock"},
			},
		},
		Mapping: model.ProviderMapping{ProviderID: "anthropic"},
	}
	got := mappingFor(decision, "bedrock")
	require.Equal(t, "bedrock", got.ProviderID)
}

func TestContainsStr(t *testing.T) {
	require.True(t, containsStr([]string{"a", "b"}, "b"))
	require.False(t, containsStr([]string{"a", "b"}, "c"))
}

func TestBearerTokenPrefersAPIKeyHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("x-api-key", "sk-direct")
	r.Header.Set("Authorization", "Bearer sk-bearer")
	require.Equal(t, "sk-direct", bearerToken(r))
}

func TestBearerTokenFallsBackToAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer sk-bearer")
	require.Equal(t, "sk-bearer", bearerToken(r))
}

func TestBearerTokenEmptyWhenNeitherHeaderSet(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	require.Empty(t, bearerToken(r))
}
