package capability_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/capability"
	"goa.design/llmgateway/internal/model"
)

func baseMapping() model.ProviderMapping {
	return model.ProviderMapping{
		ProviderID:  "openai",
		ContextSize: 128000,
		Tools:       true,
		JSONOutput:  true,
	}
}

// TestCapabilityMismatchScenario verifies spec.md §8 concrete scenario 2:
// model="gpt-4o", response_format=json_schema, provider lacks
// jsonOutputSchema -> no eligible mapping, first missing capability named.
func TestCapabilityMismatchScenario(t *testing.T) {
	def := model.ModelDefinition{
		ID:        "gpt-4o",
		Providers: []model.ProviderMapping{baseMapping()}, // JSONOutputSchema left false
	}
	req := capability.Requirements{
		ResponseFormat: &model.ResponseFormat{Type: model.ResponseFormatJSONSchema},
	}

	eligible, missing := capability.Eligible(def, req, time.Now())
	require.Empty(t, eligible)
	require.Equal(t, capability.MissingCapability("json_output_schema"), missing)
}

func TestEligibleFiltersDeactivatedMapping(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	m := baseMapping()
	m.DeactivatedAt = &past
	def := model.ModelDefinition{ID: "m", Providers: []model.ProviderMapping{m}}

	eligible, missing := capability.Eligible(def, capability.Requirements{}, time.Now())
	require.Empty(t, eligible)
	require.Equal(t, capability.MissingCapability("active_mapping"), missing)
}

func TestEligibleHonorsIAMAllowlist(t *testing.T) {
	m1 := baseMapping()
	m1.ProviderID = "openai"
	m2 := baseMapping()
	m2.ProviderID = "anthropic"
	def := model.ModelDefinition{ID: "m", Providers: []model.ProviderMapping{m1, m2}}

	eligible, missing := capability.Eligible(def, capability.Requirements{
		IAMAllowedProviders: []string{"anthropic"},
	}, time.Now())
	require.Empty(t, missing)
	require.Len(t, eligible, 1)
	require.Equal(t, "anthropic", eligible[0].ProviderID)
}

// TestContextSizeBoundary verifies the §8 boundary: prompt exactly at
// context_size excludes the mapping from auto-selection; one token less
// includes it.
func TestContextSizeBoundary(t *testing.T) {
	m := baseMapping()
	m.ContextSize = 1000
	def := model.ModelDefinition{ID: "m", Providers: []model.ProviderMapping{m}}

	atLimit := capability.Requirements{EstimatedPromptTokens: 1000, MaxTokens: 1}
	_, missing := capability.Eligible(def, atLimit, time.Now())
	require.Equal(t, capability.MissingCapability("context_size"), missing)

	underLimit := capability.Requirements{EstimatedPromptTokens: 999, MaxTokens: 1}
	eligible, missing := capability.Eligible(def, underLimit, time.Now())
	require.Empty(t, missing)
	require.Len(t, eligible, 1)
}

func TestEligibleAutoAllowlistVsFreeModelsOnly(t *testing.T) {
	m := baseMapping()
	def := model.ModelDefinition{ID: "gpt-5-nano", Free: false, Providers: []model.ProviderMapping{m}}

	// On the static auto allowlist but not free -> excluded when
	// FreeModelsOnly is requested (spec.md §9 open question: honor
	// free_models_only and ignore the allowlist when both are set).
	_, missing := capability.Eligible(def, capability.Requirements{
		IsAutoSelection: true,
		FreeModelsOnly:  true,
	}, time.Now())
	require.Equal(t, capability.MissingCapability("free_models_only"), missing)

	// gpt-5-nano is on the static allowlist, so plain auto selection
	// (no free_models_only) succeeds.
	eligible, missing := capability.Eligible(def, capability.Requirements{
		IsAutoSelection: true,
	}, time.Now())
	require.Empty(t, missing)
	require.Len(t, eligible, 1)
}
