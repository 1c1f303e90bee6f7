package routing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/capability"
	"goa.design/llmgateway/internal/catalog"
	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/routing"
)

func nanoDef() model.ModelDefinition {
	return model.ModelDefinition{
		ID: "gpt-5-nano", Family: "openai", Free: true,
		Providers: []model.ProviderMapping{{
			ProviderID: "openai", ContextSize: 128000, Tools: true,
			InputPrice: 0.05, OutputPrice: 0.4,
		}},
	}
}

func sonnetDef() model.ModelDefinition {
	return model.ModelDefinition{
		ID: "claude-sonnet-4-5", Family: "anthropic",
		Providers: []model.ProviderMapping{
			{ProviderID: "anthropic", ContextSize: 200000, Tools: true, InputPrice: 3, OutputPrice: 15},
			{ProviderID: "bedrock", ContextSize: 200000, Tools: true, InputPrice: 3, OutputPrice: 15},
		},
	}
}

// TestUsedProviderIsAlwaysEligible verifies invariant 1: any used_provider
// in the response/log is a member of the eligible set produced by C4 at
// request time.
func TestUsedProviderIsAlwaysEligible(t *testing.T) {
	cat := catalog.NewStatic([]model.ModelDefinition{nanoDef(), sonnetDef()})
	engine := routing.New(cat, routing.NewInMemoryHealthStore())

	decision, err := engine.SelectAuto(context.Background(), routing.AutoInput{
		Requirements:     capability.Requirements{},
		VisibleProviders: []string{"openai", "anthropic", "bedrock"},
		Now:              time.Now(),
	})
	require.NoError(t, err)

	eligible, _ := capability.Eligible(decision.Model, capability.Requirements{IsAutoSelection: true}, time.Now())
	var found bool
	for _, m := range eligible {
		if m.ProviderID == decision.Metadata.SelectedProvider {
			found = true
		}
	}
	require.True(t, found, "selected provider %q must be a member of the eligible set", decision.Metadata.SelectedProvider)
}

// TestAutoRoutingTextOnlyScenario verifies spec.md §8 concrete scenario 1.
func TestAutoRoutingTextOnlyScenario(t *testing.T) {
	cat := catalog.NewStatic([]model.ModelDefinition{nanoDef()})
	engine := routing.New(cat, routing.NewInMemoryHealthStore())

	decision, err := engine.SelectAuto(context.Background(), routing.AutoInput{
		VisibleProviders: []string{"openai"},
		Now:              time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "openai", decision.Metadata.SelectedProvider)
	require.Equal(t, "gpt-5-nano", decision.Metadata.SelectedModel)
	require.Equal(t, model.SelectionReasonCheapestAvailable, decision.Metadata.SelectionReason)
}

func TestSelectAutoFallsBackWhenNothingEligible(t *testing.T) {
	cat := catalog.NewStatic([]model.ModelDefinition{nanoDef()})
	engine := routing.New(cat, routing.NewInMemoryHealthStore())

	decision, err := engine.SelectAuto(context.Background(), routing.AutoInput{
		VisibleProviders: []string{"some-unconfigured-provider"},
		Now:              time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, model.SelectionReasonFallbackFirstAvailable, decision.Metadata.SelectionReason)
	require.Equal(t, "gpt-5-nano", decision.Metadata.SelectedModel)
}

func TestSelectDirectFallsBackOnLowUptime(t *testing.T) {
	cat := catalog.NewStatic([]model.ModelDefinition{sonnetDef()})
	health := routing.NewInMemoryHealthStore()
	health.Set("claude-sonnet-4-5", "anthropic", routing.Metrics{Uptime: 50})
	health.Set("claude-sonnet-4-5", "bedrock", routing.Metrics{Uptime: 99})
	engine := routing.New(cat, health)

	def, _ := cat.ModelDefinition("claude-sonnet-4-5")
	decision, err := engine.SelectDirect(context.Background(), routing.DirectInput{
		Def:        def,
		ProviderID: "anthropic",
		Now:        time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, model.SelectionReasonLowUptimeFallback, decision.Metadata.SelectionReason)
	require.Equal(t, "bedrock", decision.Metadata.SelectedProvider)
}

func TestSelectDirectNoFallbackStaysOnRequestedProvider(t *testing.T) {
	cat := catalog.NewStatic([]model.ModelDefinition{sonnetDef()})
	health := routing.NewInMemoryHealthStore()
	health.Set("claude-sonnet-4-5", "anthropic", routing.Metrics{Uptime: 10})
	health.Set("claude-sonnet-4-5", "bedrock", routing.Metrics{Uptime: 99})
	engine := routing.New(cat, health)

	def, _ := cat.ModelDefinition("claude-sonnet-4-5")
	decision, err := engine.SelectDirect(context.Background(), routing.DirectInput{
		Def:        def,
		ProviderID: "anthropic",
		NoFallback: true,
		Now:        time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "anthropic", decision.Metadata.SelectedProvider)
	require.True(t, decision.Metadata.NoFallback)
}
