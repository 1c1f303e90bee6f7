package cost_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/cost"
	"goa.design/llmgateway/internal/model"
)

// TestSavingsFormula verifies invariant 9: discount savings = cost *
// discount / (1 - discount) when discount is in (0,1), and excluded
// (zero) otherwise.
func TestSavingsFormula(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("savings matches the closed-form formula inside (0,1)", prop.ForAll(
		func(discountedTotal float64, discountPct int) bool {
			d := float64(discountPct) / 1000.0 // 0.001 .. 0.999
			got := cost.Savings(discountedTotal, d)
			want := discountedTotal * d / (1 - d)
			return floatsClose(got, want, 1e-9)
		},
		gen.Float64Range(0, 1000),
		gen.IntRange(1, 999),
	))

	properties.Property("discount outside (0,1) yields zero savings", prop.ForAll(
		func(discountedTotal float64, d float64) bool {
			return cost.Savings(discountedTotal, d) == 0
		},
		gen.Float64Range(0, 1000),
		gen.OneConstOf(0.0, 1.0, -0.5, 1.5),
	))

	properties.TestingRun(t)
}

func TestDiscountSavingsScenario(t *testing.T) {
	// spec.md §8 concrete scenario 6: two logs with (cost=0.8, discount=0.2)
	// and (cost=0.5, discount=0.5) aggregate to 0.7 within 1e-6.
	s1 := cost.Savings(0.8, 0.2)
	s2 := cost.Savings(0.5, 0.5)
	require.InDelta(t, 0.7, s1+s2, 1e-6)
}

func TestComputeCancelledBillingPolicy(t *testing.T) {
	mapping := model.ProviderMapping{InputPrice: 1.0}

	t.Run("policy disabled stores zero cost", func(t *testing.T) {
		b := cost.Compute(cost.Input{
			Canceled:              true,
			BillCancelledRequests: false,
			Mapping:               mapping,
			PromptText:            "some prompt text here",
		})
		require.Zero(t, b.TotalCost)
	})

	t.Run("policy enabled bills prompt-token estimate", func(t *testing.T) {
		b := cost.Compute(cost.Input{
			Canceled:              true,
			BillCancelledRequests: true,
			Mapping:               mapping,
			PromptText:            "some prompt text here",
		})
		require.Greater(t, b.TotalCost, 0.0)
		require.True(t, b.EstimatedCost)
	})
}

func TestComputeDiscountAppliesToEveryComponent(t *testing.T) {
	mapping := model.ProviderMapping{
		InputPrice: 10, OutputPrice: 20, RequestPrice: 1,
	}
	undiscounted := cost.Compute(cost.Input{
		Usage:                        model.TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000},
		UpstreamPromptTokensReported: true,
		Mapping:                      mapping,
	})
	discounted := cost.Compute(cost.Input{
		Usage:                        model.TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000},
		UpstreamPromptTokensReported: true,
		Mapping:                      mapping,
		Discount:                     0.25,
	})
	require.InDelta(t, undiscounted.TotalCost*0.75, discounted.TotalCost, 1e-9)
}

func floatsClose(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}
