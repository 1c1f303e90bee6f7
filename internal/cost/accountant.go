// Package cost implements the Cost Accountant (C11): converts usage
// counters and a provider mapping's pricing fields into a full cost
// breakdown, grounded directly on spec.md §4.11.
package cost

import (
	"context"
	"strings"

	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/routing"
)

// imageInputTokenEquivalent is the per-input-image token count added when
// a provider's usage payload excludes image tokens from the prompt count
// (spec.md §4.11: "the accountant adds ~560 tokens per input image for
// those").
const imageInputTokenEquivalent = 560

// dataStorageCostPerMillionTokens is the fixed price charged for retained
// content, applied only when RetentionLevel is "retain" (spec.md §4.11:
// "fixed price per million tokens stored").
const dataStorageCostPerMillionTokens = 0.10

// webSearchPricePerCall is the flat per-invocation price for the built-in
// web_search tool, billed regardless of provider since it is a gateway-side
// add-on rather than a native provider capability (spec.md §4.11's
// web_search_cost output field).
const webSearchPricePerCall = 0.01

// Breakdown is the full per-request cost accounting output (spec.md
// §4.11's output field list).
type Breakdown struct {
	InputCost        float64
	OutputCost       float64
	CachedInputCost  float64
	RequestCost      float64
	WebSearchCost    float64
	ImageInputCost   float64
	ImageOutputCost  float64
	DataStorageCost  float64
	TotalCost        float64
	PromptTokens     int
	CompletionTokens int
	EstimatedCost    bool
	Discount         float64
	PricingTier      string
}

// Input bundles everything the accountant needs for one request.
type Input struct {
	Usage                        model.TokenUsage
	UpstreamPromptTokensReported bool
	PromptText                   string // used for tokenizer-fallback estimation
	Family                       string
	PricingTier                  string
	Mapping                      model.ProviderMapping
	ImageInputCount              int
	ImageOutputCount             int
	WebSearchCount               int
	ProviderExcludesImageTokens  bool
	RetentionLevel               model.RetentionLevel
	Discount                     float64
	Canceled                     bool
	BillCancelledRequests        bool
	WebSearchWasActive           bool
}

// Compute produces the cost Breakdown for one completed or canceled
// request.
func Compute(in Input) Breakdown {
	if in.Canceled && !in.BillCancelledRequests {
		// spec.md §4.11: "when false, canceled attempts store zero cost".
		return Breakdown{PricingTier: in.PricingTier}
	}

	promptTokens := in.Usage.InputTokens
	estimated := false
	if !in.UpstreamPromptTokensReported || promptTokens == 0 {
		promptTokens = estimateTokens(in.PromptText, in.Family)
		estimated = true
	}
	if in.ProviderExcludesImageTokens {
		promptTokens += in.ImageInputCount * imageInputTokenEquivalent
	}

	if in.Canceled {
		// spec.md §4.11: "when true, prompt-token cost (and 1 web-search
		// unit if the tool was active) is billed".
		b := Breakdown{
			PromptTokens:  promptTokens,
			EstimatedCost: estimated,
			Discount:      in.Discount,
			PricingTier:   in.PricingTier,
			InputCost:     perMillion(promptTokens, in.Mapping.InputPrice),
		}
		if in.WebSearchWasActive {
			b.WebSearchCost = webSearchPricePerCall
		}
		b.TotalCost = b.InputCost + b.WebSearchCost
		return discountComponents(b, in.Discount)
	}

	completionTokens := in.Usage.OutputTokens

	b := Breakdown{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		EstimatedCost:    estimated,
		Discount:         in.Discount,
		PricingTier:      in.PricingTier,
	}

	b.InputCost = perMillion(promptTokens, in.Mapping.InputPrice)
	b.OutputCost = perMillion(completionTokens, in.Mapping.OutputPrice)
	b.CachedInputCost = perMillion(in.Usage.CacheReadTokens, in.Mapping.CachedInputPrice)
	b.ImageInputCost = float64(in.ImageInputCount) * in.Mapping.ImageInputPrice
	b.ImageOutputCost = float64(in.ImageOutputCount) * in.Mapping.ImageOutputPrice
	b.WebSearchCost = float64(in.WebSearchCount) * webSearchPricePerCall

	if in.RetentionLevel == model.RetentionLevelRetain {
		totalStored := promptTokens + completionTokens
		b.DataStorageCost = perMillion(totalStored, dataStorageCostPerMillionTokens)
	}

	b.RequestCost = in.Mapping.RequestPrice
	b.TotalCost = b.InputCost + b.OutputCost + b.CachedInputCost + b.RequestCost +
		b.WebSearchCost + b.ImageInputCost + b.ImageOutputCost + b.DataStorageCost

	return discountComponents(b, in.Discount)
}

// discountComponents reduces each price component by factor (1-d),
// excluding d values outside (0,1) (spec.md §4.11).
func discountComponents(b Breakdown, d float64) Breakdown {
	if d <= 0 || d >= 1 {
		return b
	}
	factor := 1 - d
	b.InputCost *= factor
	b.OutputCost *= factor
	b.CachedInputCost *= factor
	b.RequestCost *= factor
	b.WebSearchCost *= factor
	b.ImageInputCost *= factor
	b.ImageOutputCost *= factor
	b.DataStorageCost *= factor
	b.TotalCost = b.InputCost + b.OutputCost + b.CachedInputCost + b.RequestCost +
		b.WebSearchCost + b.ImageInputCost + b.ImageOutputCost + b.DataStorageCost
	return b
}

// Savings computes the amount saved by a discount relative to the
// undiscounted price (spec.md §4.11: "savings = original x d / (1-d)").
func Savings(discountedTotal, d float64) float64 {
	if d <= 0 || d >= 1 {
		return 0
	}
	return discountedTotal * d / (1 - d)
}

func perMillion(tokens int, pricePerMillion float64) float64 {
	return float64(tokens) / 1_000_000 * pricePerMillion
}

// familyEstimators holds tokenizer-specific estimators keyed by model
// family, consulted before the chars/4 default (spec.md §4.11 and
// SPEC_FULL.md's Open Question resolution: "chars/4 default, with a
// per-family hook point").
var familyEstimators = map[string]func(string) int{}

// RegisterFamilyEstimator installs a tokenizer-specific estimator for a
// model family, overriding the chars/4 default.
func RegisterFamilyEstimator(family string, estimator func(string) int) {
	familyEstimators[strings.ToLower(family)] = estimator
}

func estimateTokens(text, family string) int {
	if fn, ok := familyEstimators[strings.ToLower(family)]; ok {
		return fn(text)
	}
	return len(text) / 4
}

// ReportKeyHealth is the fire-and-forget collaboration with C5's health
// store on upstream failure (spec.md §4.11: "On upstream failure, reports
// health to the env-pool key"). Errors are intentionally swallowed by the
// caller since this is best-effort bookkeeping, not part of the request's
// success path.
func ReportKeyHealth(ctx context.Context, store routing.HealthStore, modelID, providerID string, succeeded bool, latencyMS float64) error {
	return store.RecordOutcome(ctx, modelID, providerID, succeeded, latencyMS)
}
