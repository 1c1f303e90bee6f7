package model

import "time"

// ProjectMode controls which credential sources a project's keys are
// resolved against (spec.md §3, Principal).
type ProjectMode string

const (
	ProjectModeAPIKeys ProjectMode = "api-keys"
	ProjectModeCredits ProjectMode = "credits"
	ProjectModeHybrid  ProjectMode = "hybrid"
)

// RetentionLevel controls whether request/response payloads are persisted.
type RetentionLevel string

const (
	RetentionLevelNone   RetentionLevel = "none"
	RetentionLevelRetain RetentionLevel = "retain"
)

// APIKey is the caller-presented credential, scoped to one project.
type APIKey struct {
	ID         string
	Status     string // "active" | "inactive" | ...
	UsageLimit float64
	Usage      float64
	ProjectID  string
	IAMAllowedProviders []string
}

// Active reports whether the key can be used to authenticate a request.
func (k APIKey) Active() bool { return k.Status == "active" }

// OverLimit reports whether usage has reached or exceeded the usage limit.
func (k APIKey) OverLimit() bool { return k.UsageLimit > 0 && k.Usage >= k.UsageLimit }

// Project groups API keys under a credential-resolution mode.
type Project struct {
	ID     string
	Mode   ProjectMode
	Status string // "active" | "deleted" | ...
	OrgID  string
}

// Deleted reports whether the project has been archived.
func (p Project) Deleted() bool { return p.Status == "deleted" }

// Organization is the billing/plan owner of one or more projects.
type Organization struct {
	ID                      string
	Credits                 float64
	Plan                    string // "free" | "pro" | "enterprise" | ...
	DevPlan                 string // "none" | name of subsidy plan
	DevPlanCreditsLimit     float64
	DevPlanCreditsUsed      float64
	DevPlanCreditsExpiresAt time.Time
	RetentionLevel          RetentionLevel
	IsPersonal              bool
	DevPlanAllowAllModels   bool
}

// RetentionCreditBalance returns credits + (dev_plan_limit − dev_plan_used),
// the quantity the retention gate (spec.md §4.2) requires to be > 0.
func (o Organization) RetentionCreditBalance() float64 {
	return o.Credits + (o.DevPlanCreditsLimit - o.DevPlanCreditsUsed)
}

// Principal is the fully resolved caller identity for one request
// (spec.md §3). Loaded once per request; never mutated in-path.
type Principal struct {
	APIKey APIKey
	Project Project
	Org     Organization
}

// ProviderMapping is one (model, provider) entry in the Model Definition's
// providers list (spec.md §3).
type ProviderMapping struct {
	ProviderID          string
	ModelName           string
	InputPrice          float64
	OutputPrice         float64
	CachedInputPrice    float64
	RequestPrice        float64
	ImageInputPrice     float64
	ImageOutputPrice    float64
	ContextSize         int
	MaxOutput           int
	Vision              bool
	Tools               bool
	Reasoning           bool
	ReasoningMaxTokens  bool
	JSONOutput          bool
	JSONOutputSchema    bool
	Streaming           bool
	WebSearch           bool
	ImageGenerations    bool
	SupportedParameters []string
	Stability           string
	DeprecatedAt        *time.Time
	DeactivatedAt       *time.Time
	Discount            float64
}

// Eligible reports whether the mapping may be selected for routing at time
// now (spec.md §3: "not deactivated and, unless explicitly requested, not
// deprecated").
func (m ProviderMapping) Eligible(now time.Time, allowDeprecated bool) bool {
	if m.DeactivatedAt != nil && !m.DeactivatedAt.After(now) {
		return false
	}
	if !allowDeprecated && m.DeprecatedAt != nil && !m.DeprecatedAt.After(now) {
		return false
	}
	return true
}

// SupportsParameter reports whether the mapping advertises support for a
// sampling parameter (used to strip unsupported fields in C6).
func (m ProviderMapping) SupportsParameter(name string) bool {
	for _, p := range m.SupportedParameters {
		if p == name {
			return true
		}
	}
	return false
}

// ModelDefinition is one model entry in the read-only pricing/capability
// catalog (spec.md §3).
type ModelDefinition struct {
	ID        string
	Family    string
	Free      bool
	Output    []string // modalities, e.g. "text", "image"
	Providers []ProviderMapping
}

// ProviderMapping looks up the mapping for a given provider id.
func (d ModelDefinition) ProviderMapping(providerID string) (ProviderMapping, bool) {
	for _, p := range d.Providers {
		if p.ProviderID == providerID {
			return p, true
		}
	}
	return ProviderMapping{}, false
}

// SelectionReason names why a particular provider was chosen by C5.
type SelectionReason string

const (
	SelectionReasonCheapestAvailable      SelectionReason = "cheapest-available"
	SelectionReasonLowUptimeFallback      SelectionReason = "low-uptime-fallback"
	SelectionReasonDirectProviderSpecified SelectionReason = "direct-provider-specified"
	SelectionReasonSingleProviderAvailable SelectionReason = "single-provider-available"
	SelectionReasonFallbackFirstAvailable SelectionReason = "fallback-first-available"
)

// ProviderScore is one candidate's scoring row in Routing Metadata.
type ProviderScore struct {
	ProviderID string
	Score      float64
	Price      float64
	Uptime     float64
	Latency    float64
	Throughput float64
	Priority   int
	Failed     bool
	StatusCode int
	ErrorType  ErrorType
}

// RoutingMetadata is the per-request routing record built by C5 and
// enriched by C10 on every retry (spec.md §3).
type RoutingMetadata struct {
	AvailableProviders []string
	SelectedProvider   string
	SelectedModel       string
	SelectionReason    SelectionReason
	ProviderScores     []ProviderScore
	Routing            []AttemptRecord
	NoFallback         bool
}

// ErrorType classifies an attempt's failure for logging and retry
// decisions (spec.md §3, Attempt Record).
type ErrorType string

const (
	ErrorTypeNone          ErrorType = "none"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeServerError   ErrorType = "server_error"
	ErrorTypeClientError   ErrorType = "client_error"
	ErrorTypeContentFilter ErrorType = "content_filter"
	ErrorTypeOther         ErrorType = "other"
)

// AttemptRecord is one provider dispatch attempt within a (possibly
// retried) request (spec.md §3).
type AttemptRecord struct {
	Provider  string
	Model     string
	StatusCode int
	ErrorType ErrorType
	Succeeded bool
}

// StreamingState is the single-task-owned mutable accumulator for one
// in-flight streaming response (spec.md §3). Owned exclusively by the
// Streaming Parser; never shared across goroutines.
type StreamingState struct {
	EventID               int
	AccumulatedText       string
	AccumulatedReasoning  string
	AccumulatedToolCalls  []ToolUsePart
	Tokens                TokenUsage
	FinishReason          StopReason
	ImageByteSize         int
	OutputImageCount      int
	WebSearchCount        int
	TTFT                  time.Duration
	TTFTReasoning         time.Duration
	RawUpstreamBufferSize int
	CacheChunks           []CachedChunk
}

// CachedChunk is one captured streaming event, persisted only when the
// stream completes successfully (spec.md §3, Cache Entry streaming).
type CachedChunk struct {
	Data               string
	EventID            int
	Event              string
	RelativeTimestampMS int64
}

// UnaryCacheEntry is the value stored for a content-addressed unary cache
// hit (spec.md §3).
type UnaryCacheEntry struct {
	Response Response
	Usage    TokenUsage
}

// StreamingCacheMetadata accompanies a StreamingCacheEntry.
type StreamingCacheMetadata struct {
	Model        string
	Provider     string
	FinishReason StopReason
	DurationMS   int64
	Completed    bool
}

// StreamingCacheEntry is the value stored for a content-addressed streaming
// cache hit (spec.md §3). Only persisted when Metadata.Completed is true
// and the stream ended without error.
type StreamingCacheEntry struct {
	Chunks   []CachedChunk
	Metadata StreamingCacheMetadata
}
