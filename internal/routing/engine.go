package routing

import (
	"context"
	"sort"
	"time"

	"goa.design/llmgateway/internal/capability"
	"goa.design/llmgateway/internal/catalog"
	"goa.design/llmgateway/internal/gwerrors"
	"goa.design/llmgateway/internal/model"
)

// fallbackModel is the hardcoded fallback for empty auto-route candidate
// sets (spec.md §4.5a: "otherwise falls back to openai/gpt-5-nano").
const (
	fallbackProvider = "openai"
	fallbackModel    = "gpt-5-nano"
)

const lowUptimeThreshold = 90.0
const demotedUptimeThreshold = 80.0

// VisibleProviders reports, for a project mode, which provider ids have a
// usable credential source (spec.md §4.5a). storedKeyProviders is the set
// with an org-stored key; envPoolProviders is the set with a server-side
// environment token pool.
func VisibleProviders(mode model.ProjectMode, storedKeyProviders, envPoolProviders []string) []string {
	switch mode {
	case model.ProjectModeAPIKeys:
		return storedKeyProviders
	case model.ProjectModeCredits:
		return envPoolProviders
	case model.ProjectModeHybrid:
		return union(storedKeyProviders, envPoolProviders)
	default:
		return nil
	}
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// Engine implements C5.
type Engine struct {
	catalog catalog.Catalog
	health  HealthStore
}

// New constructs a routing Engine.
func New(cat catalog.Catalog, health HealthStore) *Engine {
	return &Engine{catalog: cat, health: health}
}

// candidate pairs a model definition with one of its eligible provider
// mappings, for cross-model comparison in the auto branch.
type candidate struct {
	modelID string
	mapping model.ProviderMapping
}

// score computes the ProviderScore for one candidate, applying the
// uptime<80% demotion from spec.md §4.5 ("Scoring rule").
func (e *Engine) score(ctx context.Context, c candidate) model.ProviderScore {
	m, _ := e.health.Metrics(ctx, c.modelID, c.mapping.ProviderID)
	price := c.mapping.InputPrice + c.mapping.OutputPrice
	s := model.ProviderScore{
		ProviderID: c.mapping.ProviderID,
		Price:      price,
		Uptime:     m.Uptime,
		Latency:    m.Latency,
		Throughput: m.Throughput,
	}
	s.Score = rank(price, m.Uptime, m.Latency, m.Throughput)
	return s
}

// rank produces a single comparable number from the scoring tuple. Lower is
// better. Price dominates; demoted candidates (uptime<80%) are pushed to
// the back regardless of price.
func rank(price, uptime, latency, throughput float64) float64 {
	demotionPenalty := 0.0
	if uptime < demotedUptimeThreshold {
		demotionPenalty = 1e9
	}
	// Ties broken by higher uptime, then lower latency, then higher
	// throughput: encode as a weighted sum where price dominates by
	// magnitude and the tie-breakers only matter for equal prices.
	return demotionPenalty + price*1e6 - uptime*10 + latency - throughput*0.001
}

// sortScores orders candidates per the scoring rule: demoted candidates
// (uptime<80%) sort after all others; then price dominates; ties broken by
// higher uptime, then lower latency, then higher throughput.
func sortScores(scores []model.ProviderScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if aDemoted, bDemoted := a.Uptime < demotedUptimeThreshold, b.Uptime < demotedUptimeThreshold; aDemoted != bDemoted {
			return bDemoted
		}
		if a.Price != b.Price {
			return a.Price < b.Price
		}
		if a.Uptime != b.Uptime {
			return a.Uptime > b.Uptime
		}
		if a.Latency != b.Latency {
			return a.Latency < b.Latency
		}
		return a.Throughput > b.Throughput
	})
}

// Decision is the routing engine's output for one request.
type Decision struct {
	Metadata model.RoutingMetadata
	Model    model.ModelDefinition
	Mapping  model.ProviderMapping
}

// AutoInput carries the parameters needed for the model=="auto" branch.
type AutoInput struct {
	Requirements      capability.Requirements
	VisibleProviders  []string
	Now               time.Time
}

// SelectAuto implements spec.md §4.5(a).
func (e *Engine) SelectAuto(ctx context.Context, in AutoInput) (Decision, error) {
	var candidates []candidate
	for _, def := range e.catalog.All() {
		eligible, _ := capability.Eligible(def, withAutoFlag(in.Requirements), in.Now)
		for _, mapping := range eligible {
			if !containsStr(in.VisibleProviders, mapping.ProviderID) {
				continue
			}
			candidates = append(candidates, candidate{modelID: def.ID, mapping: mapping})
		}
	}

	if len(candidates) == 0 {
		if in.Requirements.FreeModelsOnly || in.Requirements.NoReasoning {
			return Decision{}, gwerrors.InvalidParameters("no eligible model satisfies free_models_only/no_reasoning constraints")
		}
		return e.fallbackDecision(ctx, in.Requirements)
	}

	scores := make([]model.ProviderScore, 0, len(candidates))
	byScore := make(map[string]candidate, len(candidates))
	for _, c := range candidates {
		s := e.score(ctx, c)
		scores = append(scores, s)
		byScore[c.mapping.ProviderID+"|"+c.modelID] = c
	}
	sortScores(scores)

	top := scores[0]
	var chosen candidate
	for _, c := range candidates {
		if c.mapping.ProviderID == top.ProviderID {
			chosen = c
			break
		}
	}
	def, _ := e.catalog.ModelDefinition(chosen.modelID)

	return Decision{
		Model:   def,
		Mapping: chosen.mapping,
		Metadata: model.RoutingMetadata{
			AvailableProviders: in.VisibleProviders,
			SelectedProvider:   chosen.mapping.ProviderID,
			SelectedModel:      chosen.modelID,
			SelectionReason:    model.SelectionReasonCheapestAvailable,
			ProviderScores:     scores,
		},
	}, nil
}

func withAutoFlag(r capability.Requirements) capability.Requirements {
	r.IsAutoSelection = true
	return r
}

func (e *Engine) fallbackDecision(ctx context.Context, req capability.Requirements) (Decision, error) {
	def, ok := e.catalog.ModelDefinition(fallbackModel)
	if !ok {
		return Decision{}, gwerrors.Internal(nil)
	}
	mapping, ok := def.ProviderMapping(fallbackProvider)
	if !ok {
		return Decision{}, gwerrors.Internal(nil)
	}
	return Decision{
		Model:   def,
		Mapping: mapping,
		Metadata: model.RoutingMetadata{
			SelectedProvider: fallbackProvider,
			SelectedModel:    fallbackModel,
			SelectionReason:  model.SelectionReasonFallbackFirstAvailable,
		},
	}, nil
}

// DirectInput carries the parameters for the direct-provider branch.
type DirectInput struct {
	Def          model.ModelDefinition
	ProviderID   string
	Requirements capability.Requirements
	NoFallback   bool
	Now          time.Time
}

// SelectDirect implements spec.md §4.5(b).
func (e *Engine) SelectDirect(ctx context.Context, in DirectInput) (Decision, error) {
	mapping, ok := in.Def.ProviderMapping(in.ProviderID)
	if !ok {
		return Decision{}, gwerrors.InvalidParameters("provider not available for model")
	}

	original := e.score(ctx, candidate{modelID: in.Def.ID, mapping: mapping})

	if in.NoFallback || original.Uptime >= lowUptimeThreshold {
		return Decision{
			Model:   in.Def,
			Mapping: mapping,
			Metadata: model.RoutingMetadata{
				SelectedProvider: in.ProviderID,
				SelectedModel:    in.Def.ID,
				SelectionReason:  model.SelectionReasonDirectProviderSpecified,
				ProviderScores:   []model.ProviderScore{original},
				NoFallback:       in.NoFallback,
			},
		}, nil
	}

	eligible, _ := capability.Eligible(in.Def, in.Requirements, in.Now)
	var better []model.ProviderScore
	byProvider := map[string]model.ProviderMapping{}
	for _, m := range eligible {
		if m.ProviderID == in.ProviderID {
			continue
		}
		s := e.score(ctx, candidate{modelID: in.Def.ID, mapping: m})
		if s.Uptime > original.Uptime {
			better = append(better, s)
			byProvider[m.ProviderID] = m
		}
	}
	if len(better) == 0 {
		return Decision{
			Model:   in.Def,
			Mapping: mapping,
			Metadata: model.RoutingMetadata{
				SelectedProvider: in.ProviderID,
				SelectedModel:    in.Def.ID,
				SelectionReason:  model.SelectionReasonDirectProviderSpecified,
				ProviderScores:   []model.ProviderScore{original},
			},
		}, nil
	}

	sortScores(better)
	winner := better[0]
	// Inject a synthetic score entry for the original provider with
	// score=-1 per spec.md §4.5(b).
	original.Score = -1
	scores := append([]model.ProviderScore{original}, better...)

	return Decision{
		Model:   in.Def,
		Mapping: byProvider[winner.ProviderID],
		Metadata: model.RoutingMetadata{
			SelectedProvider: winner.ProviderID,
			SelectedModel:    in.Def.ID,
			SelectionReason:  model.SelectionReasonLowUptimeFallback,
			ProviderScores:   scores,
		},
	}, nil
}

// ModelOnlyInput carries the parameters for the model-only branch.
type ModelOnlyInput struct {
	Def              model.ModelDefinition
	Requirements     capability.Requirements
	VisibleProviders []string
	Now              time.Time
}

// SelectModelOnly implements spec.md §4.5(c).
func (e *Engine) SelectModelOnly(ctx context.Context, in ModelOnlyInput) (Decision, error) {
	eligible, missing := capability.Eligible(in.Def, in.Requirements, in.Now)
	if len(eligible) == 0 {
		return Decision{}, gwerrors.CapabilityMismatch(string(missing))
	}

	var visible []model.ProviderMapping
	for _, m := range eligible {
		if containsStr(in.VisibleProviders, m.ProviderID) {
			visible = append(visible, m)
		}
	}
	if len(visible) == 0 {
		return Decision{}, gwerrors.CapabilityMismatch("visible_provider")
	}
	if len(visible) == 1 {
		return Decision{
			Model:   in.Def,
			Mapping: visible[0],
			Metadata: model.RoutingMetadata{
				SelectedProvider: visible[0].ProviderID,
				SelectedModel:    in.Def.ID,
				SelectionReason:  model.SelectionReasonSingleProviderAvailable,
			},
		}, nil
	}

	scores := make([]model.ProviderScore, 0, len(visible))
	byProvider := map[string]model.ProviderMapping{}
	for _, m := range visible {
		scores = append(scores, e.score(ctx, candidate{modelID: in.Def.ID, mapping: m}))
		byProvider[m.ProviderID] = m
	}
	sortScores(scores)
	top := scores[0]

	return Decision{
		Model:   in.Def,
		Mapping: byProvider[top.ProviderID],
		Metadata: model.RoutingMetadata{
			AvailableProviders: in.VisibleProviders,
			SelectedProvider:   top.ProviderID,
			SelectedModel:      in.Def.ID,
			SelectionReason:    model.SelectionReasonCheapestAvailable,
			ProviderScores:     scores,
		},
	}, nil
}

func containsStr(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
