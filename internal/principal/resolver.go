// Package principal implements the Principal Resolver (C2): API key →
// project → organization resolution, status/usage-limit/retention-credit
// gating, and dev-plan coding-model restriction (spec.md §4.2).
package principal

import (
	"context"
	"errors"
	"fmt"

	"goa.design/llmgateway/internal/gwerrors"
	"goa.design/llmgateway/internal/model"
)

// Store resolves the persistent identity graph behind a bearer token. The
// database schema backing it is explicitly out of scope (spec.md §1); only
// this contract is used by the core.
type Store interface {
	LookupAPIKey(ctx context.Context, token string) (model.APIKey, error)
	LookupProject(ctx context.Context, projectID string) (model.Project, error)
	LookupOrganization(ctx context.Context, orgID string) (model.Organization, error)
}

// ErrNotFound is returned by a Store when a token/project/org is unknown.
var ErrNotFound = errors.New("principal: not found")

// codingModels is the "coding-models" allowlist referenced in spec.md §4.2
// for dev-plan personal orgs without dev_plan_allow_all_models.
var codingModels = map[string]bool{
	"gpt-5-nano":     true,
	"gpt-4.1-nano":   true,
	"gpt-oss-120b":   true,
	"claude-4-haiku": true,
}

// Resolver implements C2.
type Resolver struct {
	store Store
}

// New constructs a Resolver over a Store implementation.
func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve takes the bearer token that the caller has already extracted
// (spec.md §4.2: "Authorization: Bearer ... or x-api-key"; see httpapi's
// bearerToken) and resolves the full Principal, applying every
// gate described in that section. requestedModel is the normalized
// `[provider/]model` string from the Request Envelope, used only for the
// dev-plan coding-model restriction.
func (r *Resolver) Resolve(ctx context.Context, token, requestedModel string) (model.Principal, error) {
	if token == "" {
		return model.Principal{}, gwerrors.Unauthenticated("missing bearer token")
	}

	key, err := r.store.LookupAPIKey(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Principal{}, gwerrors.Unauthenticated("unknown api key")
		}
		return model.Principal{}, gwerrors.Internal(fmt.Errorf("lookup api key: %w", err))
	}
	if !key.Active() {
		return model.Principal{}, gwerrors.Unauthenticated("api key is inactive")
	}
	if key.OverLimit() {
		return model.Principal{}, gwerrors.UsageLimitExceeded()
	}

	project, err := r.store.LookupProject(ctx, key.ProjectID)
	if err != nil {
		return model.Principal{}, gwerrors.Internal(fmt.Errorf("lookup project: %w", err))
	}
	if project.Deleted() {
		return model.Principal{}, gwerrors.ProjectGone()
	}

	org, err := r.store.LookupOrganization(ctx, project.OrgID)
	if err != nil {
		return model.Principal{}, gwerrors.Internal(fmt.Errorf("lookup organization: %w", err))
	}

	if org.IsPersonal && org.DevPlan != "" && org.DevPlan != "none" && !org.DevPlanAllowAllModels {
		if requestedModel != "" && requestedModel != "auto" && !codingModels[requestedModel] {
			return model.Principal{}, gwerrors.Forbidden("dev plan restricts this org to coding models")
		}
	}

	if org.RetentionLevel == model.RetentionLevelRetain {
		if org.RetentionCreditBalance() <= 0 {
			return model.Principal{}, gwerrors.InsufficientCredits("retention requires a positive credit balance")
		}
	}

	return model.Principal{APIKey: key, Project: project, Org: org}, nil
}
