package providerctx

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// EnvTokenPool implements CredentialSource's env-pool half as a small
// service with an atomically incremented round-robin index, per spec.md
// §9's re-architecture note ("encapsulate in a small service with atomic
// increment, plus per-slot key-health counters"). Grounded on
// features/model/middleware/ratelimit.go's AdaptiveRateLimiter, which
// holds analogous process-local mutable state behind atomic/mutex
// operations instead of ad hoc globals.
type EnvTokenPool struct {
	pools       map[string][]poolSlot
	storedKeys  map[string]map[string]string // orgID -> providerID -> key
}

type poolSlot struct {
	envVarName string
	apiKey     string
	index      int
	limiter    *rate.Limiter
	counter    *int64
}

// NewEnvTokenPool builds an EnvTokenPool from a provider -> ordered
// env-var-name/value pairs map (as produced by internal/config's
// ProviderTokenPools, joined with the matching variable names).
func NewEnvTokenPool(namedPools map[string][]NamedToken, storedKeys map[string]map[string]string) *EnvTokenPool {
	p := &EnvTokenPool{pools: make(map[string][]poolSlot), storedKeys: storedKeys}
	for provider, tokens := range namedPools {
		slots := make([]poolSlot, 0, len(tokens))
		for i, t := range tokens {
			var counter int64
			slots = append(slots, poolSlot{
				envVarName: t.EnvVarName,
				apiKey:     t.Value,
				index:      i,
				limiter:    rate.NewLimiter(rate.Limit(defaultRPS), defaultBurst),
				counter:    &counter,
			})
		}
		p.pools[provider] = slots
	}
	return p
}

// NamedToken pairs an environment variable name with its resolved value.
type NamedToken struct {
	EnvVarName string
	Value      string
}

const (
	defaultRPS   = 50
	defaultBurst = 100
)

var roundRobinCounter int64

func (p *EnvTokenPool) StoredKey(_ context.Context, orgID, providerID string) (string, bool, error) {
	byProvider, ok := p.storedKeys[orgID]
	if !ok {
		return "", false, nil
	}
	key, ok := byProvider[providerID]
	return key, ok, nil
}

// StoredKeyProviders implements httpapi.ProviderVisibility, listing the
// providers an organization has a stored key for (spec.md §4.5a's
// "api-keys"/"hybrid" visibility gate).
func (p *EnvTokenPool) StoredKeyProviders(_ context.Context, orgID string) ([]string, error) {
	byProvider, ok := p.storedKeys[orgID]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(byProvider))
	for providerID := range byProvider {
		out = append(out, providerID)
	}
	return out, nil
}

// EnvPoolKey selects the next slot round-robin via an atomically
// incremented process-global counter, then rate-limits the caller against
// that slot (spec.md §5: "Env-token pool: round-robin index is
// process-local mutable state; access must be atomic").
func (p *EnvTokenPool) EnvPoolKey(ctx context.Context, providerID string) (Credentials, bool, error) {
	slots, ok := p.pools[providerID]
	if !ok || len(slots) == 0 {
		return Credentials{}, false, nil
	}
	n := atomic.AddInt64(&roundRobinCounter, 1)
	slot := slots[int(n)%len(slots)]
	if err := slot.limiter.Wait(ctx); err != nil {
		return Credentials{}, false, fmt.Errorf("providerctx: env pool rate limit wait: %w", err)
	}
	atomic.AddInt64(slot.counter, 1)
	return Credentials{
		APIKey:      slot.apiKey,
		FromEnvPool: true,
		EnvVarName:  slot.envVarName,
		ConfigIndex: slot.index,
	}, true, nil
}
