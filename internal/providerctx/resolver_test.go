package providerctx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/providerctx"
)

type stubCredentials struct{}

func (stubCredentials) StoredKey(_ context.Context, _, providerID string) (string, bool, error) {
	return "stored-" + providerID, true, nil
}

func (stubCredentials) EnvPoolKey(_ context.Context, providerID string) (providerctx.Credentials, bool, error) {
	return providerctx.Credentials{APIKey: "pool-" + providerID, FromEnvPool: true}, true, nil
}

type stubEncoder struct{}

func (stubEncoder) EncodeRequest(req model.Request, _ model.ProviderMapping) (any, error) {
	return req, nil
}

func newTestResolver() *providerctx.Resolver {
	endpoints := map[string]providerctx.EndpointResolver{
		"openai": func(providerctx.EndpointParams) (string, error) { return "https://api.openai.com/v1/chat/completions", nil },
	}
	encoders := map[string]providerctx.BodyEncoder{"openai": stubEncoder{}}
	return providerctx.New(endpoints, stubCredentials{}, encoders, nil)
}

// TestResolveMaxTokensBoundary verifies the spec.md §8 boundary: max_tokens
// exactly equal to the provider's max_output is accepted; one token over is
// rejected with invalid_parameters.
func TestResolveMaxTokensBoundary(t *testing.T) {
	r := newTestResolver()
	mapping := model.ProviderMapping{ProviderID: "openai", MaxOutput: 4096}

	atLimit := 4096
	_, err := r.Resolve(context.Background(), "org1", model.ProjectModeAPIKeys, mapping, model.Request{MaxTokens: &atLimit})
	require.NoError(t, err)

	overLimit := 4097
	_, err = r.Resolve(context.Background(), "org1", model.ProjectModeAPIKeys, mapping, model.Request{MaxTokens: &overLimit})
	require.Error(t, err)
}

func TestResolveAPIKeysModeUsesStoredKey(t *testing.T) {
	r := newTestResolver()
	mapping := model.ProviderMapping{ProviderID: "openai", MaxOutput: 4096}

	rc, err := r.Resolve(context.Background(), "org1", model.ProjectModeAPIKeys, mapping, model.Request{})
	require.NoError(t, err)
	require.Equal(t, "stored-openai", rc.Credentials.APIKey)
	require.False(t, rc.Credentials.FromEnvPool)
}

func TestResolveCreditsModeUsesEnvPool(t *testing.T) {
	r := newTestResolver()
	mapping := model.ProviderMapping{ProviderID: "openai", MaxOutput: 4096}

	rc, err := r.Resolve(context.Background(), "org1", model.ProjectModeCredits, mapping, model.Request{})
	require.NoError(t, err)
	require.Equal(t, "pool-openai", rc.Credentials.APIKey)
	require.True(t, rc.Credentials.FromEnvPool)
}
