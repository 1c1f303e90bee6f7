package providerctx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/model"
)

func TestStripUnsupportedParamsDropsUnsupported(t *testing.T) {
	temp := 0.7
	mapping := model.ProviderMapping{SupportedParameters: []string{"temperature"}}
	req := model.Request{Temperature: &temp, TopP: &temp}

	out := stripUnsupportedParams(req, mapping)
	require.NotNil(t, out.Temperature)
	require.Nil(t, out.TopP)
}

// TestStripUnsupportedParamsAnthropicClearsTopPWhenBothSet verifies
// spec.md §4.6: Anthropic drops top_p whenever temperature is also set,
// even if top_p itself is otherwise supported.
func TestStripUnsupportedParamsAnthropicClearsTopPWhenBothSet(t *testing.T) {
	temp, topP := 0.5, 0.9
	mapping := model.ProviderMapping{ProviderID: "anthropic", SupportedParameters: []string{"temperature", "top_p"}}
	req := model.Request{Temperature: &temp, TopP: &topP}

	out := stripUnsupportedParams(req, mapping)
	require.NotNil(t, out.Temperature)
	require.Nil(t, out.TopP)
}

func TestHasToolCallsDetectsToolUsePart(t *testing.T) {
	req := model.Request{Messages: []model.Message{
		{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.ToolUsePart{ID: "call_1"}}},
	}}
	require.True(t, hasToolCalls(req))
	require.False(t, hasToolCalls(model.Request{}))
}

func TestIsGoogleFamily(t *testing.T) {
	require.True(t, isGoogleFamily("google-vertex"))
	require.False(t, isGoogleFamily("openai"))
}
