package streaming_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/streaming"
)

func TestRepairJSONValidInputPassesThrough(t *testing.T) {
	result := streaming.RepairJSON(`{"a":1}`)
	require.False(t, result.Healed)
	require.Equal(t, `{"a":1}`, result.Content)
}

func TestRepairJSONClosesUnclosedBrackets(t *testing.T) {
	result := streaming.RepairJSON(`{"a":{"b":1`)
	require.True(t, result.Healed)
	require.JSONEq(t, `{"a":{"b":1}}`, result.Content)
}

func TestRepairJSONClosesUnclosedString(t *testing.T) {
	result := streaming.RepairJSON(`{"a":"unterminated`)
	require.True(t, result.Healed)
	require.JSONEq(t, `{"a":"unterminated"}`, result.Content)
}

func TestRepairJSONStripsTrailingGarbage(t *testing.T) {
	result := streaming.RepairJSON(`{"a":1,`)
	require.True(t, result.Healed)
	require.JSONEq(t, `{"a":1}`, result.Content)
}

func TestRepairJSONGivesUpOnUnrepairable(t *testing.T) {
	result := streaming.RepairJSON(`not json at all`)
	require.False(t, result.Healed)
	require.Equal(t, `not json at all`, result.Content)
}

// TestRepairJSONIdempotent verifies healing an already-valid document never
// changes its content -- a property the handler's healing gate (only
// buffering content for response_format in {json_object, json_schema})
// relies on to treat a healed chunk as safe to emit unconditionally.
func TestRepairJSONIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("re-healing a healed result is a no-op", prop.ForAll(
		func(key, value string) bool {
			raw := `{"` + key + `":"` + value + `"`
			first := streaming.RepairJSON(raw)
			second := streaming.RepairJSON(first.Content)
			return second.Content == first.Content
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
