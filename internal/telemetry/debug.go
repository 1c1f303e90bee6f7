package telemetry

// TruncateDebugPayload bounds a raw request/response payload captured in
// debug mode at limit bytes (spec.md §4.12: "raw request/response payloads
// bounded at 1 MiB when debug mode is on").
func TruncateDebugPayload(payload []byte, limit int) []byte {
	if len(payload) <= limit {
		return payload
	}
	truncated := make([]byte, limit)
	copy(truncated, payload[:limit])
	return truncated
}

// DebugPayloadLimit is the default bound from spec.md §4.12.
const DebugPayloadLimit = 1 << 20
