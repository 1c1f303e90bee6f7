package httpapi

import (
	"encoding/json"
	"net/http"

	"goa.design/llmgateway/internal/gwerrors"
)

// writeError performs the single HTTP-boundary conversion named in
// gwerrors' package doc: a gwerrors.Error becomes an HTTP response exactly
// once, here. Upstream client errors (spec.md §7: "preserves upstream's
// original 4xx body") are written verbatim instead of wrapped.
func writeError(w http.ResponseWriter, requestID string, err error) {
	gerr, ok := gwerrors.As(err)
	if !ok {
		gerr = gwerrors.Internal(err)
	}

	w.Header().Set("x-request-id", requestID)

	if gerr.Kind == gwerrors.KindClientErr {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(gerr.HTTPStatus)
		_, _ = w.Write([]byte(gerr.Message))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gerr.HTTPStatus)
	body := wireErrorBody{Error: wireErrorDetail{
		Message: gerr.Message,
		Type:    string(gerr.Kind),
		Code:    string(gerr.Code),
	}}
	_ = json.NewEncoder(w).Encode(body)
}

// streamErrorEvent builds the "event: error" SSE payload for a failure
// encountered mid-stream (spec.md §6).
func streamErrorEvent(err error, responseText string) []byte {
	gerr, ok := gwerrors.As(err)
	if !ok {
		gerr = gwerrors.Internal(err)
	}
	body := wireErrorBody{Error: wireErrorDetail{
		Message:      gerr.Message,
		Type:         string(gerr.Kind),
		Code:         string(gerr.Code),
		ResponseText: responseText,
	}}
	data, _ := json.Marshal(body)
	return data
}
