package bedrock

import (
	"errors"

	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"goa.design/llmgateway/internal/gwerrors"
)

// classifyError translates a raw AWS SDK error from Converse/ConverseStream
// into a gwerrors.Error carrying the upstream HTTP status, so C10's retry
// predicate (spec.md §4.10: "status code is retryable... 4xx client errors
// are terminal") sees an accurate status instead of falling through to the
// generic zero-status classification.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status == 429 || status >= 500 {
			return gwerrors.New(gwerrors.KindTransient, status, gwerrors.CodeFetchFailed,
				"bedrock: "+op+": "+respErr.Error(), err)
		}
		return gwerrors.ClientError(status, respErr.Error())
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return gwerrors.FetchFailed(err)
	}
	return gwerrors.FetchFailed(err)
}
