package bedrock

import (
	"errors"
	"net/http"
	"testing"

	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/gwerrors"
)

func responseErrorWithStatus(status int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
		Err:      errors.New("boom"),
	}
}

func TestClassifyErrorNilIsNil(t *testing.T) {
	require.NoError(t, classifyError("converse", nil))
}

func TestClassifyErrorServerErrorIsTransient(t *testing.T) {
	err := classifyError("converse", responseErrorWithStatus(503))
	gerr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindTransient, gerr.Kind)
	require.Equal(t, 503, gerr.HTTPStatus)
}

func TestClassifyErrorThrottleIsTransient(t *testing.T) {
	err := classifyError("converse", responseErrorWithStatus(429))
	gerr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindTransient, gerr.Kind)
}

func TestClassifyErrorClientErrorIsTerminal(t *testing.T) {
	err := classifyError("converse", responseErrorWithStatus(400))
	gerr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindClientErr, gerr.Kind)
	require.Equal(t, 400, gerr.HTTPStatus)
}

type genericAPIError struct{ code string }

func (e genericAPIError) Error() string         { return e.code }
func (e genericAPIError) ErrorCode() string     { return e.code }
func (e genericAPIError) ErrorMessage() string  { return e.code }
func (e genericAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestClassifyErrorGenericAPIErrorIsTransientFetchFailed(t *testing.T) {
	err := classifyError("converse", genericAPIError{code: "ThrottlingException"})
	gerr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.CodeFetchFailed, gerr.Code)
}
