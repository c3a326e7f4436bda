package federation

import (
	"errors"
	"net/http"

	"github.com/catenax-ng/product-agents-edc-sub000/types"
)

// Sentinel errors of the federation layer.
var (
	ErrInvalidTarget       = errors.New("invalid service target")
	ErrUnboundTarget       = errors.New("service target is not bound")
	ErrTargetDenied        = errors.New("service target denied by pattern")
	ErrAssetDenied         = errors.New("asset denied by pattern")
	ErrAmbiguousAsset      = errors.New("asset cannot be inferred from the graph names")
	ErrUnknownAsset        = errors.New("asset is not offered locally")
	ErrNoLocalEvaluator    = errors.New("no local evaluator configured")
	ErrRemoteStatus        = errors.New("remote endpoint returned an error status")
	ErrMalformedResponse   = errors.New("remote endpoint returned a malformed response")
	ErrUnsupportedResponse = errors.New("remote endpoint returned an unsupported content type")
)

// validationError marks err as a synchronous, non-retryable validation error.
func validationError(err error, target string) error {
	code := types.ErrValidation
	status := http.StatusBadRequest
	if errors.Is(err, ErrTargetDenied) || errors.Is(err, ErrAssetDenied) {
		code = types.ErrForbidden
		status = http.StatusForbidden
	}
	return types.NewError(code, "service call rejected").
		WithCause(err).
		WithHTTPStatus(status).
		WithTarget(target)
}

// upstreamError wraps a failed remote call so the message names the target.
// Errors that already carry a code (negotiation, validation) keep it.
func upstreamError(err error, target string) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	return types.NewError(types.ErrUpstreamError, "remote service call failed").
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithTarget(target)
}
