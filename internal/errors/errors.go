// Package errors defines the error taxonomy shared by the query, session and
// presentation layers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies where a failure originated.
type Kind string

const (
	// KindNetwork means the node could not be reached or answered with a
	// transport-level failure.
	KindNetwork Kind = "network"
	// KindContract means the node rejected the call or the contract aborted.
	KindContract Kind = "contract"
	// KindDecode means the node answered but the payload did not have the
	// expected shape.
	KindDecode Kind = "decode"
	// KindConnection means the wallet connection flow failed.
	KindConnection Kind = "connection"
	// KindInvalid means the caller supplied bad input.
	KindInvalid Kind = "invalid"
	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// Well-known codes.
const (
	CodeNodeUnreachable = "NODE_UNREACHABLE"
	CodeNodeUnavailable = "NODE_UNAVAILABLE"
	CodeCallRejected    = "CALL_REJECTED"
	CodeContractAbort   = "CONTRACT_ABORT"
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeBadPayload      = "BAD_PAYLOAD"
	CodeShapeMismatch   = "SHAPE_MISMATCH"
	CodeWalletFailed    = "WALLET_FAILED"
	CodeNoSession       = "NO_SESSION"
	CodeBadRequest      = "BAD_REQUEST"
	CodeInternal        = "INTERNAL"
	CodeNotImplemented  = "NOT_IMPLEMENTED"
	CodeRateLimited     = "RATE_LIMITED"
)

// ServiceError is the structured error carried from the query layer up to
// the view layer.
type ServiceError struct {
	Kind       Kind                   `json:"kind"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value to the error and returns it.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Is matches another *ServiceError by kind and code so sentinel comparisons
// work through wrapping.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

func newError(kind Kind, code string, status int, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Network reports a transport failure talking to the node.
func Network(message string, err error) *ServiceError {
	return newError(KindNetwork, CodeNodeUnreachable, http.StatusBadGateway, message, err)
}

// NodeUnavailable reports a node that answered with a 5xx or throttling status.
func NodeUnavailable(status int, body string) *ServiceError {
	return newError(KindNetwork, CodeNodeUnavailable, http.StatusBadGateway,
		fmt.Sprintf("node answered with status %d", status), nil).WithDetails("body", body)
}

// Contract reports a node-side rejection of a read-only call.
func Contract(code, message string) *ServiceError {
	if code == "" {
		code = CodeCallRejected
	}
	return newError(KindContract, code, http.StatusUnprocessableEntity, message, nil)
}

// NotFound reports a contract lookup that returned none.
func NotFound(what string) *ServiceError {
	return newError(KindContract, CodeNotFound, http.StatusNotFound, what+" not found", nil)
}

// InvalidArgument reports an argument that could not be encoded for the node.
func InvalidArgument(message string, err error) *ServiceError {
	return newError(KindContract, CodeInvalidArgument, http.StatusBadRequest, message, err)
}

// Decode reports a payload that could not be mapped to the expected shape.
func Decode(message string, err error) *ServiceError {
	code := CodeShapeMismatch
	if err != nil {
		code = CodeBadPayload
	}
	return newError(KindDecode, code, http.StatusBadGateway, message, err)
}

// Connection reports a failed wallet connection flow.
func Connection(message string, err error) *ServiceError {
	return newError(KindConnection, CodeWalletFailed, http.StatusConflict, message, err)
}

// NoSession reports an operation that needs a connected wallet.
func NoSession() *ServiceError {
	return newError(KindConnection, CodeNoSession, http.StatusConflict, "wallet not connected", nil)
}

// BadRequest reports invalid caller input.
func BadRequest(message string) *ServiceError {
	return newError(KindInvalid, CodeBadRequest, http.StatusBadRequest, message, nil)
}

// NotImplemented reports an intentionally stubbed operation.
func NotImplemented(message string) *ServiceError {
	return newError(KindInternal, CodeNotImplemented, http.StatusNotImplemented, message, nil)
}

// RateLimited reports a caller that exceeded the request budget.
func RateLimited(limit float64) *ServiceError {
	return newError(KindInvalid, CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit_per_second", limit)
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return newError(KindInternal, CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError extracts a *ServiceError from err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// KindOf returns the kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	if se := GetServiceError(err); se != nil {
		return se.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
