// Package fetch turns contract reads into observable per-entity state. Each
// fetcher is keyed by its input (nothing, a product id, an address) and only
// lets the response to the most recent request for the current key commit.
package fetch

import (
	"errors"
	"fmt"
	"net/http"

	svcerrors "github.com/R3E-Network/marketplace/internal/errors"
)

// Status is the tag of a FetchState.
type Status int

const (
	Idle Status = iota
	Loading
	Loaded
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ErrorInfo is the structured failure a Failed state carries.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	// HTTPStatus is the status a web surface should answer with.
	HTTPStatus int `json:"-"`
}

func (e ErrorInfo) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// NewErrorInfo classifies err for display.
func NewErrorInfo(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}
	if se := svcerrors.GetServiceError(err); se != nil {
		return ErrorInfo{Kind: string(se.Kind), Code: se.Code, Message: err.Error(), HTTPStatus: se.HTTPStatus}
	}
	var info ErrorInfo
	if errors.As(err, &info) {
		return info
	}
	return ErrorInfo{Kind: string(svcerrors.KindInternal), Message: err.Error(), HTTPStatus: http.StatusInternalServerError}
}

// State is a snapshot of one fetcher. Value is set only when Status is
// Loaded; Err only when Status is Failed.
type State[T any] struct {
	Status     Status     `json:"status"`
	Value      T          `json:"value,omitempty"`
	Err        *ErrorInfo `json:"error,omitempty"`
	Generation uint64     `json:"generation"`
}

// Settled reports whether no request is outstanding for the state's
// generation. Idle counts: a reset has nothing left to deliver.
func (s State[T]) Settled() bool {
	return s.Status != Loading
}
