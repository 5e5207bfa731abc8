// Package httputil provides HTTP body and response helpers shared by the node
// client and the HTTP API.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	svcerrors "github.com/R3E-Network/marketplace/internal/errors"
)

// ErrBodyTooLarge is returned by ReadAllStrict when the limit is exceeded.
var ErrBodyTooLarge = errors.New("body exceeds limit")

// =============================================================================
// Body Reading
// =============================================================================

// ReadAllWithLimit reads at most limit bytes from r and reports whether more
// data remained.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		return nil, false, fmt.Errorf("limit must be positive")
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}

// ReadAllStrict reads r fully, failing with ErrBodyTooLarge past limit.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	body, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
	}
	return body, nil
}

// DecodeJSONBody decodes a bounded request body into v. An empty body leaves
// v untouched.
func DecodeJSONBody(r *http.Request, limit int64, v any) error {
	if r.Body == nil {
		return nil
	}
	body, err := ReadAllStrict(r.Body, limit)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// =============================================================================
// Response Writing
// =============================================================================

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Kind    string         `json:"kind,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes data as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError maps err onto a status and error body. Unclassified errors
// become 500s.
func WriteError(w http.ResponseWriter, err error) {
	if se := svcerrors.GetServiceError(err); se != nil {
		WriteJSON(w, se.HTTPStatus, ErrorResponse{
			Error:   se.Message,
			Code:    string(se.Code),
			Kind:    string(se.Kind),
			Details: se.Details,
		})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: string(svcerrors.CodeInternal)})
}
