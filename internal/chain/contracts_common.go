package chain

import (
	"context"
	"fmt"

	"github.com/R3E-Network/marketplace/internal/clarity"
)

// =============================================================================
// Contract Identity (configurable)
// =============================================================================

// ContractIdentity pins the deployed contract every query targets.
type ContractIdentity struct {
	Address       string  `json:"contract_address"`
	Name          string  `json:"contract_name"`
	SenderAddress string  `json:"sender_address"`
	Network       Network `json:"network"`
}

// Validate checks that the identity can address a contract.
func (id ContractIdentity) Validate() error {
	if id.Address == "" {
		return fmt.Errorf("contract address required")
	}
	if id.Name == "" {
		return fmt.Errorf("contract name required")
	}
	if _, err := ParseNetwork(string(id.Network)); err != nil {
		return err
	}
	return nil
}

// Sender returns the address used as tx-sender for read-only calls. The
// contract deployer is used when none is configured.
func (id ContractIdentity) Sender() string {
	if id.SenderAddress != "" {
		return id.SenderAddress
	}
	return id.Address
}

// Query builds a ContractQuery for function against this contract.
func (id ContractIdentity) Query(function string, args ...clarity.EncodedArg) ContractQuery {
	return ContractQuery{
		ContractAddress: id.Address,
		ContractName:    id.Name,
		FunctionName:    function,
		FunctionArgs:    args,
		SenderAddress:   id.Sender(),
		Network:         id.Network,
	}
}

// ReadOnlyCaller is the query seam bindings depend on; *Client implements it.
type ReadOnlyCaller interface {
	CallReadOnly(ctx context.Context, q ContractQuery) (clarity.Value, error)
}

var _ ReadOnlyCaller = (*Client)(nil)

// Invoke runs a read-only call, unwraps ok/some wrappers and parses the
// result. A parse failure leaves the zero value, never a partial one.
func Invoke[T any](ctx context.Context, caller ReadOnlyCaller, q ContractQuery, what string, parse func(clarity.Value) (T, error)) (T, error) {
	var zero T
	raw, err := caller.CallReadOnly(ctx, q)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", q.FunctionName, err)
	}
	inner, err := Unwrap(raw, what)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", q.FunctionName, err)
	}
	out, err := parse(inner)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", q.FunctionName, err)
	}
	return out, nil
}
