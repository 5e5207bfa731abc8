package chain

import (
	"fmt"
	"math/big"

	"github.com/R3E-Network/marketplace/internal/clarity"
	"github.com/R3E-Network/marketplace/internal/domain/marketplace"
	svcerrors "github.com/R3E-Network/marketplace/internal/errors"
)

// =============================================================================
// Clarity Value Parsers
// =============================================================================

// Unwrap strips (ok …) and (some …) wrappers. (err …) becomes a contract
// error and none becomes a not-found error naming what.
func Unwrap(v clarity.Value, what string) (clarity.Value, error) {
	for {
		switch val := v.(type) {
		case clarity.Response:
			if !val.Ok {
				return nil, svcerrors.Contract(svcerrors.CodeContractAbort, fmt.Sprintf("%s: contract returned %s", what, val.String()))
			}
			v = val.Value
		case clarity.Optional:
			if val.Value == nil {
				return nil, svcerrors.NotFound(what)
			}
			v = val.Value
		default:
			return v, nil
		}
	}
}

// ParseTuple asserts a tuple.
func ParseTuple(v clarity.Value) (clarity.Tuple, error) {
	t, ok := v.(clarity.Tuple)
	if !ok {
		return nil, shapeError("tuple", v)
	}
	return t, nil
}

// ParseList asserts a list.
func ParseList(v clarity.Value) (clarity.List, error) {
	l, ok := v.(clarity.List)
	if !ok {
		return nil, shapeError("list", v)
	}
	return l, nil
}

// ParseString accepts string-ascii and string-utf8.
func ParseString(v clarity.Value) (string, error) {
	switch s := v.(type) {
	case clarity.StringASCII:
		return string(s), nil
	case clarity.StringUTF8:
		return string(s), nil
	default:
		return "", shapeError("string", v)
	}
}

// ParseUint accepts uint, and non-negative int, values that fit in 64 bits.
func ParseUint(v clarity.Value) (uint64, error) {
	var n *big.Int
	switch x := v.(type) {
	case clarity.UInt:
		n = x.V
	case clarity.Int:
		n = x.V
	default:
		return 0, shapeError("uint", v)
	}
	if n == nil {
		return 0, nil
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, svcerrors.Decode(fmt.Sprintf("integer %s does not fit in uint64", n.String()), nil)
	}
	return n.Uint64(), nil
}

// Field reads a named field from a tuple.
func Field(t clarity.Tuple, name string) (clarity.Value, error) {
	v, ok := t[name]
	if !ok {
		return nil, svcerrors.Decode(fmt.Sprintf("missing field %q", name), nil)
	}
	return v, nil
}

func stringField(t clarity.Tuple, name string) (string, error) {
	v, err := Field(t, name)
	if err != nil {
		return "", err
	}
	s, err := ParseString(v)
	if err != nil {
		return "", fmt.Errorf("field %s: %w", name, err)
	}
	return s, nil
}

func uintField(t clarity.Tuple, name string) (uint64, error) {
	v, err := Field(t, name)
	if err != nil {
		return 0, err
	}
	n, err := ParseUint(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return n, nil
}

// ParseProduct maps {title, description, price}.
func ParseProduct(v clarity.Value) (marketplace.Product, error) {
	t, err := ParseTuple(v)
	if err != nil {
		return marketplace.Product{}, err
	}
	title, err := stringField(t, "title")
	if err != nil {
		return marketplace.Product{}, err
	}
	description, err := stringField(t, "description")
	if err != nil {
		return marketplace.Product{}, err
	}
	price, err := uintField(t, "price")
	if err != nil {
		return marketplace.Product{}, err
	}
	return marketplace.Product{Title: title, Description: description, Price: price}, nil
}

// ParseProducts maps a list of product tuples, keeping node order. Items may
// be wrapped in (some …).
func ParseProducts(v clarity.Value) ([]marketplace.Product, error) {
	list, err := ParseList(v)
	if err != nil {
		return nil, err
	}
	products := make([]marketplace.Product, 0, len(list))
	for i, item := range list {
		inner, err := Unwrap(item, fmt.Sprintf("product %d", i))
		if err != nil {
			return nil, err
		}
		p, err := ParseProduct(inner)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		products = append(products, p)
	}
	return products, nil
}

// ParseMemberProfile maps {role, status}.
func ParseMemberProfile(v clarity.Value) (marketplace.MemberProfile, error) {
	t, err := ParseTuple(v)
	if err != nil {
		return marketplace.MemberProfile{}, err
	}
	role, err := stringField(t, "role")
	if err != nil {
		return marketplace.MemberProfile{}, err
	}
	status, err := stringField(t, "status")
	if err != nil {
		return marketplace.MemberProfile{}, err
	}
	return marketplace.MemberProfile{Role: role, Status: status}, nil
}

// ParseReputation accepts {score: uint} or a bare uint.
func ParseReputation(v clarity.Value) (marketplace.Reputation, error) {
	if t, ok := v.(clarity.Tuple); ok {
		score, err := uintField(t, "score")
		if err != nil {
			return marketplace.Reputation{}, err
		}
		return marketplace.Reputation{Score: score}, nil
	}
	score, err := ParseUint(v)
	if err != nil {
		return marketplace.Reputation{}, err
	}
	return marketplace.Reputation{Score: score}, nil
}

func shapeError(want string, got clarity.Value) error {
	gotType := "nothing"
	if got != nil {
		gotType = got.Type().String()
	}
	return svcerrors.Decode(fmt.Sprintf("expected %s, got %s", want, gotType), nil)
}
