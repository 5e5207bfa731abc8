// Package clarity encodes and decodes Clarity values in the consensus wire
// format used by Stacks nodes for read-only contract calls, and converts
// c32check addresses into principal arguments.
package clarity

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Type is the leading type-prefix byte of a serialized Clarity value.
type Type byte

const (
	TypeInt               Type = 0x00
	TypeUInt              Type = 0x01
	TypeBuffer            Type = 0x02
	TypeTrue              Type = 0x03
	TypeFalse             Type = 0x04
	TypeStandardPrincipal Type = 0x05
	TypeContractPrincipal Type = 0x06
	TypeResponseOk        Type = 0x07
	TypeResponseErr       Type = 0x08
	TypeNone              Type = 0x09
	TypeSome              Type = 0x0a
	TypeList              Type = 0x0b
	TypeTuple             Type = 0x0c
	TypeStringASCII       Type = 0x0d
	TypeStringUTF8        Type = 0x0e
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeUInt:
		return "uint"
	case TypeBuffer:
		return "buffer"
	case TypeTrue, TypeFalse:
		return "bool"
	case TypeStandardPrincipal:
		return "standard-principal"
	case TypeContractPrincipal:
		return "contract-principal"
	case TypeResponseOk:
		return "response-ok"
	case TypeResponseErr:
		return "response-err"
	case TypeNone:
		return "none"
	case TypeSome:
		return "some"
	case TypeList:
		return "list"
	case TypeTuple:
		return "tuple"
	case TypeStringASCII:
		return "string-ascii"
	case TypeStringUTF8:
		return "string-utf8"
	default:
		return "unknown(0x" + strconv.FormatUint(uint64(t), 16) + ")"
	}
}

// Value is any Clarity value.
type Value interface {
	Type() Type
	String() string
}

// Int is a signed 128-bit integer.
type Int struct{ V *big.Int }

// UInt is an unsigned 128-bit integer.
type UInt struct{ V *big.Int }

// Bool is a Clarity boolean.
type Bool bool

// Buffer is a byte buffer.
type Buffer []byte

// StringASCII is a string-ascii value.
type StringASCII string

// StringUTF8 is a string-utf8 value.
type StringUTF8 string

// StandardPrincipal is an account principal.
type StandardPrincipal struct {
	Version byte
	Hash160 [20]byte
}

// ContractPrincipal is a contract identifier: issuer principal plus name.
type ContractPrincipal struct {
	Issuer StandardPrincipal
	Name   string
}

// Response is (ok v) or (err v).
type Response struct {
	Ok    bool
	Value Value
}

// Optional is (some v) when Value is non-nil and none otherwise.
type Optional struct{ Value Value }

// List is an ordered list of values.
type List []Value

// Tuple is a record of named values.
type Tuple map[string]Value

// NewUInt builds a UInt from a uint64.
func NewUInt(n uint64) UInt { return UInt{V: new(big.Int).SetUint64(n)} }

// NewInt builds an Int from an int64.
func NewInt(n int64) Int { return Int{V: big.NewInt(n)} }

// Some wraps v in an optional.
func Some(v Value) Optional { return Optional{Value: v} }

// None is the empty optional.
func None() Optional { return Optional{} }

// Ok wraps v in an ok response.
func Ok(v Value) Response { return Response{Ok: true, Value: v} }

// Err wraps v in an err response.
func Err(v Value) Response { return Response{Ok: false, Value: v} }

func (Int) Type() Type         { return TypeInt }
func (UInt) Type() Type        { return TypeUInt }
func (Buffer) Type() Type      { return TypeBuffer }
func (StringASCII) Type() Type { return TypeStringASCII }
func (StringUTF8) Type() Type  { return TypeStringUTF8 }
func (List) Type() Type        { return TypeList }
func (Tuple) Type() Type       { return TypeTuple }

func (StandardPrincipal) Type() Type { return TypeStandardPrincipal }
func (ContractPrincipal) Type() Type { return TypeContractPrincipal }

func (b Bool) Type() Type {
	if b {
		return TypeTrue
	}
	return TypeFalse
}

func (r Response) Type() Type {
	if r.Ok {
		return TypeResponseOk
	}
	return TypeResponseErr
}

func (o Optional) Type() Type {
	if o.Value == nil {
		return TypeNone
	}
	return TypeSome
}

func (v Int) String() string  { return bigString(v.V) }
func (v UInt) String() string { return "u" + bigString(v.V) }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

func (b Buffer) String() string { return "0x" + hex.EncodeToString(b) }

func (s StringASCII) String() string { return strconv.Quote(string(s)) }
func (s StringUTF8) String() string  { return "u" + strconv.Quote(string(s)) }

func (p StandardPrincipal) String() string {
	return "'" + EncodeAddress(p.Version, p.Hash160)
}

func (p ContractPrincipal) String() string {
	return p.Issuer.String() + "." + p.Name
}

func (r Response) String() string {
	if r.Ok {
		return "(ok " + valueString(r.Value) + ")"
	}
	return "(err " + valueString(r.Value) + ")"
}

func (o Optional) String() string {
	if o.Value == nil {
		return "none"
	}
	return "(some " + o.Value.String() + ")"
}

func (l List) String() string {
	parts := make([]string, 0, len(l)+1)
	parts = append(parts, "(list")
	for _, v := range l {
		parts = append(parts, valueString(v))
	}
	return strings.Join(parts, " ") + ")"
}

func (t Tuple) String() string {
	var sb strings.Builder
	sb.WriteString("(tuple")
	for _, name := range t.Names() {
		fmt.Fprintf(&sb, " (%s %s)", name, valueString(t[name]))
	}
	sb.WriteString(")")
	return sb.String()
}

// Names returns the tuple's field names in serialization order.
func (t Tuple) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func valueString(v Value) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
