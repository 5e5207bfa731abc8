package clarity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160 is defined with RIPEMD-160
)

// EncodedArg is a function argument ready to be sent to a node. An argument
// built from malformed input carries its error instead of failing at
// construction; the query layer reports it when the call is made.
type EncodedArg struct {
	value  Value
	err    error
	source string
}

// Arg wraps an already-built value.
func Arg(v Value) EncodedArg {
	return EncodedArg{value: v}
}

// EncodeUint builds a uint argument.
func EncodeUint(n uint64) EncodedArg {
	return Arg(NewUInt(n))
}

// EncodePrincipal converts a c32check address, or an address.contract-name
// identifier, into a principal argument. It performs no checks beyond what
// is needed to serialize the value.
func EncodePrincipal(address string) EncodedArg {
	p, err := ParsePrincipal(address)
	if err != nil {
		return EncodedArg{err: err, source: address}
	}
	return EncodedArg{value: p, source: address}
}

// Value returns the underlying value or the encoding error.
func (a EncodedArg) Value() (Value, error) {
	if a.err != nil {
		return nil, a.err
	}
	if a.value == nil {
		return nil, fmt.Errorf("clarity: empty argument")
	}
	return a.value, nil
}

// Err reports the encoding error, if any.
func (a EncodedArg) Err() error { return a.err }

// Hex serializes the argument for the node API.
func (a EncodedArg) Hex() (string, error) {
	v, err := a.Value()
	if err != nil {
		return "", err
	}
	return SerializeHex(v)
}

func (a EncodedArg) String() string {
	if a.err != nil {
		return fmt.Sprintf("<invalid %q>", a.source)
	}
	if a.value == nil {
		return "<empty>"
	}
	return a.value.String()
}

// ParsePrincipal parses "SP…" or "SP….contract-name" into a principal value.
func ParsePrincipal(s string) (Value, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "'")
	addr, name, isContract := strings.Cut(s, ".")

	version, hash, err := DecodeAddress(addr)
	if err != nil {
		return nil, err
	}
	issuer := StandardPrincipal{Version: version, Hash160: hash}
	if !isContract {
		return issuer, nil
	}
	if name == "" || len(name) > maxNameLen {
		return nil, fmt.Errorf("%w: contract name length %d", ErrInvalidAddress, len(name))
	}
	return ContractPrincipal{Issuer: issuer, Name: name}, nil
}

// Hash160 is RIPEMD160(SHA256(data)).
func Hash160(data []byte) [20]byte {
	sum := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(sum[:])
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// AddressFromPublicKey derives the single-signature address for a hex
// encoded secp256k1 public key (33 byte compressed or 65 byte uncompressed).
func AddressFromPublicKey(pubKeyHex string, mainnet bool) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(pubKeyHex), "0x"))
	if err != nil {
		return "", fmt.Errorf("decode public key: %w", err)
	}
	switch {
	case len(raw) == 33 && (raw[0] == 0x02 || raw[0] == 0x03):
	case len(raw) == 65 && raw[0] == 0x04:
	default:
		return "", fmt.Errorf("public key must be 33 or 65 bytes in SEC1 form, got %d", len(raw))
	}

	version := AddressVersionTestnetSingleSig
	if mainnet {
		version = AddressVersionMainnetSingleSig
	}
	return EncodeAddress(version, Hash160(raw)), nil
}
