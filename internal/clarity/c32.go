package clarity

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Address version bytes.
const (
	AddressVersionMainnetSingleSig byte = 22
	AddressVersionMainnetMultiSig  byte = 20
	AddressVersionTestnetSingleSig byte = 26
	AddressVersionTestnetMultiSig  byte = 21
)

var (
	ErrInvalidAddress = errors.New("clarity: invalid c32check address")
	ErrBadChecksum    = errors.New("clarity: address checksum mismatch")
)

var big32 = big.NewInt(32)

// c32Encode renders data in Crockford-style base32, keeping one leading '0'
// per leading zero byte.
func c32Encode(data []byte) string {
	var out []byte
	n := new(big.Int).SetBytes(data)
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, big32, mod)
		out = append(out, c32Alphabet[mod.Int64()])
	}
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, c32Alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func c32Normalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "O", "0")
	s = strings.ReplaceAll(s, "L", "1")
	return strings.ReplaceAll(s, "I", "1")
}

func c32Decode(s string) ([]byte, error) {
	s = c32Normalize(s)
	leading := 0
	for leading < len(s) && s[leading] == c32Alphabet[0] {
		leading++
	}
	n := new(big.Int)
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte(c32Alphabet, s[i])
		if idx < 0 {
			return nil, fmt.Errorf("%w: bad character %q", ErrInvalidAddress, s[i])
		}
		n.Mul(n, big32)
		n.Add(n, big.NewInt(int64(idx)))
	}
	return append(make([]byte, leading), n.Bytes()...), nil
}

func c32Checksum(version byte, data []byte) []byte {
	first := sha256.Sum256(append([]byte{version}, data...))
	second := sha256.Sum256(first[:])
	return second[:4]
}

// EncodeAddress renders a version and hash160 as an S-prefixed c32check
// address.
func EncodeAddress(version byte, hash160 [20]byte) string {
	payload := append(append([]byte(nil), hash160[:]...), c32Checksum(version, hash160[:])...)
	return "S" + string(c32Alphabet[version&0x1f]) + c32Encode(payload)
}

// DecodeAddress parses an S-prefixed c32check address and verifies its
// checksum.
func DecodeAddress(address string) (byte, [20]byte, error) {
	var hash [20]byte
	address = strings.TrimSpace(address)
	if len(address) < 3 || (address[0] != 'S' && address[0] != 's') {
		return 0, hash, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	version := strings.IndexByte(c32Alphabet, c32Normalize(address[1:2])[0])
	if version < 0 {
		return 0, hash, fmt.Errorf("%w: bad version character", ErrInvalidAddress)
	}

	payload, err := c32Decode(address[2:])
	if err != nil {
		return 0, hash, err
	}
	if len(payload) != 24 {
		return 0, hash, fmt.Errorf("%w: payload is %d bytes", ErrInvalidAddress, len(payload))
	}

	copy(hash[:], payload[:20])
	if !bytes.Equal(payload[20:], c32Checksum(byte(version), hash[:])) {
		return 0, hash, ErrBadChecksum
	}
	return byte(version), hash, nil
}

// IsMainnetVersion reports whether version belongs to mainnet.
func IsMainnetVersion(version byte) bool {
	return version == AddressVersionMainnetSingleSig || version == AddressVersionMainnetMultiSig
}
