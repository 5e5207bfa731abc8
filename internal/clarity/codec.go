package clarity

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"
)

const (
	// maxDepth bounds nesting while decoding untrusted payloads.
	maxDepth = 64
	// maxNameLen is the longest tuple field or contract name the node accepts.
	maxNameLen = 128
)

var (
	ErrTruncated     = errors.New("clarity: truncated value")
	ErrTrailingBytes = errors.New("clarity: trailing bytes after value")
	ErrUnknownType   = errors.New("clarity: unknown type prefix")
	ErrTooDeep       = errors.New("clarity: value nested too deeply")
	ErrOutOfRange    = errors.New("clarity: integer out of 128-bit range")
)

var (
	two128    = new(big.Int).Lsh(big.NewInt(1), 128)
	two127    = new(big.Int).Lsh(big.NewInt(1), 127)
	negTwo127 = new(big.Int).Neg(two127)
)

// Serialize encodes v in the consensus wire format.
func Serialize(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeHex encodes v as a 0x-prefixed hex string, the form the node API
// expects for call arguments.
func SerializeHex(v Value) (string, error) {
	raw, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(raw), nil
}

func writeValue(buf *bytes.Buffer, v Value) error {
	if v == nil {
		return errors.New("clarity: nil value")
	}
	buf.WriteByte(byte(v.Type()))

	switch val := v.(type) {
	case Int:
		n := val.V
		if n == nil {
			n = new(big.Int)
		}
		if n.Cmp(negTwo127) < 0 || n.Cmp(two127) >= 0 {
			return ErrOutOfRange
		}
		if n.Sign() < 0 {
			n = new(big.Int).Add(two128, n)
		}
		buf.Write(n.FillBytes(make([]byte, 16)))
	case UInt:
		n := val.V
		if n == nil {
			n = new(big.Int)
		}
		if n.Sign() < 0 || n.Cmp(two128) >= 0 {
			return ErrOutOfRange
		}
		buf.Write(n.FillBytes(make([]byte, 16)))
	case Bool:
	case Buffer:
		writeLen(buf, len(val))
		buf.Write(val)
	case StringASCII:
		for i := 0; i < len(val); i++ {
			if val[i] > 0x7e || (val[i] < 0x20 && val[i] != '\t' && val[i] != '\n' && val[i] != '\r') {
				return fmt.Errorf("clarity: non-ascii byte 0x%02x in string-ascii", val[i])
			}
		}
		writeLen(buf, len(val))
		buf.WriteString(string(val))
	case StringUTF8:
		if !utf8.ValidString(string(val)) {
			return errors.New("clarity: invalid utf-8 in string-utf8")
		}
		writeLen(buf, len(val))
		buf.WriteString(string(val))
	case StandardPrincipal:
		buf.WriteByte(val.Version)
		buf.Write(val.Hash160[:])
	case ContractPrincipal:
		if len(val.Name) == 0 || len(val.Name) > maxNameLen {
			return fmt.Errorf("clarity: contract name length %d out of range", len(val.Name))
		}
		buf.WriteByte(val.Issuer.Version)
		buf.Write(val.Issuer.Hash160[:])
		buf.WriteByte(byte(len(val.Name)))
		buf.WriteString(val.Name)
	case Response:
		return writeValue(buf, val.Value)
	case Optional:
		if val.Value != nil {
			return writeValue(buf, val.Value)
		}
	case List:
		writeLen(buf, len(val))
		for _, item := range val {
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
	case Tuple:
		writeLen(buf, len(val))
		for _, name := range val.Names() {
			if len(name) == 0 || len(name) > maxNameLen {
				return fmt.Errorf("clarity: tuple field name length %d out of range", len(name))
			}
			buf.WriteByte(byte(len(name)))
			buf.WriteString(name)
			if err := writeValue(buf, val[name]); err != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
		}
	default:
		return fmt.Errorf("clarity: cannot serialize %T", v)
	}
	return nil
}

func writeLen(buf *bytes.Buffer, n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	buf.Write(b[:])
}

// Deserialize decodes exactly one value from raw.
func Deserialize(raw []byte) (Value, error) {
	d := &decoder{buf: raw}
	v, err := d.value(0)
	if err != nil {
		return nil, err
	}
	if d.off != len(d.buf) {
		return nil, ErrTrailingBytes
	}
	return v, nil
}

// DeserializeHex decodes a hex string with or without the 0x prefix.
func DeserializeHex(s string) (Value, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("clarity: decode hex: %w", err)
	}
	return Deserialize(raw)
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || len(d.buf)-d.off < n {
		return nil, ErrTruncated
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) length() (int, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(b)
	if int64(n) > int64(len(d.buf)-d.off) {
		return 0, ErrTruncated
	}
	return int(n), nil
}

func (d *decoder) principal() (StandardPrincipal, error) {
	b, err := d.take(21)
	if err != nil {
		return StandardPrincipal{}, err
	}
	var p StandardPrincipal
	p.Version = b[0]
	copy(p.Hash160[:], b[1:])
	return p, nil
}

func (d *decoder) name() (string, error) {
	n, err := d.readByte()
	if err != nil {
		return "", err
	}
	if n == 0 || int(n) > maxNameLen {
		return "", fmt.Errorf("clarity: name length %d out of range", n)
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) value(depth int) (Value, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	prefix, err := d.readByte()
	if err != nil {
		return nil, err
	}

	switch Type(prefix) {
	case TypeInt:
		b, err := d.take(16)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(b)
		if b[0]&0x80 != 0 {
			n.Sub(n, two128)
		}
		return Int{V: n}, nil
	case TypeUInt:
		b, err := d.take(16)
		if err != nil {
			return nil, err
		}
		return UInt{V: new(big.Int).SetBytes(b)}, nil
	case TypeBuffer:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		b, err := d.take(n)
		if err != nil {
			return nil, err
		}
		return Buffer(append([]byte(nil), b...)), nil
	case TypeTrue:
		return Bool(true), nil
	case TypeFalse:
		return Bool(false), nil
	case TypeStandardPrincipal:
		p, err := d.principal()
		if err != nil {
			return nil, err
		}
		return p, nil
	case TypeContractPrincipal:
		issuer, err := d.principal()
		if err != nil {
			return nil, err
		}
		name, err := d.name()
		if err != nil {
			return nil, err
		}
		return ContractPrincipal{Issuer: issuer, Name: name}, nil
	case TypeResponseOk, TypeResponseErr:
		inner, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		return Response{Ok: Type(prefix) == TypeResponseOk, Value: inner}, nil
	case TypeNone:
		return Optional{}, nil
	case TypeSome:
		inner, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		return Optional{Value: inner}, nil
	case TypeList:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		list := make(List, 0, n)
		for i := 0; i < n; i++ {
			item, err := d.value(depth + 1)
			if err != nil {
				return nil, fmt.Errorf("list item %d: %w", i, err)
			}
			list = append(list, item)
		}
		return list, nil
	case TypeTuple:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		tuple := make(Tuple, n)
		for i := 0; i < n; i++ {
			name, err := d.name()
			if err != nil {
				return nil, err
			}
			item, err := d.value(depth + 1)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			tuple[name] = item
		}
		return tuple, nil
	case TypeStringASCII:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		b, err := d.take(n)
		if err != nil {
			return nil, err
		}
		return StringASCII(b), nil
	case TypeStringUTF8:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		b, err := d.take(n)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, errors.New("clarity: invalid utf-8 in string-utf8")
		}
		return StringUTF8(b), nil
	default:
		return nil, fmt.Errorf("%w 0x%02x", ErrUnknownType, prefix)
	}
}
