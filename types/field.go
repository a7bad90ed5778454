package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// FieldSize is the size in bytes of a serialized field element.
const FieldSize = 32

// modulus is the BN254 scalar field, which is the field every hash,
// commitment and circuit input of the engine lives in.
var modulus = fr.Modulus()

// Modulus returns a copy of the field modulus.
func Modulus() *big.Int {
	return new(big.Int).Set(modulus)
}

// Field is an element of the BN254 scalar field stored as 32 big-endian
// bytes. The zero value is the element 0. Field values are comparable, so
// they can be used as map keys and compared with ==.
type Field [FieldSize]byte

// NewField returns the field element that represents i, reducing it modulo
// the field order (negative numbers included). A nil i is the zero element.
func NewField(i *big.Int) Field {
	var f Field
	if i == nil {
		return f
	}
	v := i
	if i.Sign() < 0 || i.Cmp(modulus) >= 0 {
		v = new(big.Int).Mod(i, modulus)
	}
	v.FillBytes(f[:])
	return f
}

// FieldFromUint64 returns the field element for u.
func FieldFromUint64(u uint64) Field {
	return NewField(new(big.Int).SetUint64(u))
}

// FieldFromBytes interprets b as a big-endian integer and reduces it.
func FieldFromBytes(b []byte) Field {
	return NewField(new(big.Int).SetBytes(b))
}

// ParseField parses a decimal string or a 0x prefixed hexadecimal string.
func ParseField(s string) (Field, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Field{}, fmt.Errorf("empty field element")
	}
	i := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = i.SetString(s[2:], 16)
	} else {
		_, ok = i.SetString(s, 10)
	}
	if !ok {
		return Field{}, fmt.Errorf("invalid field element %q", s)
	}
	return NewField(i), nil
}

// MustParseField is like ParseField but panics on error. Intended for
// constants and tests.
func MustParseField(s string) Field {
	f, err := ParseField(s)
	if err != nil {
		panic(err)
	}
	return f
}

// BigInt returns the element as a new big.Int.
func (f Field) BigInt() *big.Int {
	return new(big.Int).SetBytes(f[:])
}

// Integer returns the decimal representation of the element.
func (f Field) Integer() string {
	return f.BigInt().String()
}

// Hex returns the 0x prefixed, zero padded, hexadecimal representation.
func (f Field) Hex() string {
	return "0x" + hex.EncodeToString(f[:])
}

// Bytes returns a copy of the 32 big-endian bytes of the element.
func (f Field) Bytes() []byte {
	b := make([]byte, FieldSize)
	copy(b, f[:])
	return b
}

// IsZero reports whether f is the zero element.
func (f Field) IsZero() bool {
	return f == Field{}
}

// Cmp compares the integer representations of f and o.
func (f Field) Cmp(o Field) int {
	return f.BigInt().Cmp(o.BigInt())
}

// String implements fmt.Stringer using the decimal representation.
func (f Field) String() string {
	return f.Integer()
}

// MarshalJSON encodes the element as a decimal string.
func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Integer())
}

// UnmarshalJSON accepts decimal or hex strings and bare JSON numbers.
func (f *Field) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := ParseField(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// MarshalText implements encoding.TextMarshaler, used for map keys.
func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.Integer()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Field) UnmarshalText(data []byte) error {
	v, err := ParseField(string(data))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Fields is an ordered list of field elements, used for circuit inputs and
// public signals.
type Fields []Field

// Strings returns the decimal representation of every element.
func (fs Fields) Strings() []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Integer()
	}
	return out
}

// BigInts returns every element as a big.Int.
func (fs Fields) BigInts() []*big.Int {
	out := make([]*big.Int, len(fs))
	for i, f := range fs {
		out[i] = f.BigInt()
	}
	return out
}

// FieldsFromStrings parses a list of decimal or hex strings.
func FieldsFromStrings(ss []string) (Fields, error) {
	out := make(Fields, len(ss))
	for i, s := range ss {
		f, err := ParseField(s)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}
