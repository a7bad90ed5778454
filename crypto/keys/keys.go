// Package keys manages the BabyJubJub key pairs that own commitments. A
// public key is the compressed form of sk·G, where G is the generator used
// by the shield circuits, and it must be a valid BN254 scalar field element.
package keys

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/constants"
	"github.com/vocdoni/zk-escrow/types"
	"github.com/vocdoni/zk-escrow/util"
)

// signBit is the position of the bit that stores the parity of x in a
// compressed point.
const signBit = 255

// maxAttempts bounds the number of secret keys sampled by Generate.
const maxAttempts = 64

var (
	// ErrKeyTooLarge is returned when the compressed public key does not fit
	// in the scalar field and a new secret must be sampled.
	ErrKeyTooLarge = errors.New("compressed public key exceeds the field")
	// ErrInvalidPublicKey is returned when a compressed key is not a point of
	// the curve.
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// Generator is the base point used to derive public keys.
var Generator = &babyjub.Point{
	X: mustBig("16540640123574156134436876038791482806971768689494387082833631921987005038935"),
	Y: mustBig("20819045374670962167435360035096875258406992893633759881276124905556507972311"),
}

func mustBig(s string) *big.Int {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid big integer " + s)
	}
	return i
}

// KeyPair holds a secret key and its compressed public key.
type KeyPair struct {
	SecretKey types.Field `json:"secretKey" cbor:"0,keyasint"`
	PublicKey types.Field `json:"publicKey" cbor:"1,keyasint"`
}

// Generate samples random 31 byte secrets until one produces a public key
// that fits in the field.
func Generate() (*KeyPair, error) {
	for range maxAttempts {
		kp, err := FromSecret(util.RandomSalt())
		if errors.Is(err, ErrKeyTooLarge) {
			continue
		}
		return kp, err
	}
	return nil, fmt.Errorf("no valid key after %d attempts", maxAttempts)
}

// FromSecret derives the key pair of a secret key.
func FromSecret(sk types.Field) (*KeyPair, error) {
	pk, err := Compress(PublicPoint(sk))
	if err != nil {
		return nil, err
	}
	return &KeyPair{SecretKey: sk, PublicKey: pk}, nil
}

// PublicPoint returns sk·G.
func PublicPoint(sk types.Field) *babyjub.Point {
	return babyjub.NewPoint().Mul(sk.BigInt(), Generator)
}

// Compress packs the parity of x into the highest bit of y. It fails with
// ErrKeyTooLarge when the result is not a canonical field element.
func Compress(p *babyjub.Point) (types.Field, error) {
	c := new(big.Int).Set(p.Y)
	if p.X.Bit(0) == 1 {
		c.SetBit(c, signBit, 1)
	}
	if c.Cmp(types.Modulus()) >= 0 {
		return types.Field{}, ErrKeyTooLarge
	}
	return types.NewField(c), nil
}

// Decompress recovers the curve point of a compressed public key.
func Decompress(pk types.Field) (*babyjub.Point, error) {
	c := pk.BigInt()
	odd := c.Bit(signBit) == 1
	y := new(big.Int).SetBit(c, signBit, 0)
	p, err := babyjub.PointFromSignAndY(false, y)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if (p.X.Bit(0) == 1) != odd {
		p.X = new(big.Int).Sub(constants.Q, p.X)
	}
	if !p.InCurve() {
		return nil, ErrInvalidPublicKey
	}
	return p, nil
}

// Owns reports whether sk is the secret key of the compressed public key pk.
func Owns(sk, pk types.Field) bool {
	derived, err := Compress(PublicPoint(sk))
	if err != nil {
		return false
	}
	return derived == pk
}
