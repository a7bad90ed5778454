// Package encryption implements the KEM-DEM scheme used to share the
// preimage of a commitment with its new owner. The key is encapsulated with
// an ephemeral BabyJubJub key and every message element is masked with a
// Poseidon derived pad.
package encryption

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/vocdoni/zk-escrow/crypto/hash/poseidon"
	"github.com/vocdoni/zk-escrow/crypto/keys"
	"github.com/vocdoni/zk-escrow/types"
	"github.com/vocdoni/zk-escrow/util"
)

// Domain separators of the key encapsulation and data encapsulation hashes.
var (
	DomainKEM = types.FieldFromUint64(10)
	DomainDEM = types.FieldFromUint64(20)
)

// ErrInvalidEphemeralKey is returned when the ephemeral key is not a point
// of the curve.
var ErrInvalidEphemeralKey = errors.New("invalid ephemeral public key")

// Encrypt encrypts the plaintext for the owner of recipient, a compressed
// public key. It returns the ciphertext and the ephemeral public key.
func Encrypt(plaintext types.Fields, recipient types.Field) (types.Fields, [2]types.Field, error) {
	return EncryptWithEphemeral(plaintext, recipient, util.RandomSalt())
}

// EncryptWithEphemeral is like Encrypt but uses the given ephemeral secret.
func EncryptWithEphemeral(plaintext types.Fields, recipient, ephemeral types.Field) (types.Fields, [2]types.Field, error) {
	pub, err := keys.Decompress(recipient)
	if err != nil {
		return nil, [2]types.Field{}, err
	}
	ephPub := keys.PublicPoint(ephemeral)
	shared := babyjub.NewPoint().Mul(ephemeral.BigInt(), pub)
	key, err := kem(shared)
	if err != nil {
		return nil, [2]types.Field{}, err
	}
	out, err := dem(key, plaintext, false)
	if err != nil {
		return nil, [2]types.Field{}, err
	}
	return out, [2]types.Field{types.NewField(ephPub.X), types.NewField(ephPub.Y)}, nil
}

// Decrypt recovers the plaintext of a ciphertext encrypted for the public
// key of sk.
func Decrypt(ciphertext types.Fields, ephPub [2]types.Field, sk types.Field) (types.Fields, error) {
	p := &babyjub.Point{X: ephPub[0].BigInt(), Y: ephPub[1].BigInt()}
	if !p.InCurve() {
		return nil, ErrInvalidEphemeralKey
	}
	shared := babyjub.NewPoint().Mul(sk.BigInt(), p)
	key, err := kem(shared)
	if err != nil {
		return nil, err
	}
	return dem(key, ciphertext, true)
}

func kem(shared *babyjub.Point) (types.Field, error) {
	key, err := poseidon.Hash(types.NewField(shared.X), types.NewField(shared.Y), DomainKEM)
	if err != nil {
		return types.Field{}, fmt.Errorf("kem: %w", err)
	}
	return key, nil
}

func dem(key types.Field, msgs types.Fields, decrypt bool) (types.Fields, error) {
	out := make(types.Fields, len(msgs))
	for i, m := range msgs {
		pad, err := poseidon.Hash(key, DomainDEM, types.FieldFromUint64(uint64(i)))
		if err != nil {
			return nil, fmt.Errorf("dem: %w", err)
		}
		v := m.BigInt()
		if decrypt {
			v.Sub(v, pad.BigInt())
		} else {
			v.Add(v, pad.BigInt())
		}
		out[i] = types.NewField(v)
	}
	return out, nil
}

// Plaintext is the content shared with the owner of a new commitment.
type Plaintext struct {
	StateVarID types.Field
	Value      types.Field
	Salt       types.Field
}

// Fields returns the plaintext in the order it is encrypted.
func (p Plaintext) Fields() types.Fields {
	return types.Fields{p.StateVarID, p.Value, p.Salt}
}

// PlaintextFromFields parses a decrypted message.
func PlaintextFromFields(fs types.Fields) (*Plaintext, error) {
	if len(fs) != 3 {
		return nil, fmt.Errorf("expected 3 plaintext elements, got %d", len(fs))
	}
	return &Plaintext{StateVarID: fs[0], Value: fs[1], Salt: fs[2]}, nil
}

// valueBound is the largest value accepted from a decrypted payload; a
// wrong key yields pseudo random elements that almost never fit.
var valueBound = new(big.Int).Lsh(big.NewInt(1), 128)

// Plausible reports whether the plaintext looks like a correctly decrypted
// message.
func (p *Plaintext) Plausible() bool {
	return p.Value.BigInt().Cmp(valueBound) < 0
}
