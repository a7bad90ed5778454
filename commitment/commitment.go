// Package commitment defines the hiding commitments that represent
// confidential balances, and the nullifiers that mark them as spent.
package commitment

import (
	"fmt"

	"github.com/vocdoni/zk-escrow/crypto/hash/poseidon"
	"github.com/vocdoni/zk-escrow/types"
)

// BalancesName is the name of the state variable holding balances.
const BalancesName = "balances"

// Preimage holds the values hidden by a commitment.
type Preimage struct {
	StateVarID     types.Field `json:"stateVarId" cbor:"0,keyasint"`
	Value          types.Field `json:"value" cbor:"1,keyasint"`
	Salt           types.Field `json:"salt" cbor:"2,keyasint"`
	OwnerPublicKey types.Field `json:"publicKey" cbor:"3,keyasint"`
}

// Hash computes Poseidon(stateVarId, value, ownerPublicKey, salt).
func (p Preimage) Hash() (types.Field, error) {
	h, err := poseidon.Hash(p.StateVarID, p.Value, p.OwnerPublicKey, p.Salt)
	if err != nil {
		return types.Field{}, fmt.Errorf("commitment hash: %w", err)
	}
	return h, nil
}

// Nullifier computes Poseidon(stateVarId, secretKey, salt).
func (p Preimage) Nullifier(secretKey types.Field) (types.Field, error) {
	n, err := poseidon.Hash(p.StateVarID, secretKey, p.Salt)
	if err != nil {
		return types.Field{}, fmt.Errorf("nullifier: %w", err)
	}
	return n, nil
}

// Commitment is a commitment known to this client. OwnerSecretKey is only
// set when the local client owns it.
type Commitment struct {
	Hash           types.Field  `json:"hash" cbor:"0,keyasint"`
	Name           string       `json:"name" cbor:"1,keyasint"`
	MappingKey     types.Field  `json:"mappingKey" cbor:"2,keyasint"`
	Preimage       Preimage     `json:"preimage" cbor:"3,keyasint"`
	OwnerSecretKey *types.Field `json:"secretKey,omitempty" cbor:"4,keyasint,omitempty"`
	IsNullified    bool         `json:"isNullified" cbor:"5,keyasint"`
}

// New builds a balance commitment and computes its hash.
func New(mappingKey types.Field, p Preimage, ownerSecretKey *types.Field) (*Commitment, error) {
	h, err := p.Hash()
	if err != nil {
		return nil, err
	}
	return &Commitment{
		Hash:           h,
		Name:           BalancesName,
		MappingKey:     mappingKey,
		Preimage:       p,
		OwnerSecretKey: ownerSecretKey,
	}, nil
}

// Placeholder returns the empty commitment used to fill unused input slots
// of a transition: value 0, salt 0 and hash 0.
func Placeholder(stateVarID, ownerPublicKey types.Field) *Commitment {
	return &Commitment{
		Name: BalancesName,
		Preimage: Preimage{
			StateVarID:     stateVarID,
			OwnerPublicKey: ownerPublicKey,
		},
	}
}

// IsPlaceholder reports whether c fills an empty slot.
func (c *Commitment) IsPlaceholder() bool {
	return c.Hash.IsZero() && c.Preimage.Value.IsZero() && c.Preimage.Salt.IsZero()
}

// Value returns the committed value.
func (c *Commitment) Value() types.Field {
	return c.Preimage.Value
}

// Verify checks that Hash matches the preimage.
func (c *Commitment) Verify() error {
	h, err := c.Preimage.Hash()
	if err != nil {
		return err
	}
	if h != c.Hash {
		return fmt.Errorf("commitment hash mismatch: stored %s, computed %s", c.Hash.Hex(), h.Hex())
	}
	return nil
}

// Nullifier derives the nullifier of c using the given secret key.
func (c *Commitment) Nullifier(secretKey types.Field) (types.Field, error) {
	return c.Preimage.Nullifier(secretKey)
}
