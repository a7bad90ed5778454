package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/zk-escrow/types"
)

// chunkSize is the maximum number of inputs accepted by a single Poseidon
// permutation.
const chunkSize = 16

// MultiPoseidon hashes up to 256 inputs by hashing them in chunks of 16 and
// then hashing the chunk hashes together. For 16 inputs or less the result
// matches a plain Poseidon hash.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) > 256 {
		return nil, fmt.Errorf("too many inputs")
	} else if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	hashes := []*big.Int{}
	chunk := []*big.Int{}
	for _, input := range inputs {
		if len(chunk) == chunkSize {
			hash, err := poseidon.Hash(chunk)
			if err != nil {
				return nil, err
			}
			hashes = append(hashes, hash)
			chunk = []*big.Int{}
		}
		chunk = append(chunk, input)
	}
	if len(chunk) > 0 {
		hash, err := poseidon.Hash(chunk)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	if len(hashes) == 1 {
		return hashes[0], nil
	}
	return poseidon.Hash(hashes)
}

// Hash returns the Poseidon hash of the given field elements.
func Hash(inputs ...types.Field) (types.Field, error) {
	bis := types.Fields(inputs).BigInts()
	h, err := MultiPoseidon(bis...)
	if err != nil {
		return types.Field{}, fmt.Errorf("poseidon: %w", err)
	}
	return types.NewField(h), nil
}
