// Package mimc derives the identifiers of mapping entries of the shield
// contract state, using MiMC7 over BN254.
package mimc

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/mimc7"
	"github.com/vocdoni/zk-escrow/types"
)

// BalancesSlot is the storage slot of the balances mapping in the shield
// contract.
const BalancesSlot = 6

// Hash returns the MiMC7 hash of the inputs.
func Hash(inputs ...types.Field) (types.Field, error) {
	h, err := mimc7.Hash(types.Fields(inputs).BigInts(), nil)
	if err != nil {
		return types.Field{}, fmt.Errorf("mimc7: %w", err)
	}
	return types.NewField(h), nil
}

// StateVarID returns the identifier of the entry of the mapping stored at
// slot for the given mapping key.
func StateVarID(slot uint64, mappingKey types.Field) (types.Field, error) {
	return Hash(types.FieldFromUint64(slot), mappingKey)
}

// MappingKey returns the mapping key of an Ethereum account.
func MappingKey(addr common.Address) types.Field {
	return types.NewField(new(big.Int).SetBytes(addr.Bytes()))
}

// BalanceID returns the state variable id of the balance of addr.
func BalanceID(addr common.Address) (types.Field, error) {
	return StateVarID(BalancesSlot, MappingKey(addr))
}
