package types

import "github.com/ethereum/go-ethereum/common"

// TxReceipt summarizes a mined transaction sent to the shield contract,
// with the events the engine cares about already decoded.
type TxReceipt struct {
	TxHash        common.Hash           `json:"txHash"`
	BlockNumber   uint64                `json:"blockNumber"`
	GasUsed       uint64                `json:"gasUsed"`
	NewLeaves     *NewLeavesEvent       `json:"newLeaves,omitempty"`
	EncryptedData []*EncryptedDataEvent `json:"encryptedData,omitempty"`
}

// NewLeavesEvent is emitted by the shield contract when commitments are
// appended to its Merkle tree.
type NewLeavesEvent struct {
	MinLeafIndex uint64 `json:"minLeafIndex"`
	LeafValues   Fields `json:"leafValues"`
}

// EncryptedDataEvent carries the encrypted preimage of a commitment created
// for another party, together with the ephemeral public key needed to
// decrypt it.
type EncryptedDataEvent struct {
	CipherText   Fields      `json:"cipherText"`
	EphPublicKey [2]Field    `json:"ephPublicKey"`
	TxHash       common.Hash `json:"txHash"`
	BlockNumber  uint64      `json:"blockNumber"`
}
