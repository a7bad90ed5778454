package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-escrow/commitment"
	"github.com/vocdoni/zk-escrow/transition"
	"github.com/vocdoni/zk-escrow/types"
)

// DepositRequest is the body of a deposit. The new commitment is owned by
// RecipientPublicKey, or by the local owner when it is empty.
type DepositRequest struct {
	Value              string       `json:"value"`
	RecipientPublicKey *types.Field `json:"recipientPublicKey,omitempty"`
}

// TransferRequest is the body of a transfer. When RecipientPublicKey is empty
// the key registered by Recipient in the shield contract is used.
type TransferRequest struct {
	Value              string         `json:"value"`
	Recipient          common.Address `json:"recipient"`
	RecipientPublicKey *types.Field   `json:"recipientPublicKey,omitempty"`
}

// AmountRequest is the body of the requests that only carry an amount
// (withdraw and mint).
type AmountRequest struct {
	Value string `json:"value"`
}

// ApproveRequest is the body of an ERC20 approval. The spender defaults to
// the shield contract.
type ApproveRequest struct {
	Value   string          `json:"value"`
	Spender *common.Address `json:"spender,omitempty"`
}

// TxResponse is returned by the calls that send a plain transaction.
type TxResponse struct {
	TxHash common.Hash `json:"txHash"`
}

// BalanceResponse holds a balance as a decimal string.
type BalanceResponse struct {
	Account common.Address `json:"account"`
	Balance string         `json:"balance"`
}

// Commitment is the public view of a stored commitment. The owner secret is
// never exposed, only whether the local owner can spend it.
type Commitment struct {
	Hash        types.Field         `json:"hash"`
	Name        string              `json:"name"`
	MappingKey  types.Field         `json:"mappingKey"`
	Preimage    commitment.Preimage `json:"preimage"`
	IsNullified bool                `json:"isNullified"`
	Owned       bool                `json:"owned"`
}

// Commitments is a list of commitments.
type Commitments struct {
	Commitments []*Commitment `json:"commitments"`
}

func commitmentView(c *commitment.Commitment) *Commitment {
	return &Commitment{
		Hash:        c.Hash,
		Name:        c.Name,
		MappingKey:  c.MappingKey,
		Preimage:    c.Preimage,
		IsNullified: c.IsNullified,
		Owned:       c.OwnerSecretKey != nil,
	}
}

// Transition is the outcome of a deposit, transfer, withdraw or join.
type Transition struct {
	ID             string                    `json:"id"`
	Operation      transition.Operation      `json:"operation"`
	TxHash         common.Hash               `json:"txHash"`
	LeafIndex      uint64                    `json:"leafIndex"`
	NewCommitments []*Commitment             `json:"newCommitments"`
	Nullifiers     types.Fields              `json:"nullifiers,omitempty"`
	Encrypted      *types.EncryptedDataEvent `json:"encrypted,omitempty"`
	Joins          []*Transition             `json:"joins,omitempty"`
}

func transitionView(r *transition.Result) *Transition {
	t := &Transition{
		ID:         r.ID,
		Operation:  r.Operation,
		TxHash:     r.TxHash,
		LeafIndex:  r.LeafIndex,
		Nullifiers: r.Nullifiers,
		Encrypted:  r.Encrypted,
	}
	for _, c := range r.NewCommitments {
		t.NewCommitments = append(t.NewCommitments, commitmentView(c))
	}
	for _, j := range r.Joins {
		t.Joins = append(t.Joins, transitionView(j))
	}
	return t
}
