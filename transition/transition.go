// Package transition builds the state transitions of the shield: deposits,
// transfers, withdrawals and joins. A transition selects the commitments to
// spend, stages their nullifiers, requests a proof, submits it to the chain
// and, once the transaction is mined, commits the nullifiers and the new
// commitments in a single database write. Any failure before that point
// rolls back every staged change.
package transition

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-escrow/commitment"
	"github.com/vocdoni/zk-escrow/crypto/keys"
	"github.com/vocdoni/zk-escrow/prover"
	"github.com/vocdoni/zk-escrow/selector"
	"github.com/vocdoni/zk-escrow/state"
	"github.com/vocdoni/zk-escrow/storage"
	"github.com/vocdoni/zk-escrow/timber"
	"github.com/vocdoni/zk-escrow/types"
	"github.com/vocdoni/zk-escrow/web3"
)

// DefaultMaxJoins leaves the join loop of a transfer or withdrawal without a
// cap. The loop still ends: each join removes one owned commitment, so it runs
// at most len(owned)-1 times.
const DefaultMaxJoins = 0

var (
	// ErrInsufficientFunds is returned when the owned commitments cannot
	// cover the amount.
	ErrInsufficientFunds = selector.ErrInsufficientFunds
	// ErrAlreadySpent is returned when the nullifier of an input is already
	// in the tracker.
	ErrAlreadySpent = state.ErrAlreadySpent
	// ErrProofService is returned when the proof could not be generated.
	ErrProofService = errors.New("proof service error")
	// ErrChainRejected is returned when the transaction failed or the shield
	// did not emit the expected NewLeaves event.
	ErrChainRejected = errors.New("transaction rejected by the chain")
	// ErrInvalidAmount is returned for zero amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrUnknownRecipient is returned when the recipient has no registered
	// public key.
	ErrUnknownRecipient = errors.New("recipient has no registered public key")
	// ErrNothingToJoin is returned by Join when fewer than two commitments
	// are owned.
	ErrNothingToJoin = errors.New("not enough commitments to join")
	// ErrTooManyJoins is returned when MaxJoins is set and reached before the
	// amount is covered, even if the owned commitments add up to it.
	ErrTooManyJoins = errors.New("join limit reached")
)

// Chain submits transactions to the shield and reads registered keys.
type Chain interface {
	CallMethod(ctx context.Context, contract, method string, args ...any) (*types.TxReceipt, error)
	ZKPPublicKey(ctx context.Context, account common.Address) (types.Field, error)
}

// MerkleTree serves membership witnesses of the commitments appended by the
// shield.
type MerkleTree interface {
	StartEventFilter(ctx context.Context, contract string) error
	MembershipWitness(ctx context.Context, contract string, leaf types.Field) (*timber.Witness, error)
	Placeholder(root types.Field) *timber.Witness
}

// Operation names a transition.
type Operation string

const (
	OpDeposit  Operation = "deposit"
	OpTransfer Operation = "transfer"
	OpWithdraw Operation = "withdraw"
	OpJoin     Operation = "join"
)

// Kind is the shape of a transition: how many commitments it spends and how
// many it creates.
type Kind int

const (
	// Spend0Produce1 creates one commitment out of public funds (deposit).
	Spend0Produce1 Kind = iota
	// Spend2Produce1 spends two commitments into one (withdraw, join).
	Spend2Produce1
	// Spend2Produce2 spends two commitments into a change commitment and a
	// recipient commitment (transfer).
	Spend2Produce2
)

// Result describes a finalized transition.
type Result struct {
	ID             string                    `json:"id"`
	Operation      Operation                 `json:"operation"`
	TxHash         common.Hash               `json:"txHash"`
	LeafIndex      uint64                    `json:"leafIndex"`
	NewCommitments []*commitment.Commitment  `json:"newCommitments"`
	Nullifiers     types.Fields              `json:"nullifiers,omitempty"`
	Encrypted      *types.EncryptedDataEvent `json:"encrypted,omitempty"`
	Joins          []*Result                 `json:"joins,omitempty"`
}

// Config holds the dependencies of a Builder. Storage and State must share
// the same database so a transition is finalized in a single write.
type Config struct {
	Storage  *storage.Storage
	State    *state.State
	Prover   prover.Prover
	Chain    Chain
	Tree     MerkleTree
	Keys     *keys.KeyPair
	Account  common.Address
	Contract string
	MaxJoins int
}

// Builder runs transitions on behalf of a single owner: the holder of Keys
// and of the Account that signs the transactions. Transitions of the same
// owner and state variable are serialized, others run concurrently.
type Builder struct {
	stg        *storage.Storage
	nullifiers *state.State
	prover     prover.Prover
	chain      Chain
	tree       MerkleTree
	keys       *keys.KeyPair
	account    common.Address
	contract   string
	maxJoins   int
	locks      *keyedLock
}

// New returns a Builder with the given configuration.
func New(cfg *Config) (*Builder, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("missing configuration")
	case cfg.Storage == nil || cfg.State == nil:
		return nil, fmt.Errorf("storage and state are required")
	case cfg.Prover == nil || cfg.Chain == nil || cfg.Tree == nil:
		return nil, fmt.Errorf("prover, chain and merkle tree clients are required")
	case cfg.Keys == nil:
		return nil, fmt.Errorf("owner keys are required")
	}
	if !keys.Owns(cfg.Keys.SecretKey, cfg.Keys.PublicKey) {
		return nil, fmt.Errorf("public key does not match the secret key")
	}
	b := &Builder{
		stg:        cfg.Storage,
		nullifiers: cfg.State,
		prover:     cfg.Prover,
		chain:      cfg.Chain,
		tree:       cfg.Tree,
		keys:       cfg.Keys,
		account:    cfg.Account,
		contract:   cfg.Contract,
		maxJoins:   cfg.MaxJoins,
		locks:      newKeyedLock(),
	}
	if b.contract == "" {
		b.contract = web3.EscrowShieldContract
	}
	if b.maxJoins < 0 {
		return nil, fmt.Errorf("invalid max joins %d", b.maxJoins)
	}
	return b, nil
}

// PublicKey returns the zero-knowledge public key of the owner.
func (b *Builder) PublicKey() types.Field {
	return b.keys.PublicKey
}

// Account returns the address of the owner.
func (b *Builder) Account() common.Address {
	return b.account
}

// Balance returns the total value of the commitments the owner can spend.
func (b *Builder) Balance() (types.Field, error) {
	stateVarID, _, err := b.ownBalance()
	if err != nil {
		return types.Field{}, err
	}
	owned, err := b.owned(stateVarID)
	if err != nil {
		return types.Field{}, err
	}
	return types.NewField(selector.Total(owned)), nil
}
