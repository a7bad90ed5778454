// Package state implements the nullifier tracker: a sparse Merkle tree that
// records every spent nullifier. Transitions stage their insertions in a
// Batch, which is either committed together with the commitment store
// changes or rolled back, leaving the committed tree untouched.
package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/zk-escrow/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

const (
	// size of the non-membership proofs
	MaxLevels = 160
	// MaxKeyLen is ceil(maxLevels/8)
	MaxKeyLen = (MaxLevels + 7) / 8
)

// hashFunc is the hash function used in the nullifier tree.
var hashFunc = arbo.HashFunctionPoseidon

// nullifierPrefix is the database prefix of the nullifier tree.
var nullifierPrefix = []byte("n/")

var (
	// ErrAlreadySpent is returned when a nullifier is already in the tree,
	// either committed or staged in the open batch.
	ErrAlreadySpent = errors.New("nullifier already spent")
	// ErrBatchClosed is returned when using a committed or rolled back batch.
	ErrBatchClosed = errors.New("batch is closed")
)

// State is the nullifier tree. Only one Batch can be open at a time.
type State struct {
	tree   *arbo.Tree
	db     db.Database
	treeDB db.Database
	gate   chan struct{}
}

// New creates or opens the nullifier tree stored in the passed database.
func New(database db.Database) (*State, error) {
	pdb := prefixeddb.NewPrefixedDatabase(database, nullifierPrefix)
	tree, err := arbo.NewTree(arbo.Config{
		Database: pdb, MaxLevels: MaxLevels,
		HashFunction: hashFunc,
	})
	if err != nil {
		return nil, err
	}
	return &State{
		tree:   tree,
		db:     database,
		treeDB: pdb,
		gate:   make(chan struct{}, 1),
	}, nil
}

// Root returns the committed root of the tree.
func (o *State) Root() (types.Field, error) {
	root, err := o.tree.Root()
	if err != nil {
		return types.Field{}, err
	}
	return types.NewField(arbo.BytesToBigInt(root)), nil
}

// Contains reports whether the nullifier is in the committed tree.
func (o *State) Contains(n types.Field) (bool, error) {
	_, _, err := o.tree.Get(nullifierKey(n))
	if errors.Is(err, arbo.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// NonMembershipWitness returns a proof that n is not in the committed tree.
func (o *State) NonMembershipWitness(n types.Field) (*Witness, error) {
	p, err := GenArboProof(o.tree, o.treeDB, nullifierKey(n))
	if err != nil {
		return nil, err
	}
	if p.Existence {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySpent, n.Hex())
	}
	return WitnessFromArboProof(p), nil
}

// Stage opens a new batch. It blocks until the previous batch is committed
// or rolled back, or until ctx is done.
func (o *State) Stage(ctx context.Context) (*Batch, error) {
	select {
	case o.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	rootTx := o.db.WriteTx()
	return &Batch{
		state:  o,
		rootTx: rootTx,
		tx:     prefixeddb.NewPrefixedWriteTx(rootTx, nullifierPrefix),
	}, nil
}

// nullifierKey returns the tree key of a nullifier: its MaxKeyLen least
// significant bytes in little-endian order.
func nullifierKey(n types.Field) []byte {
	return arbo.BigIntToBytes(MaxKeyLen, n.BigInt())
}

// nullifierValue returns the leaf value stored for a nullifier.
func nullifierValue(n types.Field) []byte {
	return arbo.BigIntToBytes(types.FieldSize, n.BigInt())
}
