package state

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/types"
	"go.vocdoni.io/dvote/db"
)

// Batch stages nullifier insertions on top of the committed tree. Proofs
// generated from a batch see the staged insertions. A Batch is not safe for
// concurrent use.
type Batch struct {
	state  *State
	rootTx db.WriteTx
	tx     db.WriteTx
	staged []types.Field
	closed bool
}

// NonMembershipWitness returns a proof that n is neither committed nor
// staged. Returns ErrAlreadySpent otherwise.
func (b *Batch) NonMembershipWitness(n types.Field) (*Witness, error) {
	if b.closed {
		return nil, ErrBatchClosed
	}
	p, err := GenArboProof(b.state.tree, b.tx, nullifierKey(n))
	if err != nil {
		return nil, err
	}
	if p.Existence {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySpent, n.Hex())
	}
	return WitnessFromArboProof(p), nil
}

// Insert stages the insertion of n.
// Returns ErrAlreadySpent if n is already committed or staged.
func (b *Batch) Insert(n types.Field) error {
	if b.closed {
		return ErrBatchClosed
	}
	key := nullifierKey(n)
	before, err := GenArboProof(b.state.tree, b.tx, key)
	if err != nil {
		return err
	}
	if before.Existence {
		if !bytes.Equal(before.Value, nullifierValue(n)) {
			return fmt.Errorf("nullifier key collision for %s", n.Hex())
		}
		return fmt.Errorf("%w: %s", ErrAlreadySpent, n.Hex())
	}
	if err := b.state.tree.AddWithTx(b.tx, key, nullifierValue(n)); err != nil {
		if errors.Is(err, arbo.ErrKeyAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrAlreadySpent, n.Hex())
		}
		return fmt.Errorf("stage nullifier: %w", err)
	}
	b.staged = append(b.staged, n)
	return nil
}

// Witness returns the membership proof of a staged nullifier against the
// staged root.
func (b *Batch) Witness(n types.Field) (*Witness, error) {
	if b.closed {
		return nil, ErrBatchClosed
	}
	p, err := GenArboProof(b.state.tree, b.tx, nullifierKey(n))
	if err != nil {
		return nil, err
	}
	if !p.Existence {
		return nil, fmt.Errorf("nullifier %s is not staged", n.Hex())
	}
	return WitnessFromArboProof(p), nil
}

// Root returns the root of the tree including the staged insertions.
func (b *Batch) Root() (types.Field, error) {
	if b.closed {
		return types.Field{}, ErrBatchClosed
	}
	root, err := b.state.tree.RootWithTx(b.tx)
	if err != nil {
		return types.Field{}, err
	}
	return types.NewField(arbo.BytesToBigInt(root)), nil
}

// Staged returns the nullifiers staged so far.
func (b *Batch) Staged() []types.Field {
	return append([]types.Field(nil), b.staged...)
}

// Commit makes the staged insertions permanent.
func (b *Batch) Commit() error {
	return b.CommitWith(func(wTx db.WriteTx) error {
		return wTx.Commit()
	})
}

// CommitWith passes the underlying write transaction to fn, which may write
// more data to it and must commit it. If fn fails the batch is rolled back.
// This allows other components sharing the database to land their changes
// atomically with the staged nullifiers.
func (b *Batch) CommitWith(fn func(wTx db.WriteTx) error) error {
	if b.closed {
		return ErrBatchClosed
	}
	if err := fn(b.rootTx); err != nil {
		b.Rollback()
		return err
	}
	// release the resources of the committed transaction
	b.rootTx.Discard()
	b.close()
	log.Debugw("nullifiers committed", "count", len(b.staged))
	return nil
}

// Rollback discards the staged insertions. It is safe to call it more than
// once and after Commit, in which case it does nothing.
func (b *Batch) Rollback() {
	if b.closed {
		return
	}
	b.rootTx.Discard()
	b.close()
	if len(b.staged) > 0 {
		log.Debugw("nullifiers rolled back", "count", len(b.staged))
	}
}

func (b *Batch) close() {
	b.closed = true
	<-b.state.gate
}
