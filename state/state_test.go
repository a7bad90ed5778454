package state

import (
	"context"
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-escrow/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestInsertAndCommit(t *testing.T) {
	c := qt.New(t)
	st, err := New(metadb.NewTest(t))
	c.Assert(err, qt.IsNil)

	root0, err := st.Root()
	c.Assert(err, qt.IsNil)
	n0 := types.FieldFromUint64(1111)
	n1 := types.FieldFromUint64(2222)

	w, err := st.NonMembershipWitness(n0)
	c.Assert(err, qt.IsNil)
	c.Assert(w.Root, qt.Equals, root0)
	c.Assert(w.Siblings, qt.HasLen, MaxLevels)
	c.Assert(w.Existence, qt.IsFalse)

	b, err := st.Stage(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(b.Insert(n0), qt.IsNil)
	inserted, err := b.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(inserted, qt.Not(qt.Equals), root0)
	c.Assert(b.Insert(n1), qt.IsNil)

	// the staged view sees both, the committed one none
	_, err = b.NonMembershipWitness(n0)
	c.Assert(err, qt.ErrorIs, ErrAlreadySpent)
	upd, err := b.Witness(n1)
	c.Assert(err, qt.IsNil)
	c.Assert(upd.Existence, qt.IsTrue)
	stagedRoot, err := b.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(upd.Root, qt.Equals, stagedRoot)
	committed, err := st.Contains(n0)
	c.Assert(err, qt.IsNil)
	c.Assert(committed, qt.IsFalse)

	c.Assert(b.Commit(), qt.IsNil)
	root1, err := st.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root1, qt.Equals, stagedRoot)
	c.Assert(root1, qt.Not(qt.Equals), root0)

	// using a closed batch fails, rollback after commit does nothing
	err = b.Insert(types.FieldFromUint64(3))
	c.Assert(err, qt.ErrorIs, ErrBatchClosed)
	b.Rollback()
	root, err := st.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root, qt.Equals, root1)
}

func TestNoDoubleSpend(t *testing.T) {
	c := qt.New(t)
	st, err := New(metadb.NewTest(t))
	c.Assert(err, qt.IsNil)
	n := types.FieldFromUint64(42)

	// twice in the same batch
	b, err := st.Stage(context.Background())
	c.Assert(err, qt.IsNil)
	err = b.Insert(n)
	c.Assert(err, qt.IsNil)
	err = b.Insert(n)
	c.Assert(err, qt.ErrorIs, ErrAlreadySpent)
	c.Assert(b.Commit(), qt.IsNil)

	// again after the commit
	_, err = st.NonMembershipWitness(n)
	c.Assert(err, qt.ErrorIs, ErrAlreadySpent)
	b, err = st.Stage(context.Background())
	c.Assert(err, qt.IsNil)
	defer b.Rollback()
	err = b.Insert(n)
	c.Assert(err, qt.ErrorIs, ErrAlreadySpent)
}

func TestRollback(t *testing.T) {
	c := qt.New(t)
	st, err := New(metadb.NewTest(t))
	c.Assert(err, qt.IsNil)
	root0, err := st.Root()
	c.Assert(err, qt.IsNil)

	n := types.FieldFromUint64(77)
	b, err := st.Stage(context.Background())
	c.Assert(err, qt.IsNil)
	err = b.Insert(n)
	c.Assert(err, qt.IsNil)
	b.Rollback()
	b.Rollback()

	root, err := st.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root, qt.Equals, root0)
	_, err = st.NonMembershipWitness(n)
	c.Assert(err, qt.IsNil)

	// the nullifier can be staged again
	b, err = st.Stage(context.Background())
	c.Assert(err, qt.IsNil)
	err = b.Insert(n)
	c.Assert(err, qt.IsNil)
	c.Assert(b.Commit(), qt.IsNil)
}

func TestCommitWithFailureRollsBack(t *testing.T) {
	c := qt.New(t)
	st, err := New(metadb.NewTest(t))
	c.Assert(err, qt.IsNil)
	root0, err := st.Root()
	c.Assert(err, qt.IsNil)

	b, err := st.Stage(context.Background())
	c.Assert(err, qt.IsNil)
	err = b.Insert(types.FieldFromUint64(5))
	c.Assert(err, qt.IsNil)
	errStore := errors.New("store failed")
	err = b.CommitWith(func(db.WriteTx) error { return errStore })
	c.Assert(err, qt.ErrorIs, errStore)

	root, err := st.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root, qt.Equals, root0)
}

func TestStageWaitsForOpenBatch(t *testing.T) {
	c := qt.New(t)
	st, err := New(metadb.NewTest(t))
	c.Assert(err, qt.IsNil)

	b, err := st.Stage(context.Background())
	c.Assert(err, qt.IsNil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = st.Stage(ctx)
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)

	b.Rollback()
	b2, err := st.Stage(context.Background())
	c.Assert(err, qt.IsNil)
	b2.Rollback()
}

func TestNoop(t *testing.T) {
	c := qt.New(t)
	w := Noop(types.FieldFromUint64(9))
	c.Assert(w.Root, qt.Equals, types.FieldFromUint64(9))
	c.Assert(w.Siblings, qt.HasLen, MaxLevels)
	c.Assert(w.IsOld0, qt.IsTrue)
}
