package commitment

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-escrow/types"
)

func testPreimage() Preimage {
	return Preimage{
		StateVarID:     types.FieldFromUint64(11),
		Value:          types.FieldFromUint64(100),
		Salt:           types.FieldFromUint64(12345),
		OwnerPublicKey: types.FieldFromUint64(999),
	}
}

func TestHashIsDeterministic(t *testing.T) {
	c := qt.New(t)
	p := testPreimage()
	h1, err := p.Hash()
	c.Assert(err, qt.IsNil)
	h2, err := p.Hash()
	c.Assert(err, qt.IsNil)
	c.Assert(h1, qt.Equals, h2)

	// changing any element changes the hash
	p2 := p
	p2.Salt = types.FieldFromUint64(54321)
	h3, err := p2.Hash()
	c.Assert(err, qt.IsNil)
	c.Assert(h3, qt.Not(qt.Equals), h1)
}

func TestNewAndVerify(t *testing.T) {
	c := qt.New(t)
	sk := types.FieldFromUint64(3)
	cm, err := New(types.FieldFromUint64(1), testPreimage(), &sk)
	c.Assert(err, qt.IsNil)
	c.Assert(cm.Name, qt.Equals, BalancesName)
	c.Assert(cm.Verify(), qt.IsNil)
	c.Assert(cm.IsPlaceholder(), qt.IsFalse)

	cm.Preimage.Value = types.FieldFromUint64(101)
	c.Assert(cm.Verify(), qt.IsNotNil)
}

func TestNullifier(t *testing.T) {
	c := qt.New(t)
	p := testPreimage()
	n1, err := p.Nullifier(types.FieldFromUint64(5))
	c.Assert(err, qt.IsNil)
	n2, err := p.Nullifier(types.FieldFromUint64(6))
	c.Assert(err, qt.IsNil)
	c.Assert(n1, qt.Not(qt.Equals), n2)

	h, err := p.Hash()
	c.Assert(err, qt.IsNil)
	c.Assert(n1, qt.Not(qt.Equals), h)
}

func TestPlaceholder(t *testing.T) {
	c := qt.New(t)
	ph := Placeholder(types.FieldFromUint64(1), types.FieldFromUint64(2))
	c.Assert(ph.IsPlaceholder(), qt.IsTrue)
	c.Assert(ph.Value().IsZero(), qt.IsTrue)
}
