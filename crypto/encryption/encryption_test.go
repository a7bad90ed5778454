package encryption

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-escrow/crypto/keys"
	"github.com/vocdoni/zk-escrow/types"
)

func TestEncryptDecrypt(t *testing.T) {
	c := qt.New(t)
	recipient, err := keys.Generate()
	c.Assert(err, qt.IsNil)

	msg := Plaintext{
		StateVarID: types.FieldFromUint64(42),
		Value:      types.FieldFromUint64(100),
		Salt:       types.FieldFromUint64(7),
	}
	ct, eph, err := Encrypt(msg.Fields(), recipient.PublicKey)
	c.Assert(err, qt.IsNil)
	c.Assert(ct, qt.HasLen, 3)
	c.Assert(ct, qt.Not(qt.DeepEquals), msg.Fields())

	pt, err := Decrypt(ct, eph, recipient.SecretKey)
	c.Assert(err, qt.IsNil)
	c.Assert(pt, qt.DeepEquals, msg.Fields())

	parsed, err := PlaintextFromFields(pt)
	c.Assert(err, qt.IsNil)
	c.Assert(*parsed, qt.Equals, msg)
	c.Assert(parsed.Plausible(), qt.IsTrue)
}

func TestDecryptWrongKey(t *testing.T) {
	c := qt.New(t)
	recipient, err := keys.Generate()
	c.Assert(err, qt.IsNil)
	other, err := keys.Generate()
	c.Assert(err, qt.IsNil)

	msg := types.Fields{types.FieldFromUint64(1), types.FieldFromUint64(2), types.FieldFromUint64(3)}
	ct, eph, err := Encrypt(msg, recipient.PublicKey)
	c.Assert(err, qt.IsNil)

	pt, err := Decrypt(ct, eph, other.SecretKey)
	c.Assert(err, qt.IsNil)
	c.Assert(pt, qt.Not(qt.DeepEquals), msg)
}

func TestDecryptInvalidEphemeralKey(t *testing.T) {
	c := qt.New(t)
	_, err := Decrypt(types.Fields{types.FieldFromUint64(1)},
		[2]types.Field{types.FieldFromUint64(1), types.FieldFromUint64(2)}, types.FieldFromUint64(3))
	c.Assert(err, qt.ErrorIs, ErrInvalidEphemeralKey)
}
