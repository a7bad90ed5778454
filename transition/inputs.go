package transition

import (
	"github.com/vocdoni/zk-escrow/commitment"
	"github.com/vocdoni/zk-escrow/state"
	"github.com/vocdoni/zk-escrow/timber"
	"github.com/vocdoni/zk-escrow/types"
)

// spentInput is one of the two input slots of a spending transition.
type spentInput struct {
	commitment *commitment.Commitment
	nullifier  types.Field
	// non-membership witness before the insertion and membership witness
	// right after it
	before *state.Witness
	after  *state.Witness
	// membership of the commitment in the shield tree
	membership *timber.Witness
}

// spendWitness gathers everything a spending circuit proves about its inputs.
type spendWitness struct {
	inputs           [2]spentInput
	nullifierRoot    types.Field
	newNullifierRoot types.Field
	commitmentRoot   types.Field
}

func (w *spendWitness) nullifiers() types.Fields {
	return types.Fields{w.inputs[0].nullifier, w.inputs[1].nullifier}
}

// vector accumulates the ordered input vector of a circuit.
type vector types.Fields

func (v *vector) add(fs ...types.Field) *vector {
	*v = append(*v, fs...)
	return v
}

func (v *vector) fields() types.Fields {
	return types.Fields(*v)
}

// addSpend appends the part shared by every spending circuit: the owner
// secret twice (one per input), the nullifier roots, each nullifier with its
// paths, the previous values and salts, and the commitment tree root with
// the index and path of each input.
func (v *vector) addSpend(secretKey types.Field, w *spendWitness) *vector {
	v.add(secretKey, secretKey, w.nullifierRoot, w.newNullifierRoot)
	for _, in := range w.inputs {
		v.add(in.nullifier)
		v.add(in.before.Path()...)
		v.add(in.after.Path()...)
	}
	for _, in := range w.inputs {
		v.add(in.commitment.Value(), in.commitment.Preimage.Salt)
	}
	v.add(w.commitmentRoot)
	for _, in := range w.inputs {
		v.add(types.FieldFromUint64(in.membership.Index))
		v.add(in.membership.Path...)
	}
	return v
}

// addNewCommitment appends the owner key, salt and hash of a new commitment.
func (v *vector) addNewCommitment(c *commitment.Commitment) *vector {
	return v.add(c.Preimage.OwnerPublicKey, c.Preimage.Salt, c.Hash)
}

// depositInputs: amount, key, newOwnerPublicKey, newSalt, newCommitment.
func depositInputs(amount, mappingKey types.Field, out *commitment.Commitment) types.Fields {
	v := &vector{}
	return v.add(amount, mappingKey).addNewCommitment(out).fields()
}

// withdrawInputs: amount, key, spend section, change commitment.
func withdrawInputs(amount, mappingKey, secretKey types.Field, w *spendWitness, change *commitment.Commitment) types.Fields {
	v := &vector{}
	return v.add(amount, mappingKey).addSpend(secretKey, w).addNewCommitment(change).fields()
}

// joinInputs: key, spend section, joined commitment.
func joinInputs(mappingKey, secretKey types.Field, w *spendWitness, joined *commitment.Commitment) types.Fields {
	v := &vector{}
	return v.add(mappingKey).addSpend(secretKey, w).addNewCommitment(joined).fields()
}

// transferInputs: recipient, amount, key, spend section, change commitment,
// recipient salt and commitment, ephemeral secret and the recipient public
// key point. The circuit outputs the encrypted recipient preimage.
func transferInputs(recipientKey, amount, mappingKey, secretKey types.Field, w *spendWitness,
	change, sent *commitment.Commitment, ephemeral types.Field, recipientPoint [2]types.Field,
) types.Fields {
	v := &vector{}
	return v.add(recipientKey, amount, mappingKey).
		addSpend(secretKey, w).
		addNewCommitment(change).
		add(sent.Preimage.Salt, sent.Hash).
		add(ephemeral, recipientPoint[0], recipientPoint[1]).
		fields()
}
