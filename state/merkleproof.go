package state

import (
	"math/big"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/zk-escrow/types"
	"go.vocdoni.io/dvote/db"
)

// ArboProof stores the proof in arbo native types
type ArboProof struct {
	// Key+Value hashed through Siblings path, should produce Root hash
	Root      []byte
	Siblings  [][]byte
	Key       []byte
	Value     []byte
	Existence bool
}

// GenArboProof generates the proof of k using the reader r, which is the
// tree database or a write transaction over it.
func GenArboProof(t *arbo.Tree, r db.Reader, k []byte) (ArboProof, error) {
	root, err := t.RootWithTx(r)
	if err != nil {
		return ArboProof{}, err
	}
	leafK, leafV, packedSiblings, existence, err := t.GenProofWithTx(r, k)
	if err != nil {
		return ArboProof{}, err
	}
	unpackedSiblings, err := arbo.UnpackSiblings(hashFunc, packedSiblings)
	if err != nil {
		return ArboProof{}, err
	}
	return ArboProof{
		Root:      root,
		Siblings:  unpackedSiblings,
		Key:       leafK,
		Value:     leafV,
		Existence: existence,
	}, nil
}

// Witness is a membership or non-membership proof of a nullifier, in the
// form the circuits consume it. For non-membership proofs Key and Value
// hold the leaf found in the path of the nullifier, if any, and IsOld0 is
// set when the path ends in an empty node.
type Witness struct {
	Root      types.Field  `json:"root"`
	Siblings  types.Fields `json:"siblings"`
	Key       types.Field  `json:"key"`
	Value     types.Field  `json:"value"`
	Existence bool         `json:"existence"`
	IsOld0    bool         `json:"isOld0"`
}

// WitnessFromArboProof converts the proof and pads the siblings up to
// MaxLevels.
func WitnessFromArboProof(p ArboProof) *Witness {
	return &Witness{
		Root:      types.NewField(arbo.BytesToBigInt(p.Root)),
		Siblings:  padSiblings(p.Siblings),
		Key:       types.NewField(arbo.BytesToBigInt(p.Key)),
		Value:     types.NewField(arbo.BytesToBigInt(p.Value)),
		Existence: p.Existence,
		IsOld0:    len(p.Key) == 0 && len(p.Value) == 0,
	}
}

// Path returns the padded siblings, the part of the witness that is passed
// to the circuits.
func (w *Witness) Path() types.Fields {
	return w.Siblings
}

func padSiblings(unpackedSiblings [][]byte) types.Fields {
	paddedSiblings := make(types.Fields, MaxLevels)
	for i := range MaxLevels {
		if i < len(unpackedSiblings) {
			paddedSiblings[i] = types.NewField(arbo.BytesToBigInt(unpackedSiblings[i]))
		} else {
			paddedSiblings[i] = types.NewField(big.NewInt(0))
		}
	}
	return paddedSiblings
}

// Noop returns the witness used for unused input slots: the given root and
// an empty path.
func Noop(root types.Field) *Witness {
	return &Witness{
		Root:     root,
		Siblings: padSiblings(nil),
		IsOld0:   true,
	}
}
