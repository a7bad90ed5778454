// Package selector chooses the two commitments spent by a transition. The
// circuits always consume exactly two inputs, so when fewer than two real
// commitments are available the missing slots are filled with placeholders.
package selector

import (
	"errors"
	"math/big"
	"sort"

	"github.com/vocdoni/zk-escrow/commitment"
	"github.com/vocdoni/zk-escrow/types"
)

// ErrInsufficientFunds is returned when the owned commitments cannot cover
// the requested amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Selection is the result of Select. If Found is false the pair does not
// cover the target: the caller should join Inputs and select again.
type Selection struct {
	Found  bool
	Inputs [2]*commitment.Commitment
}

// Sum returns the total value of the selected inputs.
func (s *Selection) Sum() *big.Int {
	return Total(s.Inputs[:])
}

// Placeholders returns the number of placeholder inputs.
func (s *Selection) Placeholders() int {
	n := 0
	for _, in := range s.Inputs {
		if in.IsPlaceholder() {
			n++
		}
	}
	return n
}

// Select picks two commitments out of available whose values add up to at
// least target. available must be ordered oldest first; the first pair
// (i<j) that covers the target is chosen. stateVarID and ownerPublicKey are
// used to build the placeholders.
//
//   - no commitments: Found=false with two placeholders.
//   - one commitment: Found=false with the commitment and a placeholder.
//   - otherwise, if no pair covers the target: Found=false with the two
//     commitments of highest value.
func Select(available []*commitment.Commitment, target types.Field, stateVarID, ownerPublicKey types.Field) *Selection {
	placeholder := func() *commitment.Commitment {
		return commitment.Placeholder(stateVarID, ownerPublicKey)
	}
	switch len(available) {
	case 0:
		return &Selection{Inputs: [2]*commitment.Commitment{placeholder(), placeholder()}}
	case 1:
		return &Selection{Inputs: [2]*commitment.Commitment{available[0], placeholder()}}
	}

	t := target.BigInt()
	sum := new(big.Int)
	for i := 0; i < len(available)-1; i++ {
		for j := i + 1; j < len(available); j++ {
			sum.Add(available[i].Value().BigInt(), available[j].Value().BigInt())
			if sum.Cmp(t) >= 0 {
				return &Selection{
					Found:  true,
					Inputs: [2]*commitment.Commitment{available[i], available[j]},
				}
			}
		}
	}

	return &Selection{Inputs: Highest(available)}
}

// Highest returns the two commitments of highest value, keeping the stored
// order between equal values. available must hold at least two commitments.
func Highest(available []*commitment.Commitment) [2]*commitment.Commitment {
	byValue := append([]*commitment.Commitment(nil), available...)
	sort.SliceStable(byValue, func(i, j int) bool {
		return byValue[i].Value().Cmp(byValue[j].Value()) > 0
	})
	return [2]*commitment.Commitment{byValue[0], byValue[1]}
}

// Total returns the sum of the values of the commitments.
func Total(cs []*commitment.Commitment) *big.Int {
	total := new(big.Int)
	for _, c := range cs {
		total.Add(total, c.Value().BigInt())
	}
	return total
}
