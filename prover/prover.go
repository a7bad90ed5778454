// Package prover generates the zero-knowledge proofs of the shield circuits.
// The engine only depends on the Prover interface; two implementations are
// provided: a client of a remote proof-generation worker and a local
// rapidsnark based prover.
package prover

import (
	"context"
	"errors"

	"github.com/vocdoni/zk-escrow/types"
)

// Circuit identifies one of the shield circuits.
type Circuit string

const (
	CircuitDeposit  Circuit = "deposit"
	CircuitTransfer Circuit = "transfer"
	CircuitWithdraw Circuit = "withdraw"
	CircuitJoin     Circuit = "joinCommitments"
)

// Circuits lists every circuit the engine uses.
var Circuits = []Circuit{CircuitDeposit, CircuitTransfer, CircuitWithdraw, CircuitJoin}

// ErrUnknownCircuit is returned for circuits without artifacts.
var ErrUnknownCircuit = errors.New("unknown circuit")

// ErrMalformedProof is returned when a generated proof lacks coordinates.
var ErrMalformedProof = errors.New("malformed proof")

// Proof is a generated proof. Coefficients holds the flattened proof points
// (a, b, c) in the order the verifier contract expects them, and Inputs the
// public inputs and outputs of the circuit.
type Proof struct {
	Coefficients types.Fields `json:"proof"`
	Inputs       types.Fields `json:"inputs"`
}

// Prover generates a proof for a circuit given its ordered input vector.
type Prover interface {
	GenerateProof(ctx context.Context, circuit Circuit, inputs types.Fields) (*Proof, error)
}
