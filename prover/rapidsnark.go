package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iden3/go-rapidsnark/prover"
	"github.com/iden3/go-rapidsnark/witness"
	"github.com/vocdoni/circom2gnark/parser"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/types"
)

// InputSignal is the name of the input signal array of the circom circuits.
const InputSignal = "inputs"

// Rapidsnark generates Groth16 proofs locally from circom artifacts. If a
// verification key is available, every proof is verified before being
// returned.
type Rapidsnark struct {
	artifacts map[Circuit]*CircuitArtifacts
}

// NewRapidsnark returns a local prover for the given circuits.
func NewRapidsnark(artifacts map[Circuit]*CircuitArtifacts) *Rapidsnark {
	return &Rapidsnark{artifacts: artifacts}
}

// GenerateProof implements Prover.
func (r *Rapidsnark) GenerateProof(ctx context.Context, circuit Circuit, inputs types.Fields) (*Proof, error) {
	ca, ok := r.artifacts[circuit]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCircuit, circuit)
	}
	if err := ca.LoadAll(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	inputsJSON, err := json.Marshal(map[string][]string{InputSignal: inputs.Strings()})
	if err != nil {
		return nil, err
	}
	finalInputs, err := witness.ParseInputs(inputsJSON)
	if err != nil {
		return nil, fmt.Errorf("parse inputs: %w", err)
	}
	calc, err := witness.NewCircom2WitnessCalculator(ca.Wasm(), true)
	if err != nil {
		return nil, fmt.Errorf("witness calculator: %w", err)
	}
	wtns, err := calc.CalculateWTNSBin(finalInputs, true)
	if err != nil {
		return nil, fmt.Errorf("calculate witness: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	proofJSON, pubSignalsJSON, err := prover.Groth16ProverRaw(ca.ProvingKey(), wtns)
	if err != nil {
		return nil, fmt.Errorf("groth16 prover: %w", err)
	}
	proof, err := parseCircomProof(ca.VerifyingKey(), proofJSON, pubSignalsJSON)
	if err != nil {
		return nil, err
	}
	log.Debugw("proof generated locally", "circuit", circuit, "took", time.Since(start).String())
	return proof, nil
}

// parseCircomProof converts the snarkjs style proof and public signals, and
// verifies them if vkey is not empty.
func parseCircomProof(vkey []byte, proofJSON, pubSignalsJSON string) (*Proof, error) {
	circomProof, err := parser.UnmarshalCircomProofJSON([]byte(proofJSON))
	if err != nil {
		return nil, fmt.Errorf("parse proof: %w", err)
	}
	pubSignals, err := parser.UnmarshalCircomPublicSignalsJSON([]byte(pubSignalsJSON))
	if err != nil {
		return nil, fmt.Errorf("parse public signals: %w", err)
	}
	if !wellFormed(circomProof) {
		return nil, ErrMalformedProof
	}
	if len(vkey) > 0 {
		vk, err := parser.UnmarshalCircomVerificationKeyJSON(vkey)
		if err != nil {
			return nil, fmt.Errorf("parse verification key: %w", err)
		}
		gnarkProof, err := parser.ConvertCircomToGnark(circomProof, vk, pubSignals)
		if err != nil {
			return nil, fmt.Errorf("convert proof: %w", err)
		}
		if ok, err := parser.VerifyProof(gnarkProof); !ok || err != nil {
			return nil, fmt.Errorf("proof verification failed: %v", err)
		}
	}
	// the verifier contract takes the coordinates of b in reverse order
	flat := []string{
		circomProof.PiA[0], circomProof.PiA[1],
		circomProof.PiB[0][1], circomProof.PiB[0][0],
		circomProof.PiB[1][1], circomProof.PiB[1][0],
		circomProof.PiC[0], circomProof.PiC[1],
	}
	coefs, err := types.FieldsFromStrings(flat)
	if err != nil {
		return nil, fmt.Errorf("invalid proof: %w", err)
	}
	ins, err := types.FieldsFromStrings(pubSignals)
	if err != nil {
		return nil, fmt.Errorf("invalid public signals: %w", err)
	}
	return &Proof{Coefficients: coefs, Inputs: ins}, nil
}

// wellFormed checks that every coordinate read from the proof is present.
func wellFormed(p *parser.CircomProof) bool {
	if len(p.PiA) < 2 || len(p.PiB) < 2 || len(p.PiC) < 2 {
		return false
	}
	return len(p.PiB[0]) >= 2 && len(p.PiB[1]) >= 2
}
