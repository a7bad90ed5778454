package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/vocdoni/zk-escrow/prover"
)

// ArtifactHashes are the sha256 hashes (hex) of the files of a circuit.
type ArtifactHashes struct {
	Wasm         string `json:"wasm"`
	ProvingKey   string `json:"zkey"`
	VerifyingKey string `json:"vkey"`
}

// Artifact file names under the artifacts URL, for a circuit named <c>:
// <c>.wasm, <c>_pkey.zkey and <c>_vkey.json.
const (
	wasmSuffix = ".wasm"
	zkeySuffix = "_pkey.zkey"
	vkeySuffix = "_vkey.json"
)

// CircuitArtifacts builds the artifacts of every circuit from the base URL
// and the manifest file, a JSON object mapping each circuit name to its
// ArtifactHashes.
func (cfg *Config) CircuitArtifacts() (map[prover.Circuit]*prover.CircuitArtifacts, error) {
	data, err := os.ReadFile(cfg.ArtifactsManifest)
	if err != nil {
		return nil, fmt.Errorf("read artifacts manifest: %w", err)
	}
	manifest := map[string]ArtifactHashes{}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode artifacts manifest: %w", err)
	}
	return circuitArtifacts(cfg.ArtifactsURL, manifest)
}

func circuitArtifacts(baseURL string, manifest map[string]ArtifactHashes) (map[prover.Circuit]*prover.CircuitArtifacts, error) {
	res := make(map[prover.Circuit]*prover.CircuitArtifacts, len(prover.Circuits))
	for _, circuit := range prover.Circuits {
		hashes, ok := manifest[string(circuit)]
		if !ok {
			return nil, fmt.Errorf("no artifacts for circuit %s", circuit)
		}
		wasm, err := artifact(baseURL, string(circuit)+wasmSuffix, hashes.Wasm)
		if err != nil {
			return nil, err
		}
		zkey, err := artifact(baseURL, string(circuit)+zkeySuffix, hashes.ProvingKey)
		if err != nil {
			return nil, err
		}
		vkey, err := artifact(baseURL, string(circuit)+vkeySuffix, hashes.VerifyingKey)
		if err != nil {
			return nil, err
		}
		res[circuit] = prover.NewCircuitArtifacts(wasm, zkey, vkey)
	}
	return res, nil
}

func artifact(baseURL, file, hash string) (*prover.Artifact, error) {
	u, err := url.JoinPath(baseURL, file)
	if err != nil {
		return nil, fmt.Errorf("artifact URL of %s: %w", file, err)
	}
	return prover.NewArtifact(u, hash)
}
