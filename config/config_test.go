package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-escrow/prover"
	"github.com/vocdoni/zk-escrow/transition"
)

const shield = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestLoadDefaults(t *testing.T) {
	c := qt.New(t)
	t.Setenv("ESCROW_SHIELD_ADDRESS", shield)
	t.Setenv("KEY", "0xabcdef")
	t.Setenv("POLLING_INTERVAL", "3s")

	cfg, err := Load(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.ShieldAddress, qt.Equals, common.HexToAddress(shield))
	c.Assert(cfg.AccountKey, qt.Equals, "0xabcdef")
	c.Assert(cfg.ZokratesURL, qt.Equals, "http://localhost:3002")
	c.Assert(cfg.TimberURL, qt.Equals, "http://localhost:3001")
	c.Assert(cfg.MaxJoins, qt.Equals, transition.DefaultMaxJoins)
	c.Assert(cfg.ListenerPolling, qt.Equals, 3*time.Second)
	c.Assert(cfg.ProverMode, qt.Equals, ProverHTTP)
	c.Assert(cfg.DefaultAccount, qt.Equals, common.Address{})
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	c := qt.New(t)
	t.Setenv("ESCROW_SHIELD_ADDRESS", shield)
	t.Setenv("TIMBER_URL", "http://timber:80")

	cfg, err := Load([]string{"--key", "01", "--timber", "http://other:81", "--maxJoins", "2"})
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.TimberURL, qt.Equals, "http://other:81")
	c.Assert(cfg.MaxJoins, qt.Equals, 2)
}

func TestLoadValidation(t *testing.T) {
	c := qt.New(t)
	t.Setenv("ESCROW_SHIELD_ADDRESS", "")

	_, err := Load([]string{"--key", "01"})
	c.Assert(err, qt.ErrorMatches, "missing shield address")

	_, err = Load([]string{"--key", "01", "--shield", "nope"})
	c.Assert(err, qt.ErrorMatches, `invalid shield address "nope"`)

	_, err = Load([]string{"--shield", shield, "--prover", "local"})
	c.Assert(err, qt.ErrorMatches, "(?s).*missing account private key.*local prover needs.*")
}

func TestCircuitArtifacts(t *testing.T) {
	c := qt.New(t)
	hashes := ArtifactHashes{
		Wasm:         "c9aa004cff03cce4a9b347b8d09f8f771ad608180dc0249354c0079243abcb50",
		ProvingKey:   "a9a83a8a446e4d84c9fd5342c0ec9f00d86d3d3884cf5dcae731c222b358ab1f",
		VerifyingKey: "3e7a0b24250c6fea97c0950445cf104091c00bfd32796e8e8753955ab015429a",
	}
	manifest := filepath.Join(t.TempDir(), "artifacts.json")
	c.Assert(os.WriteFile(manifest, []byte(`{
		"deposit": {"wasm": "`+hashes.Wasm+`", "zkey": "`+hashes.ProvingKey+`", "vkey": "`+hashes.VerifyingKey+`"}
	}`), 0o600), qt.IsNil)

	cfg := &Config{ArtifactsURL: "https://example.com/circuits", ArtifactsManifest: manifest}
	_, err := cfg.CircuitArtifacts()
	c.Assert(err, qt.ErrorMatches, "no artifacts for circuit .*")

	all := map[string]ArtifactHashes{}
	for _, circuit := range prover.Circuits {
		all[string(circuit)] = hashes
	}
	artifacts, err := circuitArtifacts(cfg.ArtifactsURL, all)
	c.Assert(err, qt.IsNil)
	c.Assert(artifacts, qt.HasLen, len(prover.Circuits))

	all["withdraw"] = ArtifactHashes{Wasm: "zz"}
	_, err = circuitArtifacts(cfg.ArtifactsURL, all)
	c.Assert(err, qt.IsNotNil)
}
