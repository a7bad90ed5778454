package prover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-escrow/types"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "zk-escrow-artifacts")
	if err != nil {
		panic(err)
	}
	BaseDir = dir
	code := m.Run()
	if err := os.RemoveAll(dir); err != nil {
		panic(err)
	}
	os.Exit(code)
}

func TestHTTPClientGenerateProof(t *testing.T) {
	c := qt.New(t)
	var got generateProofRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != GenerateProofEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"proof": map[string]any{
				"a": []string{"1", "2"},
				"b": [][]string{{"3", "4"}, {"5", "6"}},
				"c": []string{"7", "8"},
			},
			"inputs": []string{"9", "10", "11"},
		})
	}))
	defer srv.Close()

	cli, err := NewHTTPClient(srv.URL)
	c.Assert(err, qt.IsNil)
	proof, err := cli.GenerateProof(context.Background(), CircuitDeposit,
		types.Fields{types.FieldFromUint64(100), types.FieldFromUint64(5)})
	c.Assert(err, qt.IsNil)
	c.Assert(got.FolderPath, qt.Equals, "deposit")
	c.Assert(got.Inputs, qt.DeepEquals, []string{"100", "5"})
	c.Assert(proof.Coefficients.Strings(), qt.DeepEquals, []string{"1", "2", "3", "4", "5", "6", "7", "8"})
	c.Assert(proof.Inputs.Strings(), qt.DeepEquals, []string{"9", "10", "11"})
}

func TestHTTPClientWorkerError(t *testing.T) {
	c := qt.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cli, err := NewHTTPClient(srv.URL)
	c.Assert(err, qt.IsNil)
	_, err = cli.GenerateProof(context.Background(), CircuitWithdraw, nil)
	c.Assert(err, qt.ErrorMatches, ".*500.*")
}

func TestHTTPClientCancelled(t *testing.T) {
	c := qt.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	cli, err := NewHTTPClient(srv.URL)
	c.Assert(err, qt.IsNil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = cli.GenerateProof(ctx, CircuitJoin, nil)
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)
}

func TestLoadArtifact(t *testing.T) {
	c := qt.New(t)
	content := []byte("dummy content")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "dummy.zkey", time.Now(), bytes.NewReader(content))
	}))
	defer srv.Close()

	hash := sha256.Sum256(content)
	a, err := NewArtifact(srv.URL+"/dummy.zkey", hex.EncodeToString(hash[:]))
	c.Assert(err, qt.IsNil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// downloaded on first load
	c.Assert(a.Load(ctx), qt.IsNil)
	c.Assert(a.Content, qt.DeepEquals, content)
	// loaded from the cache afterwards
	cached := &Artifact{Hash: hash[:]}
	c.Assert(cached.Load(ctx), qt.IsNil)
	c.Assert(cached.Content, qt.DeepEquals, content)
	// wrong hash
	wrong := &Artifact{RemoteURL: srv.URL + "/dummy.zkey", Hash: []byte("wrong hash")}
	c.Assert(wrong.Load(ctx), qt.IsNotNil)
}

func TestRapidsnarkUnknownCircuit(t *testing.T) {
	c := qt.New(t)
	r := NewRapidsnark(map[Circuit]*CircuitArtifacts{})
	_, err := r.GenerateProof(context.Background(), CircuitDeposit, nil)
	c.Assert(err, qt.ErrorIs, ErrUnknownCircuit)
}

func TestParseCircomProof(t *testing.T) {
	c := qt.New(t)
	proof := `{"pi_a":["1","2","1"],"pi_b":[["3","4"],["5","6"],["1","0"]],"pi_c":["7","8","1"],"protocol":"groth16"}`
	p, err := parseCircomProof(nil, proof, `["9","10"]`)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Coefficients, qt.HasLen, 8)
	// b coordinates are swapped for the verifier contract
	want := []uint64{1, 2, 4, 3, 6, 5, 7, 8}
	for i, v := range want {
		c.Assert(p.Coefficients[i], qt.Equals, types.FieldFromUint64(v))
	}
	c.Assert(p.Inputs, qt.DeepEquals, types.Fields{types.FieldFromUint64(9), types.FieldFromUint64(10)})

	for _, malformed := range []string{
		`{"pi_a":["1","2"],"pi_b":[["3"],["5","6"]],"pi_c":["7","8"]}`,
		`{"pi_a":["1","2"],"pi_b":[["3","4"],[]],"pi_c":["7","8"]}`,
		`{"pi_a":["1","2"],"pi_b":[["3","4"]],"pi_c":["7","8"]}`,
		`{"pi_a":["1"],"pi_b":[["3","4"],["5","6"]],"pi_c":["7","8"]}`,
	} {
		_, err := parseCircomProof(nil, malformed, `[]`)
		c.Assert(err, qt.ErrorIs, ErrMalformedProof, qt.Commentf("%s", malformed))
	}
}
