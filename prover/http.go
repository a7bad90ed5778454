package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/types"
)

const (
	// GenerateProofEndpoint is the path of the proof generation endpoint of
	// the worker.
	GenerateProofEndpoint = "/generate-proof"
	// DefaultTimeout bounds the time spent generating a single proof.
	DefaultTimeout = time.Hour
	// DefaultProvingScheme and DefaultBackend are sent to the worker.
	DefaultProvingScheme = "g16"
	DefaultBackend       = "bellman"
)

// HTTPClient requests proofs to a remote proof-generation worker.
type HTTPClient struct {
	c             *http.Client
	host          *url.URL
	ProvingScheme string
	Backend       string
}

type generateProofRequest struct {
	FolderPath    string   `json:"folderpath"`
	Inputs        []string `json:"inputs"`
	ProvingScheme string   `json:"provingScheme"`
	Backend       string   `json:"backend"`
}

type workerProof struct {
	A []string   `json:"a"`
	B [][]string `json:"b"`
	C []string   `json:"c"`
}

type generateProofResponse struct {
	Proof  workerProof `json:"proof"`
	Inputs []string    `json:"inputs"`
}

// NewHTTPClient returns a client for the worker listening at host.
func NewHTTPClient(host string) (*HTTPClient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		c:             &http.Client{Timeout: DefaultTimeout},
		host:          hostURL,
		ProvingScheme: DefaultProvingScheme,
		Backend:       DefaultBackend,
	}, nil
}

// GenerateProof implements Prover.
func (h *HTTPClient) GenerateProof(ctx context.Context, circuit Circuit, inputs types.Fields) (*Proof, error) {
	body, err := json.Marshal(&generateProofRequest{
		FolderPath:    string(circuit),
		Inputs:        inputs.Strings(),
		ProvingScheme: h.ProvingScheme,
		Backend:       h.Backend,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	u := h.host.JoinPath(GenerateProofEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.Debugw("requesting proof", "circuit", circuit, "url", u.String(), "inputs", len(inputs))
	start := time.Now()
	resp, err := h.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proof request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proof worker error: %d (%s)", resp.StatusCode, data)
	}
	var res generateProofResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode proof: %w", err)
	}
	proof, err := res.toProof()
	if err != nil {
		return nil, err
	}
	log.Debugw("proof generated", "circuit", circuit, "took", time.Since(start).String(),
		"proof", log.FormatProof(proof.Coefficients.Strings()))
	return proof, nil
}

func (r *generateProofResponse) toProof() (*Proof, error) {
	flat := append([]string{}, r.Proof.A...)
	for _, b := range r.Proof.B {
		flat = append(flat, b...)
	}
	flat = append(flat, r.Proof.C...)
	if len(flat) == 0 {
		return nil, fmt.Errorf("empty proof")
	}
	coefs, err := types.FieldsFromStrings(flat)
	if err != nil {
		return nil, fmt.Errorf("invalid proof: %w", err)
	}
	ins, err := types.FieldsFromStrings(r.Inputs)
	if err != nil {
		return nil, fmt.Errorf("invalid public inputs: %w", err)
	}
	return &Proof{Coefficients: coefs, Inputs: ins}, nil
}
