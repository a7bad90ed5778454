// Package timber is a client of the Timber service, which mirrors the
// append-only Merkle tree of commitments kept by the shield contract and
// serves membership witnesses for its leaves.
package timber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/types"
)

const (
	// DefaultRetries is the number of attempts of every request.
	DefaultRetries = 3
	// DefaultTimeout is the timeout of a single request.
	DefaultTimeout = 30 * time.Second
	// DefaultTreeHeight is the height of the commitments tree.
	DefaultTreeHeight = 32

	leafValueEndpoint   = "leaf/value"
	siblingPathEndpoint = "siblingPath"
	startEndpoint       = "start"
)

// ErrLeafNotFound is returned when the commitment is not a leaf of the tree.
var ErrLeafNotFound = errors.New("leaf not found")

// Witness is a membership proof of a commitment in the commitments tree.
type Witness struct {
	Index uint64       `json:"index"`
	Root  types.Field  `json:"root"`
	Path  types.Fields `json:"path"`
}

// Client is the Timber HTTP client.
type Client struct {
	c          *http.Client
	host       *url.URL
	retries    int
	TreeHeight int
}

// New returns a client for the Timber service at host.
func New(host string) (*Client, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	return &Client{
		c:          &http.Client{Timeout: DefaultTimeout},
		host:       hostURL,
		retries:    DefaultRetries,
		TreeHeight: DefaultTreeHeight,
	}, nil
}

// SetRetries configures the number of attempts of every request.
func (c *Client) SetRetries(n int) {
	c.retries = n
}

type contractRequest struct {
	ContractName    string `json:"contractName"`
	ContractAddress string `json:"contractAddress,omitempty"`
	Value           string `json:"value,omitempty"`
}

type leafResponse struct {
	Data *struct {
		LeafIndex json.Number `json:"leafIndex"`
	} `json:"data"`
}

type node struct {
	Value string `json:"value"`
}

type siblingPathResponse struct {
	Data []node `json:"data"`
}

// StartEventFilter asks Timber to start following the contract events.
func (c *Client) StartEventFilter(ctx context.Context, contract string) error {
	_, err := c.request(ctx, http.MethodPost, &contractRequest{ContractName: contract}, startEndpoint)
	return err
}

// LeafIndex returns the index of the leaf holding value.
func (c *Client) LeafIndex(ctx context.Context, contract string, value types.Field) (uint64, error) {
	data, err := c.request(ctx, http.MethodGet, &contractRequest{
		ContractName: contract,
		Value:        value.Hex(),
	}, leafValueEndpoint)
	if err != nil {
		return 0, err
	}
	var res leafResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return 0, fmt.Errorf("decode leaf response: %w", err)
	}
	if res.Data == nil || res.Data.LeafIndex == "" {
		return 0, fmt.Errorf("%w: %s", ErrLeafNotFound, value.Hex())
	}
	idx, err := strconv.ParseUint(res.Data.LeafIndex.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid leaf index %q: %w", res.Data.LeafIndex, err)
	}
	return idx, nil
}

// SiblingPath returns the root and the sibling path of the leaf at index.
func (c *Client) SiblingPath(ctx context.Context, contract string, index uint64) (types.Field, types.Fields, error) {
	data, err := c.request(ctx, http.MethodGet, &contractRequest{ContractName: contract},
		siblingPathEndpoint, strconv.FormatUint(index, 10))
	if err != nil {
		return types.Field{}, nil, err
	}
	var res siblingPathResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return types.Field{}, nil, fmt.Errorf("decode sibling path: %w", err)
	}
	if len(res.Data) < 2 {
		return types.Field{}, nil, fmt.Errorf("sibling path too short: %d nodes", len(res.Data))
	}
	nodes := make([]string, len(res.Data))
	for i, n := range res.Data {
		nodes[i] = n.Value
	}
	fs, err := types.FieldsFromStrings(nodes)
	if err != nil {
		return types.Field{}, nil, fmt.Errorf("invalid sibling path: %w", err)
	}
	// the first node is the root
	return fs[0], fs[1:], nil
}

// MembershipWitness returns the membership witness of a commitment.
func (c *Client) MembershipWitness(ctx context.Context, contract string, leaf types.Field) (*Witness, error) {
	idx, err := c.LeafIndex(ctx, contract, leaf)
	if err != nil {
		return nil, err
	}
	root, path, err := c.SiblingPath(ctx, contract, idx)
	if err != nil {
		return nil, err
	}
	return &Witness{Index: idx, Root: root, Path: path}, nil
}

// Placeholder returns the witness used for empty input slots: index 0, the
// given root and an all zero path.
func (c *Client) Placeholder(root types.Field) *Witness {
	return &Witness{Root: root, Path: make(types.Fields, c.TreeHeight)}
}

func (c *Client) request(ctx context.Context, method string, jsonBody any, urlPath ...string) ([]byte, error) {
	body, err := json.Marshal(jsonBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	log.Debugw("timber request", "type", method, "url", u.String(), "body", string(body))

	var lastErr error
	for i := 1; i <= c.retries; i++ {
		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		resp, err := c.c.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			log.Warnw("timber request failed", "error", err.Error(), "attempt", i, "retries", c.retries)
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
			}
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrLeafNotFound, data)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("timber error: %d (%s)", resp.StatusCode, data)
		}
		return data, nil
	}
	return nil, fmt.Errorf("timber request ultimately failed after retries: %w", lastErr)
}
