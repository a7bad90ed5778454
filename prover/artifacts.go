package prover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vocdoni/zk-escrow/log"
)

// CheckHashes determines if the hashes of the artifacts are checked when
// they are loaded or downloaded. It can be disabled by setting the
// ESCROW_CHECK_HASHES environment variable to false or 0.
var CheckHashes = true

// BaseDir is the path of the artifact cache. Defaults to the env var
// ESCROW_ARTIFACTS_DIR or a folder in the user cache directory.
var BaseDir string

func init() {
	if checkHashes := os.Getenv("ESCROW_CHECK_HASHES"); checkHashes != "" {
		if strings.ToLower(checkHashes) == "false" || checkHashes == "0" {
			CheckHashes = false
		}
	}
	if dir := os.Getenv("ESCROW_ARTIFACTS_DIR"); dir != "" {
		BaseDir = dir
	} else {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			BaseDir = filepath.Join(os.TempDir(), "zk-escrow-artifacts")
		} else {
			BaseDir = filepath.Join(home, ".cache", "zk-escrow-artifacts")
		}
	}
}

// Artifact holds the remote URL, the sha256 hash of the content and the
// content itself. The content is cached locally under BaseDir by hash.
type Artifact struct {
	RemoteURL string
	Hash      []byte
	Content   []byte
}

// NewArtifact returns an artifact from its URL and hex encoded hash.
func NewArtifact(remoteURL, hexHash string) (*Artifact, error) {
	hash, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact hash %q: %w", hexHash, err)
	}
	return &Artifact{RemoteURL: remoteURL, Hash: hash}, nil
}

// Load loads the content from the local cache, downloading it first if it
// is not there. It returns an error if the hash does not match.
func (k *Artifact) Load(ctx context.Context) error {
	if len(k.Content) != 0 {
		return nil
	}
	if len(k.Hash) == 0 {
		return fmt.Errorf("key hash not provided")
	}
	content, err := load(k.Hash)
	if err != nil {
		return err
	}
	if content == nil {
		if k.RemoteURL == "" {
			return fmt.Errorf("artifact not cached and remote url not provided")
		}
		if err := downloadAndStore(ctx, k.Hash, k.RemoteURL); err != nil {
			return err
		}
		if content, err = load(k.Hash); err != nil {
			return err
		}
		if content == nil {
			return fmt.Errorf("no content found")
		}
	}
	k.Content = content
	return nil
}

// CircuitArtifacts holds the artifacts of a circom circuit: the witness
// calculator (wasm), the proving key (zkey) and the verification key.
type CircuitArtifacts struct {
	wasm         *Artifact
	provingKey   *Artifact
	verifyingKey *Artifact
}

// NewCircuitArtifacts creates the artifacts set of a circuit.
func NewCircuitArtifacts(wasm, provingKey, verifyingKey *Artifact) *CircuitArtifacts {
	return &CircuitArtifacts{
		wasm:         wasm,
		provingKey:   provingKey,
		verifyingKey: verifyingKey,
	}
}

// LoadAll loads (and downloads if needed) every artifact.
func (ca *CircuitArtifacts) LoadAll(ctx context.Context) error {
	if err := ca.wasm.Load(ctx); err != nil {
		return fmt.Errorf("error loading circuit wasm: %w", err)
	}
	if err := ca.provingKey.Load(ctx); err != nil {
		return fmt.Errorf("error loading proving key: %w", err)
	}
	if ca.verifyingKey != nil {
		if err := ca.verifyingKey.Load(ctx); err != nil {
			return fmt.Errorf("error loading verifying key: %w", err)
		}
	}
	return nil
}

// Wasm returns the witness calculator, nil if not loaded.
func (ca *CircuitArtifacts) Wasm() []byte {
	return ca.wasm.Content
}

// ProvingKey returns the proving key, nil if not loaded.
func (ca *CircuitArtifacts) ProvingKey() []byte {
	return ca.provingKey.Content
}

// VerifyingKey returns the verification key, nil if not loaded or not set.
func (ca *CircuitArtifacts) VerifyingKey() []byte {
	if ca.verifyingKey == nil {
		return nil
	}
	return ca.verifyingKey.Content
}

func load(hash []byte) ([]byte, error) {
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating the base directory: %w", err)
	}
	path := filepath.Join(BaseDir, hex.EncodeToString(hash))
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading file %s: %w", path, err)
	}
	if CheckHashes {
		fileHash := sha256.Sum256(content)
		if !bytes.Equal(fileHash[:], hash) {
			return nil, fmt.Errorf("hash mismatch for file %s: expected %x, got %x", path, hash, fileHash)
		}
	}
	return content, nil
}

// progressReader wraps an io.Reader and keeps track of the total bytes read.
type progressReader struct {
	reader io.Reader
	total  int64 // updated atomically
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	atomic.AddInt64(&pr.total, int64(n))
	return n, err
}

// downloadAndStore downloads a file from a URL and stores it in the local
// cache, checking its hash.
func downloadAndStore(ctx context.Context, expectedHash []byte, fileURL string) error {
	if _, err := url.Parse(fileURL); err != nil {
		return fmt.Errorf("error parsing the file URL provided: %w", err)
	}
	path := filepath.Join(BaseDir, hex.EncodeToString(expectedHash))
	partialPath := path + ".partial"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("error creating the file request: %w", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error performing the request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("error downloading file %s: http status: %d", fileURL, res.StatusCode)
	}
	fd, err := os.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("error opening artifact file: %w", err)
	}
	defer fd.Close()

	hasher := sha256.New()
	pr := &progressReader{reader: res.Body}
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.MultiWriter(fd, hasher), pr)
		done <- err
	}()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for waiting := true; waiting; {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("error copying data to file: %w", err)
			}
			waiting = false
		case <-ticker.C:
			log.Debugw("download artifacts", "url", fileURL,
				"downloaded", fmt.Sprintf("%.2fMiB", float64(atomic.LoadInt64(&pr.total))/(1024*1024)))
		}
	}
	if CheckHashes {
		if computedHash := hasher.Sum(nil); !bytes.Equal(computedHash, expectedHash) {
			os.Remove(partialPath)
			return fmt.Errorf("hash mismatch: expected %x, got %x", expectedHash, computedHash)
		}
	}
	if err := os.Rename(partialPath, path); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	return nil
}
