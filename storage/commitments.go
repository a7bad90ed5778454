package storage

import (
	"errors"
	"fmt"

	"github.com/vocdoni/zk-escrow/commitment"
	"github.com/vocdoni/zk-escrow/crypto/keys"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Nullification identifies a commitment to be marked as spent and the
// secret key that authorizes it.
type Nullification struct {
	Hash      types.Field
	SecretKey types.Field
}

// Update is a set of changes applied atomically to the store: every
// nullification succeeds and every commitment is inserted, or nothing is
// written.
type Update struct {
	Nullify []Nullification
	Insert  []*commitment.Commitment
}

// Store saves a new commitment. It returns ErrDuplicateCommitment if a
// commitment with the same hash is already known.
func (s *Storage) Store(c *commitment.Commitment) error {
	return s.Apply(&Update{Insert: []*commitment.Commitment{c}})
}

// MarkNullified marks the commitment as spent. The secret key must be the
// one of the commitment owner. It returns ErrNotFound, ErrUnauthorized or
// ErrAlreadyNullified.
func (s *Storage) MarkNullified(hash, secretKey types.Field) error {
	return s.Apply(&Update{Nullify: []Nullification{{Hash: hash, SecretKey: secretKey}}})
}

// Apply validates and writes the update in a new write transaction.
func (s *Storage) Apply(u *Update) error {
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	return s.CommitWithTx(wTx, u)
}

// CommitWithTx validates and writes the update into wTx and commits it. The
// store lock is held from the first check to the commit, so concurrent
// writers cannot nullify the same commitment twice. Any other data already
// written to wTx is committed along with the update. On error wTx is left
// uncommitted and the caller must discard it.
func (s *Storage) CommitWithTx(wTx db.WriteTx, u *Update) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if err := s.writeUpdate(wTx, u); err != nil {
		return err
	}
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	for _, c := range u.Insert {
		log.Debugw("commitment stored",
			"hash", c.Hash.Hex(),
			"stateVarId", c.Preimage.StateVarID.Hex(),
			"value", c.Value().Integer(),
			"owned", c.OwnerSecretKey != nil)
	}
	for _, n := range u.Nullify {
		log.Debugw("commitment nullified", "hash", n.Hash.Hex())
	}
	return nil
}

func (s *Storage) writeUpdate(wTx db.WriteTx, u *Update) error {
	if u == nil || (len(u.Nullify) == 0 && len(u.Insert) == 0) {
		return nil
	}
	// validate everything before writing anything
	spent := make([]*commitment.Commitment, 0, len(u.Nullify))
	seen := make(map[types.Field]bool)
	for _, n := range u.Nullify {
		if seen[n.Hash] {
			return fmt.Errorf("%w: %s", ErrAlreadyNullified, n.Hash.Hex())
		}
		seen[n.Hash] = true
		c := &commitment.Commitment{}
		if err := getArtifact(wTx, commitmentPrefix, n.Hash.Bytes(), c); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: commitment %s", ErrNotFound, n.Hash.Hex())
			}
			return fmt.Errorf("get commitment: %w", err)
		}
		if c.OwnerSecretKey == nil || !keys.Owns(n.SecretKey, c.Preimage.OwnerPublicKey) {
			return fmt.Errorf("%w: commitment %s", ErrUnauthorized, n.Hash.Hex())
		}
		if c.IsNullified {
			return fmt.Errorf("%w: %s", ErrAlreadyNullified, n.Hash.Hex())
		}
		spent = append(spent, c)
	}
	inserted := make(map[types.Field]bool)
	for _, c := range u.Insert {
		if err := c.Verify(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommitment, err)
		}
		if inserted[c.Hash] || s.exists(wTx, c.Hash) {
			return fmt.Errorf("%w: %s", ErrDuplicateCommitment, c.Hash.Hex())
		}
		inserted[c.Hash] = true
	}

	for _, c := range spent {
		c.IsNullified = true
		if err := setArtifact(wTx, commitmentPrefix, c.Hash.Bytes(), c); err != nil {
			return fmt.Errorf("set nullified commitment: %w", err)
		}
	}
	for _, c := range u.Insert {
		if err := s.insert(wTx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) exists(r db.Reader, hash types.Field) bool {
	_, err := prefixeddb.NewPrefixedReader(r, commitmentPrefix).Get(hash.Bytes())
	return err == nil
}

func (s *Storage) insert(wTx db.WriteTx, c *commitment.Commitment) error {
	seq, err := nextSequence(wTx)
	if err != nil {
		return err
	}
	record := *c
	record.IsNullified = false
	if err := setArtifact(wTx, commitmentPrefix, c.Hash.Bytes(), &record); err != nil {
		return fmt.Errorf("set commitment: %w", err)
	}
	iTx := prefixeddb.NewPrefixedWriteTx(wTx, insertionPrefix)
	if err := iTx.Set(seqKey(seq), c.Hash.Bytes()); err != nil {
		return fmt.Errorf("set insertion index: %w", err)
	}
	oTx := prefixeddb.NewPrefixedWriteTx(wTx, stateVarPrefix)
	if err := oTx.Set(append(c.Preimage.StateVarID.Bytes(), seqKey(seq)...), c.Hash.Bytes()); err != nil {
		return fmt.Errorf("set state variable index: %w", err)
	}
	return nil
}

// Commitment returns the commitment with the given hash or ErrNotFound.
func (s *Storage) Commitment(hash types.Field) (*commitment.Commitment, error) {
	c := &commitment.Commitment{}
	if err := getArtifact(s.db, commitmentPrefix, hash.Bytes(), c); err != nil {
		return nil, err
	}
	return c, nil
}

// ByStateVar returns the non-nullified commitments of the given state
// variable, oldest first.
func (s *Storage) ByStateVar(stateVarID types.Field) ([]*commitment.Commitment, error) {
	hashes, err := s.hashes(prefixeddb.NewPrefixedReader(s.db, stateVarPrefix), stateVarID.Bytes())
	if err != nil {
		return nil, err
	}
	return s.load(hashes, true)
}

// All returns every known commitment in insertion order. If
// onlyNonNullified is true, the spent ones are skipped.
func (s *Storage) All(onlyNonNullified bool) ([]*commitment.Commitment, error) {
	hashes, err := s.hashes(prefixeddb.NewPrefixedReader(s.db, insertionPrefix), nil)
	if err != nil {
		return nil, err
	}
	return s.load(hashes, onlyNonNullified)
}

// ByState returns the non-nullified commitments of the named state variable
// and mapping key, in insertion order.
func (s *Storage) ByState(name string, mappingKey types.Field) ([]*commitment.Commitment, error) {
	all, err := s.All(true)
	if err != nil {
		return nil, err
	}
	res := []*commitment.Commitment{}
	for _, c := range all {
		if c.Name == name && c.MappingKey == mappingKey {
			res = append(res, c)
		}
	}
	return res, nil
}

func (s *Storage) hashes(r db.Reader, prefix []byte) ([]types.Field, error) {
	var hashes []types.Field
	if err := r.Iterate(prefix, func(_, v []byte) bool {
		hashes = append(hashes, types.FieldFromBytes(v))
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate index: %w", err)
	}
	return hashes, nil
}

func (s *Storage) load(hashes []types.Field, onlyNonNullified bool) ([]*commitment.Commitment, error) {
	res := make([]*commitment.Commitment, 0, len(hashes))
	for _, h := range hashes {
		c, err := s.Commitment(h)
		if err != nil {
			return nil, fmt.Errorf("load commitment %s: %w", h.Hex(), err)
		}
		if onlyNonNullified && c.IsNullified {
			continue
		}
		res = append(res, c)
	}
	return res, nil
}
