package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Artifact encoding/decoding
func encodeArtifact(a any) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}

func decodeArtifact(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}

// getArtifact reads and decodes the artifact stored under prefix+key using
// the reader r. It returns ErrNotFound if the key does not exist.
func getArtifact(r db.Reader, prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(r, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}

// setArtifact encodes and writes the artifact under prefix+key in wTx. The
// transaction is not committed.
func setArtifact(wTx db.WriteTx, prefix, key []byte, a any) error {
	val, err := encodeArtifact(a)
	if err != nil {
		return err
	}
	return prefixeddb.NewPrefixedWriteTx(wTx, prefix).Set(key, val)
}

// nextSequence increments and returns the insertion counter stored in wTx.
func nextSequence(wTx db.WriteTx) (uint64, error) {
	mTx := prefixeddb.NewPrefixedWriteTx(wTx, metaPrefix)
	var seq uint64
	data, err := mTx.Get(sequenceKey)
	switch {
	case err == nil:
		seq = binary.BigEndian.Uint64(data)
	case errors.Is(err, db.ErrKeyNotFound):
	default:
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	seq++
	if err := mTx.Set(sequenceKey, seqKey(seq)); err != nil {
		return 0, fmt.Errorf("write sequence: %w", err)
	}
	return seq, nil
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
