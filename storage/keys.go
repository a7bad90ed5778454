package storage

import (
	"errors"
	"fmt"

	"github.com/vocdoni/zk-escrow/crypto/keys"
)

// SetKeys stores the key pair of the local owner, replacing any previous one.
func (s *Storage) SetKeys(kp *keys.KeyPair) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := setArtifact(wTx, keysPrefix, keyPairKey, kp); err != nil {
		return fmt.Errorf("set keys: %w", err)
	}
	return wTx.Commit()
}

// Keys loads the key pair of the local owner. Returns ErrNotFound if no keys
// were stored yet.
func (s *Storage) Keys() (*keys.KeyPair, error) {
	kp := &keys.KeyPair{}
	if err := getArtifact(s.db, keysPrefix, keyPairKey, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// LoadOrGenerateKeys returns the stored key pair or generates and stores a
// new one. The second return value is true if the keys were generated.
func (s *Storage) LoadOrGenerateKeys() (*keys.KeyPair, bool, error) {
	kp, err := s.Keys()
	if err == nil {
		return kp, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if kp, err = keys.Generate(); err != nil {
		return nil, false, fmt.Errorf("generate keys: %w", err)
	}
	if err := s.SetKeys(kp); err != nil {
		return nil, false, err
	}
	return kp, true, nil
}
