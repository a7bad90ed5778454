package storage

import (
	"errors"
	"fmt"
)

var eventCursorKey = []byte("cursor")

// SetEventCursor records the next block the encrypted data listener should
// scan from.
func (s *Storage) SetEventCursor(block uint64) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := setArtifact(wTx, metaPrefix, eventCursorKey, block); err != nil {
		return fmt.Errorf("set event cursor: %w", err)
	}
	return wTx.Commit()
}

// EventCursor returns the block recorded by SetEventCursor, or zero if none
// was recorded yet.
func (s *Storage) EventCursor() (uint64, error) {
	var block uint64
	if err := getArtifact(s.db, metaPrefix, eventCursorKey, &block); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return block, nil
}
