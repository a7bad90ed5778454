// storage package is the commitment store of the engine. It keeps every
// commitment known to this client (owned or created for others), their
// spent status, and the key material of the local owner. The following
// prefixes are used in the key-value database:
//   - 'c/' for commitment records, keyed by commitment hash
//   - 'i/' for the global insertion index (sequence -> hash)
//   - 'o/' for the per state variable index (stateVarId+sequence -> hash)
//   - 'm/' for internal metadata such as the sequence counter
//   - 'k/' for the key pair of the local owner
//
// Commitments are never deleted, spending one only flips its nullified flag.
package storage

import (
	"sync"

	"go.vocdoni.io/dvote/db"
)

var (
	// Prefixes for the keys in the database.
	commitmentPrefix = []byte("c/")
	insertionPrefix  = []byte("i/")
	stateVarPrefix   = []byte("o/")
	metaPrefix       = []byte("m/")
	keysPrefix       = []byte("k/")

	sequenceKey = []byte("seq")
	keyPairKey  = []byte("owner")
)

// Storage is the commitment store. All the write operations are serialized
// by globalLock so the existence and ownership checks and the write happen
// atomically.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// DB returns the underlying database, which may be shared with other
// components that need to commit in the same write transaction.
func (s *Storage) DB() db.Database {
	return s.db
}

// Close closes the storage.
func (s *Storage) Close() {
	s.db.Close()
}
