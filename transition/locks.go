package transition

import (
	"context"
	"sync"

	"github.com/vocdoni/zk-escrow/types"
)

// lockKey scopes a transition: the owner public key and the state variable
// it spends from.
type lockKey struct {
	owner    types.Field
	stateVar types.Field
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// keyedLock is a set of mutexes indexed by lockKey. Waiting for a lock can
// be cancelled with the context. Entries are dropped once nobody holds or
// waits for them.
type keyedLock struct {
	mu      sync.Mutex
	entries map[lockKey]*lockEntry
}

func newKeyedLock() *keyedLock {
	return &keyedLock{entries: make(map[lockKey]*lockEntry)}
}

// lock acquires the lock of key and returns the function that releases it.
func (k *keyedLock) lock(ctx context.Context, key lockKey) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(key, e)
		})
	}, nil
}

func (k *keyedLock) release(key lockKey, e *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
