package transition

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-escrow/types"
)

func TestKeyedLock(t *testing.T) {
	c := qt.New(t)
	k := newKeyedLock()
	a := lockKey{owner: types.FieldFromUint64(1), stateVar: types.FieldFromUint64(2)}
	b := lockKey{owner: types.FieldFromUint64(1), stateVar: types.FieldFromUint64(3)}

	unlockA, err := k.lock(context.Background(), a)
	c.Assert(err, qt.IsNil)

	// a different state variable is not blocked
	unlockB, err := k.lock(context.Background(), b)
	c.Assert(err, qt.IsNil)
	unlockB()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.lock(ctx, a)
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)

	acquired, released := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(released)
		unlock, err := k.lock(context.Background(), a)
		if err == nil {
			close(acquired)
			unlock()
		}
	}()
	select {
	case <-acquired:
		c.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	// releasing twice is harmless
	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		c.Fatal("lock not acquired after release")
	}
	<-released

	c.Assert(func() int {
		k.mu.Lock()
		defer k.mu.Unlock()
		return len(k.entries)
	}(), qt.Equals, 0)
}
