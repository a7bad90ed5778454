package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-escrow/commitment"
	"github.com/vocdoni/zk-escrow/crypto/encryption"
	"github.com/vocdoni/zk-escrow/crypto/hash/mimc"
	"github.com/vocdoni/zk-escrow/crypto/keys"
	"github.com/vocdoni/zk-escrow/storage"
	"github.com/vocdoni/zk-escrow/timber"
	"github.com/vocdoni/zk-escrow/transition"
	"github.com/vocdoni/zk-escrow/types"
	"github.com/vocdoni/zk-escrow/util"
	"go.vocdoni.io/dvote/db/metadb"
)

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

type fakeEvents struct {
	mu        sync.Mutex
	ch        chan *types.EncryptedDataEvent
	fromBlock uint64
}

func (f *fakeEvents) MonitorEncryptedDataByPolling(_ context.Context, fromBlock uint64, _ time.Duration) (<-chan *types.EncryptedDataEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fromBlock = fromBlock
	return f.ch, nil
}

type fakeTree struct {
	mu     sync.Mutex
	leaves map[types.Field]bool
	asked  int
}

func (f *fakeTree) MembershipWitness(_ context.Context, _ string, leaf types.Field) (*timber.Witness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked++
	if !f.leaves[leaf] {
		return nil, timber.ErrLeafNotFound
	}
	return &timber.Witness{}, nil
}

func (f *fakeTree) add(leaf types.Field) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves[leaf] = true
}

// stubEngine satisfies api.Engine for the service tests. Deposits succeed
// without touching a chain, spends always lack funds.
type stubEngine struct{}

func (stubEngine) Deposit(_ context.Context, amount types.Field, _ *types.Field) (*transition.Result, error) {
	stateVarID, err := mimc.BalanceID(testAccount)
	if err != nil {
		return nil, err
	}
	c, err := commitment.New(mimc.MappingKey(testAccount), commitment.Preimage{
		StateVarID: stateVarID,
		Value:      amount,
		Salt:       util.RandomSalt(),
	}, nil)
	if err != nil {
		return nil, err
	}
	return &transition.Result{
		ID:             "deposit-1",
		Operation:      transition.OpDeposit,
		TxHash:         common.HexToHash("0x01"),
		NewCommitments: []*commitment.Commitment{c},
	}, nil
}

func (stubEngine) Transfer(context.Context, common.Address, types.Field, *types.Field) (*transition.Result, error) {
	return nil, transition.ErrInsufficientFunds
}

func (stubEngine) Withdraw(context.Context, types.Field) (*transition.Result, error) {
	return nil, transition.ErrInsufficientFunds
}

func (stubEngine) Join(context.Context) (*transition.Result, error) {
	return nil, errors.New("not implemented")
}

func (stubEngine) Balance() (types.Field, error) { return types.Field{}, nil }

func (stubEngine) Account() common.Address { return testAccount }

type listenerEnv struct {
	listener *CommitmentListener
	events   *fakeEvents
	tree     *fakeTree
	stg      *storage.Storage
	keys     *keys.KeyPair
}

func newListenerEnv(t *testing.T) *listenerEnv {
	c := qt.New(t)
	kp, err := keys.Generate()
	c.Assert(err, qt.IsNil)
	e := &listenerEnv{
		events: &fakeEvents{ch: make(chan *types.EncryptedDataEvent)},
		tree:   &fakeTree{leaves: make(map[types.Field]bool)},
		stg:    storage.New(metadb.NewTest(t)),
		keys:   kp,
	}
	e.listener, err = NewCommitmentListener(ListenerConfig{
		Events:   e.events,
		Tree:     e.tree,
		Storage:  e.stg,
		Keys:     kp,
		Account:  testAccount,
		Interval: time.Millisecond,
		Retries:  3,
	})
	c.Assert(err, qt.IsNil)
	return e
}

// payment encrypts a balance of account for the owner of publicKey, as a
// transfer does, and returns the event with the expected commitment hash.
func payment(c *qt.C, account common.Address, publicKey types.Field, value uint64, block uint64) (*types.EncryptedDataEvent, types.Field) {
	stateVarID, err := mimc.BalanceID(account)
	c.Assert(err, qt.IsNil)
	p := commitment.Preimage{
		StateVarID:     stateVarID,
		Value:          types.FieldFromUint64(value),
		Salt:           util.RandomSalt(),
		OwnerPublicKey: publicKey,
	}
	hash, err := p.Hash()
	c.Assert(err, qt.IsNil)
	plain := encryption.Plaintext{StateVarID: p.StateVarID, Value: p.Value, Salt: p.Salt}
	ct, eph, err := encryption.Encrypt(plain.Fields(), publicKey)
	c.Assert(err, qt.IsNil)
	return &types.EncryptedDataEvent{CipherText: ct, EphPublicKey: eph, BlockNumber: block}, hash
}

func TestReceive(t *testing.T) {
	c := qt.New(t)
	e := newListenerEnv(t)
	ctx := context.Background()

	ev, hash := payment(c, testAccount, e.keys.PublicKey, 25, 7)
	e.tree.add(hash)
	got, err := e.listener.Receive(ctx, ev)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Hash, qt.Equals, hash)
	c.Assert(got.MappingKey, qt.Equals, mimc.MappingKey(testAccount))

	stored, err := e.stg.Commitment(hash)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Value(), qt.Equals, types.FieldFromUint64(25))
	c.Assert(*stored.OwnerSecretKey, qt.Equals, e.keys.SecretKey)

	_, err = e.listener.Receive(ctx, ev)
	c.Assert(err, qt.ErrorIs, storage.ErrDuplicateCommitment)
}

func TestReceiveNotForUs(t *testing.T) {
	c := qt.New(t)
	e := newListenerEnv(t)
	other, err := keys.Generate()
	c.Assert(err, qt.IsNil)

	// encrypted for someone else
	ev, hash := payment(c, testAccount, other.PublicKey, 25, 1)
	e.tree.add(hash)
	_, err = e.listener.Receive(context.Background(), ev)
	c.Assert(err, qt.ErrorIs, ErrNotForUs)

	// for us, but a balance of another account
	ev, hash = payment(c, common.HexToAddress("0x2222222222222222222222222222222222222222"), e.keys.PublicKey, 25, 1)
	e.tree.add(hash)
	_, err = e.listener.Receive(context.Background(), ev)
	c.Assert(err, qt.ErrorIs, ErrNotForUs)

	all, err := e.stg.All(false)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 0)
}

func TestReceiveWaitsForTree(t *testing.T) {
	c := qt.New(t)
	e := newListenerEnv(t)

	ev, _ := payment(c, testAccount, e.keys.PublicKey, 3, 1)
	_, err := e.listener.Receive(context.Background(), ev)
	c.Assert(err, qt.ErrorIs, timber.ErrLeafNotFound)
	c.Assert(e.tree.asked, qt.Equals, 3)

	all, err := e.stg.All(false)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 0)
}

func TestListenerLifecycle(t *testing.T) {
	c := qt.New(t)
	e := newListenerEnv(t)
	ctx := context.Background()

	c.Assert(e.listener.Start(ctx), qt.IsNil)
	c.Assert(e.listener.Start(ctx), qt.ErrorMatches, "service already running")

	ev, hash := payment(c, testAccount, e.keys.PublicKey, 11, 42)
	e.tree.add(hash)
	e.events.ch <- ev
	other, err := keys.Generate()
	c.Assert(err, qt.IsNil)
	skipped, _ := payment(c, testAccount, other.PublicKey, 5, 43)
	e.events.ch <- skipped
	// unbuffered: the second send returns once the first event is handled
	e.listener.Stop()

	stored, err := e.stg.Commitment(hash)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.OwnerSecretKey, qt.IsNotNil)
	cursor, err := e.stg.EventCursor()
	c.Assert(err, qt.IsNil)
	c.Assert(cursor >= 42, qt.IsTrue)

	// restarting resumes from the stored cursor
	c.Assert(e.listener.Start(ctx), qt.IsNil)
	defer e.listener.Stop()
	e.events.mu.Lock()
	defer e.events.mu.Unlock()
	c.Assert(e.events.fromBlock, qt.Equals, cursor)
}
