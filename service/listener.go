package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-escrow/commitment"
	"github.com/vocdoni/zk-escrow/crypto/encryption"
	"github.com/vocdoni/zk-escrow/crypto/hash/mimc"
	"github.com/vocdoni/zk-escrow/crypto/keys"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/metrics"
	"github.com/vocdoni/zk-escrow/storage"
	"github.com/vocdoni/zk-escrow/timber"
	"github.com/vocdoni/zk-escrow/types"
)

// DefaultWitnessRetries is the number of times the listener asks the tree
// service for a received commitment before discarding it.
const DefaultWitnessRetries = 5

// ErrNotForUs is returned when an encrypted payload does not decrypt to a
// balance of the local account.
var ErrNotForUs = errors.New("encrypted data not addressed to this owner")

// EventSource streams the encrypted data events of the shield contract.
type EventSource interface {
	MonitorEncryptedDataByPolling(ctx context.Context, fromBlock uint64, interval time.Duration) (<-chan *types.EncryptedDataEvent, error)
}

// CommitmentTree proves that a commitment was appended to the shield tree.
type CommitmentTree interface {
	MembershipWitness(ctx context.Context, contract string, leaf types.Field) (*timber.Witness, error)
}

// ListenerConfig holds the dependencies of a CommitmentListener.
type ListenerConfig struct {
	Events   EventSource
	Tree     CommitmentTree
	Storage  *storage.Storage
	Keys     *keys.KeyPair
	Account  common.Address
	Contract string
	// Interval between event polls and between witness retries.
	Interval time.Duration
	Retries  int
}

// CommitmentListener watches the encrypted data published by transfers and
// stores the commitments addressed to the local owner, so they can be spent.
type CommitmentListener struct {
	cfg    ListenerConfig
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCommitmentListener creates a new CommitmentListener service.
func NewCommitmentListener(cfg ListenerConfig) (*CommitmentListener, error) {
	if cfg.Events == nil || cfg.Tree == nil || cfg.Storage == nil || cfg.Keys == nil {
		return nil, fmt.Errorf("missing listener dependencies")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultWitnessRetries
	}
	return &CommitmentListener{cfg: cfg}, nil
}

// Start begins listening from the stored event cursor. It returns an error if
// the service is already running or if it fails to start monitoring.
func (cl *CommitmentListener) Start(ctx context.Context) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.cancel != nil {
		return fmt.Errorf("service already running")
	}
	fromBlock, err := cl.cfg.Storage.EventCursor()
	if err != nil {
		return fmt.Errorf("failed to read event cursor: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	events, err := cl.cfg.Events.MonitorEncryptedDataByPolling(ctx, fromBlock, cl.cfg.Interval)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start encrypted data monitoring: %w", err)
	}
	cl.cancel = cancel
	cl.done = make(chan struct{})
	log.Infow("listening for encrypted commitments", "fromBlock", fromBlock, "account", cl.cfg.Account.Hex())
	go cl.listen(ctx, events, cl.done)
	return nil
}

// Stop halts the listener and waits for the event loop to return.
func (cl *CommitmentListener) Stop() {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.cancel != nil {
		cl.cancel()
		<-cl.done
		cl.cancel = nil
	}
}

func (cl *CommitmentListener) listen(ctx context.Context, events <-chan *types.EncryptedDataEvent, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c, err := cl.Receive(ctx, ev)
			switch {
			case err == nil:
				log.Infow("received commitment",
					"hash", c.Hash.Hex(),
					"value", c.Value().Integer(),
					"tx", ev.TxHash.Hex())
			case errors.Is(err, ErrNotForUs):
				log.Debugw("skipping encrypted data", "tx", ev.TxHash.Hex())
			case errors.Is(err, storage.ErrDuplicateCommitment):
				log.Debugw("commitment already known", "tx", ev.TxHash.Hex())
			case ctx.Err() != nil:
				return
			default:
				log.Warnw("failed to process encrypted data", "tx", ev.TxHash.Hex(), "error", err.Error())
			}
			if err := cl.cfg.Storage.SetEventCursor(ev.BlockNumber); err != nil {
				log.Warnw("failed to store event cursor", "block", ev.BlockNumber, "error", err.Error())
			}
		}
	}
}

// Receive decrypts ev with the local key, checks that the resulting
// commitment is in the shield tree and stores it as owned. It returns
// ErrNotForUs when the payload is addressed to someone else.
func (cl *CommitmentListener) Receive(ctx context.Context, ev *types.EncryptedDataEvent) (*commitment.Commitment, error) {
	plain, err := encryption.Decrypt(ev.CipherText, ev.EphPublicKey, cl.cfg.Keys.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotForUs, err)
	}
	p, err := encryption.PlaintextFromFields(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotForUs, err)
	}
	stateVarID, err := mimc.BalanceID(cl.cfg.Account)
	if err != nil {
		return nil, err
	}
	if !p.Plausible() || p.StateVarID != stateVarID {
		return nil, ErrNotForUs
	}
	sk := cl.cfg.Keys.SecretKey
	c, err := commitment.New(mimc.MappingKey(cl.cfg.Account), commitment.Preimage{
		StateVarID:     p.StateVarID,
		Value:          p.Value,
		Salt:           p.Salt,
		OwnerPublicKey: cl.cfg.Keys.PublicKey,
	}, &sk)
	if err != nil {
		return nil, err
	}
	if err := cl.waitMembership(ctx, c.Hash); err != nil {
		return nil, err
	}
	if err := cl.cfg.Storage.Store(c); err != nil {
		return nil, err
	}
	metrics.ReceivedCommitments.Inc()
	return c, nil
}

// waitMembership polls the tree service until it indexes leaf, since the
// event may be seen before the tree catches up with the same block.
func (cl *CommitmentListener) waitMembership(ctx context.Context, leaf types.Field) error {
	for attempt := 1; ; attempt++ {
		_, err := cl.cfg.Tree.MembershipWitness(ctx, cl.cfg.Contract, leaf)
		if err == nil {
			return nil
		}
		if !errors.Is(err, timber.ErrLeafNotFound) || attempt >= cl.cfg.Retries {
			return fmt.Errorf("commitment %s not in the shield tree: %w", leaf.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cl.cfg.Interval):
		}
	}
}
