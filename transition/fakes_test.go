package transition

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/vocdoni/zk-escrow/crypto/encryption"
	"github.com/vocdoni/zk-escrow/crypto/hash/mimc"
	"github.com/vocdoni/zk-escrow/crypto/keys"
	"github.com/vocdoni/zk-escrow/prover"
	"github.com/vocdoni/zk-escrow/state"
	"github.com/vocdoni/zk-escrow/storage"
	"github.com/vocdoni/zk-escrow/timber"
	"github.com/vocdoni/zk-escrow/types"
	"go.vocdoni.io/dvote/db/metadb"
)

const testTreeHeight = 4

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

// ledger is an in-memory shield: the chain appends leaves, the tree serves
// witnesses of them.
type ledger struct {
	mu     sync.Mutex
	leaves types.Fields
	keys   map[common.Address]types.Field

	calls   []chainCall
	filters int

	// failure injection
	callErr   error
	noLeaves  bool
	witnessFn func(leaf types.Field) error
}

type chainCall struct {
	method string
	args   []any
}

func newLedger() *ledger {
	return &ledger{keys: make(map[common.Address]types.Field)}
}

// newLeavesArg returns the index of the new commitments argument of each
// shield method.
var newLeavesArg = map[string]int{
	"deposit":         1,
	"withdraw":        5,
	"transfer":        4,
	"joinCommitments": 4,
}

func (l *ledger) CallMethod(ctx context.Context, contract, method string, args ...any) (*types.TxReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, chainCall{method: method, args: args})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.callErr != nil {
		return nil, l.callErr
	}
	r := &types.TxReceipt{
		TxHash:      common.BigToHash(big.NewInt(int64(len(l.calls)))),
		BlockNumber: uint64(len(l.calls)),
	}
	if l.noLeaves {
		return r, nil
	}
	idx, ok := newLeavesArg[method]
	if !ok {
		return nil, fmt.Errorf("unknown method %s", method)
	}
	ev := &types.NewLeavesEvent{MinLeafIndex: uint64(len(l.leaves))}
	for _, v := range args[idx].([]*big.Int) {
		f := types.NewField(v)
		ev.LeafValues = append(ev.LeafValues, f)
		l.leaves = append(l.leaves, f)
	}
	r.NewLeaves = ev
	if method == "transfer" {
		ct := args[5].([][]*big.Int)[0]
		eph := args[6].([][2]*big.Int)[0]
		ev := &types.EncryptedDataEvent{
			EphPublicKey: [2]types.Field{types.NewField(eph[0]), types.NewField(eph[1])},
			TxHash:       r.TxHash,
			BlockNumber:  r.BlockNumber,
		}
		for _, v := range ct {
			ev.CipherText = append(ev.CipherText, types.NewField(v))
		}
		r.EncryptedData = append(r.EncryptedData, ev)
	}
	return r, nil
}

func (l *ledger) ZKPPublicKey(_ context.Context, account common.Address) (types.Field, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keys[account], nil
}

func (l *ledger) StartEventFilter(context.Context, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filters++
	return nil
}

func (l *ledger) root() types.Field {
	return types.FieldFromUint64(uint64(1000 + len(l.leaves)))
}

func (l *ledger) MembershipWitness(_ context.Context, _ string, leaf types.Field) (*timber.Witness, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.witnessFn != nil {
		if err := l.witnessFn(leaf); err != nil {
			return nil, err
		}
	}
	for i, v := range l.leaves {
		if v == leaf {
			path := make(types.Fields, testTreeHeight)
			path[0] = types.FieldFromUint64(uint64(i + 1))
			return &timber.Witness{Index: uint64(i), Root: l.root(), Path: path}, nil
		}
	}
	return nil, timber.ErrLeafNotFound
}

func (l *ledger) Placeholder(root types.Field) *timber.Witness {
	return &timber.Witness{Root: root, Path: make(types.Fields, testTreeHeight)}
}

func (l *ledger) methods() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ms := make([]string, len(l.calls))
	for i, c := range l.calls {
		ms[i] = c.method
	}
	return ms
}

func (l *ledger) lastCall() chainCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[len(l.calls)-1]
}

// fakeProver returns a fixed proof. For transfers it encrypts the recipient
// preimage as the circuit does and appends it to the outputs.
type fakeProver struct {
	mu       sync.Mutex
	requests []proofRequest
	err      error
	block    bool
}

type proofRequest struct {
	circuit prover.Circuit
	inputs  types.Fields
}

func (p *fakeProver) GenerateProof(ctx context.Context, circuit prover.Circuit, inputs types.Fields) (*prover.Proof, error) {
	p.mu.Lock()
	p.requests = append(p.requests, proofRequest{circuit: circuit, inputs: inputs})
	err, block := p.err, p.block
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	proof := &prover.Proof{Inputs: append(types.Fields(nil), inputs...)}
	for i := range 8 {
		proof.Coefficients = append(proof.Coefficients, types.FieldFromUint64(uint64(i+1)))
	}
	if circuit == prover.CircuitTransfer {
		n := len(inputs)
		stateVarID, err := mimc.StateVarID(mimc.BalancesSlot, inputs[0])
		if err != nil {
			return nil, err
		}
		pk, err := keys.Compress(&babyjub.Point{X: inputs[n-2].BigInt(), Y: inputs[n-1].BigInt()})
		if err != nil {
			return nil, err
		}
		plaintext := encryption.Plaintext{StateVarID: stateVarID, Value: inputs[1], Salt: inputs[n-5]}
		ct, eph, err := encryption.EncryptWithEphemeral(plaintext.Fields(), pk, inputs[n-3])
		if err != nil {
			return nil, err
		}
		proof.Inputs = append(append(proof.Inputs, ct...), eph[0], eph[1])
	}
	return proof, nil
}

func (p *fakeProver) circuits() []prover.Circuit {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs := make([]prover.Circuit, len(p.requests))
	for i, r := range p.requests {
		cs[i] = r.circuit
	}
	return cs
}

func (p *fakeProver) last() proofRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

type testEnv struct {
	b      *Builder
	stg    *storage.Storage
	st     *state.State
	chain  *ledger
	prover *fakeProver
	keys   *keys.KeyPair
}

func newTestEnv(t *testing.T, maxJoins int) *testEnv {
	c := qt.New(t)
	database := metadb.NewTest(t)
	stg := storage.New(database)
	st, err := state.New(database)
	c.Assert(err, qt.IsNil)
	kp, err := keys.Generate()
	c.Assert(err, qt.IsNil)
	chain := newLedger()
	p := &fakeProver{}
	b, err := New(&Config{
		Storage:  stg,
		State:    st,
		Prover:   p,
		Chain:    chain,
		Tree:     chain,
		Keys:     kp,
		Account:  testAccount,
		MaxJoins: maxJoins,
	})
	c.Assert(err, qt.IsNil)
	return &testEnv{b: b, stg: stg, st: st, chain: chain, prover: p, keys: kp}
}

// fund deposits each value as a separate commitment.
func (e *testEnv) fund(c *qt.C, values ...uint64) []*Result {
	var res []*Result
	for _, v := range values {
		r, err := e.b.Deposit(context.Background(), types.FieldFromUint64(v), nil)
		c.Assert(err, qt.IsNil)
		res = append(res, r)
	}
	return res
}

func (e *testEnv) balance(c *qt.C) uint64 {
	bal, err := e.b.Balance()
	c.Assert(err, qt.IsNil)
	return bal.BigInt().Uint64()
}

func (e *testEnv) root(c *qt.C) types.Field {
	r, err := e.st.Root()
	c.Assert(err, qt.IsNil)
	return r
}
