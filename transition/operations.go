package transition

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-escrow/commitment"
	"github.com/vocdoni/zk-escrow/crypto/hash/mimc"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/metrics"
	"github.com/vocdoni/zk-escrow/prover"
	"github.com/vocdoni/zk-escrow/selector"
	"github.com/vocdoni/zk-escrow/storage"
	"github.com/vocdoni/zk-escrow/types"
)

// Deposit moves amount public tokens of the account into a new commitment.
// The commitment is owned by recipientPublicKey, or by the local owner when
// it is nil. The shield must be approved to transfer the tokens first.
func (b *Builder) Deposit(ctx context.Context, amount types.Field, recipientPublicKey *types.Field) (res *Result, err error) {
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	stateVarID, mappingKey, err := b.ownBalance()
	if err != nil {
		return nil, err
	}
	unlock, err := b.locks.lock(ctx, lockKey{owner: b.keys.PublicKey, stateVar: stateVarID})
	if err != nil {
		return nil, err
	}
	defer unlock()

	r := newRun(OpDeposit, nil)
	defer func() { r.done(res, err) }()

	r.enter(PhaseComputeOutputs)
	owner := b.keys.PublicKey
	if recipientPublicKey != nil && !recipientPublicKey.IsZero() {
		owner = *recipientPublicKey
	}
	out, err := b.newCommitment(stateVarID, mappingKey, amount, owner)
	if err != nil {
		return nil, err
	}
	inputs := depositInputs(amount, mappingKey, out)
	proof, err := b.generateProof(ctx, r, prover.CircuitDeposit, inputs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.enter(PhaseSubmitTx)
	receipt, err := b.submit(ctx, string(prover.CircuitDeposit), []*commitment.Commitment{out},
		amount.BigInt(), []*big.Int{out.Hash.BigInt()}, proof.Coefficients.BigInts())
	if err != nil {
		return nil, err
	}

	r.enter(PhaseFinalize, "tx", receipt.TxHash.Hex())
	if err := b.stg.Apply(&storage.Update{Insert: []*commitment.Commitment{out}}); err != nil {
		log.Errorw(err, fmt.Sprintf("failed to finalize mined transaction %s", receipt.TxHash.Hex()))
		return nil, fmt.Errorf("finalize: %w", err)
	}
	return &Result{
		ID:             r.id,
		Operation:      OpDeposit,
		TxHash:         receipt.TxHash,
		LeafIndex:      receipt.NewLeaves.MinLeafIndex,
		NewCommitments: []*commitment.Commitment{out},
	}, nil
}

// Withdraw moves amount out of the owned commitments back to the public
// token balance of the account. The remainder is kept in a new change
// commitment.
func (b *Builder) Withdraw(ctx context.Context, amount types.Field) (res *Result, err error) {
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	return b.spendAmount(ctx, OpWithdraw, amount, nil)
}

// Transfer sends amount to the recipient account in a new commitment owned by
// recipientPublicKey. When it is nil, the key registered by the recipient in
// the shield contract is used. The recipient preimage is published encrypted
// so the recipient can claim it.
func (b *Builder) Transfer(ctx context.Context, to common.Address, amount types.Field, recipientPublicKey *types.Field) (res *Result, err error) {
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	rcpt := &recipient{address: to}
	if recipientPublicKey != nil && !recipientPublicKey.IsZero() {
		rcpt.publicKey = *recipientPublicKey
	} else {
		if rcpt.publicKey, err = b.chain.ZKPPublicKey(ctx, to); err != nil {
			return nil, fmt.Errorf("get public key of %s: %w", to.Hex(), err)
		}
		if rcpt.publicKey.IsZero() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRecipient, to.Hex())
		}
	}
	return b.spendAmount(ctx, OpTransfer, amount, rcpt)
}

// Join merges the two owned commitments of highest value into one, leaving
// the balance unchanged.
func (b *Builder) Join(ctx context.Context) (res *Result, err error) {
	stateVarID, mappingKey, err := b.ownBalance()
	if err != nil {
		return nil, err
	}
	unlock, err := b.locks.lock(ctx, lockKey{owner: b.keys.PublicKey, stateVar: stateVarID})
	if err != nil {
		return nil, err
	}
	defer unlock()

	owned, err := b.owned(stateVarID)
	if err != nil {
		return nil, err
	}
	if len(owned) < 2 {
		return nil, ErrNothingToJoin
	}
	return b.join(ctx, nil, stateVarID, mappingKey, selector.Highest(owned))
}

// spendAmount runs a withdrawal or a transfer: it selects the inputs,
// joining commitments when needed, and spends them.
func (b *Builder) spendAmount(ctx context.Context, op Operation, amount types.Field, to *recipient) (res *Result, err error) {
	stateVarID, mappingKey, err := b.ownBalance()
	if err != nil {
		return nil, err
	}
	unlock, err := b.locks.lock(ctx, lockKey{owner: b.keys.PublicKey, stateVar: stateVarID})
	if err != nil {
		return nil, err
	}
	defer unlock()

	r := newRun(op, nil)
	defer func() { r.done(res, err) }()

	inputs, joins, err := b.selectInputs(ctx, r, stateVarID, mappingKey, amount)
	if err != nil {
		return nil, err
	}
	kind := Spend2Produce1
	if op == OpTransfer {
		kind = Spend2Produce2
	}
	res, err = b.spend(ctx, r, &spendPlan{
		kind:       kind,
		stateVarID: stateVarID,
		mappingKey: mappingKey,
		amount:     amount,
		inputs:     inputs,
		recipient:  to,
	})
	if err != nil {
		return nil, err
	}
	res.Joins = joins
	return res, nil
}

// selectInputs picks the two commitments to spend, running join
// sub-transitions until a pair covers the amount. A single commitment that
// covers the amount is spent along with a placeholder instead of being
// joined with it.
func (b *Builder) selectInputs(ctx context.Context, r *run, stateVarID, mappingKey, amount types.Field) ([2]*commitment.Commitment, []*Result, error) {
	var joins []*Result
	for {
		r.enter(PhaseSelectInputs, "joins", len(joins))
		owned, err := b.owned(stateVarID)
		if err != nil {
			return [2]*commitment.Commitment{}, joins, err
		}
		total := selector.Total(owned)
		if len(owned) == 0 || total.Cmp(amount.BigInt()) < 0 {
			return [2]*commitment.Commitment{}, joins, fmt.Errorf("%w: balance %s, requested %s",
				ErrInsufficientFunds, total, amount.Integer())
		}
		sel := selector.Select(owned, amount, stateVarID, b.keys.PublicKey)
		if sel.Found || sel.Placeholders() > 0 {
			return sel.Inputs, joins, nil
		}
		if b.maxJoins > 0 && len(joins) >= b.maxJoins {
			return [2]*commitment.Commitment{}, joins, fmt.Errorf("%w: %d joins", ErrTooManyJoins, len(joins))
		}
		r.enter(PhaseJoin,
			"input0", sel.Inputs[0].Hash.Hex(),
			"input1", sel.Inputs[1].Hash.Hex())
		jr, err := b.join(ctx, r, stateVarID, mappingKey, sel.Inputs)
		if err != nil {
			return [2]*commitment.Commitment{}, joins, fmt.Errorf("join: %w", err)
		}
		joins = append(joins, jr)
	}
}

// join runs a join sub-transition. The caller holds the owner lock.
func (b *Builder) join(ctx context.Context, parent *run, stateVarID, mappingKey types.Field, inputs [2]*commitment.Commitment) (res *Result, err error) {
	r := newRun(OpJoin, parent)
	defer func() { r.done(res, err) }()
	res, err = b.spend(ctx, r, &spendPlan{
		kind:       Spend2Produce1,
		stateVarID: stateVarID,
		mappingKey: mappingKey,
		inputs:     inputs,
	})
	if err == nil {
		metrics.Joins.Inc()
	}
	return res, err
}

// generateProof requests the proof of circuit, mapping any failure other
// than a cancellation to ErrProofService.
func (b *Builder) generateProof(ctx context.Context, r *run, circuit prover.Circuit, inputs types.Fields) (*prover.Proof, error) {
	r.enter(PhaseRequestProof, "circuit", circuit, "inputs", len(inputs))
	start := time.Now()
	proof, err := b.prover.GenerateProof(ctx, circuit, inputs)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrProofService, err)
	}
	metrics.ObserveProof(string(circuit), start)
	if len(proof.Coefficients) == 0 {
		return nil, fmt.Errorf("%w: empty proof", ErrProofService)
	}
	return proof, nil
}

// submit calls method in the shield and checks that the transaction appended
// the expected commitments.
func (b *Builder) submit(ctx context.Context, method string, outputs []*commitment.Commitment, args ...any) (*types.TxReceipt, error) {
	receipt, err := b.chain.CallMethod(ctx, b.contract, method, args...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrChainRejected, err)
	}
	if receipt.NewLeaves == nil {
		return nil, fmt.Errorf("%w: no %s event in transaction %s", ErrChainRejected, "NewLeaves", receipt.TxHash.Hex())
	}
	leaves := make(map[types.Field]bool, len(receipt.NewLeaves.LeafValues))
	for _, l := range receipt.NewLeaves.LeafValues {
		leaves[l] = true
	}
	for _, c := range outputs {
		if !leaves[c.Hash] {
			return nil, fmt.Errorf("%w: commitment %s not appended by transaction %s",
				ErrChainRejected, c.Hash.Hex(), receipt.TxHash.Hex())
		}
	}
	if len(receipt.EncryptedData) == 0 {
		log.Debugw("no encrypted event", "tx", receipt.TxHash.Hex())
	}
	return receipt, nil
}

// ownBalance returns the state variable id and mapping key of the balance of
// the account.
func (b *Builder) ownBalance() (types.Field, types.Field, error) {
	stateVarID, err := mimc.BalanceID(b.account)
	if err != nil {
		return types.Field{}, types.Field{}, err
	}
	return stateVarID, mimc.MappingKey(b.account), nil
}

// owned returns the unspent commitments of the state variable that the local
// key pair can spend, oldest first.
func (b *Builder) owned(stateVarID types.Field) ([]*commitment.Commitment, error) {
	all, err := b.stg.ByStateVar(stateVarID)
	if err != nil {
		return nil, err
	}
	owned := make([]*commitment.Commitment, 0, len(all))
	for _, c := range all {
		if c.OwnerSecretKey == nil || *c.OwnerSecretKey != b.keys.SecretKey ||
			c.Preimage.OwnerPublicKey != b.keys.PublicKey {
			continue
		}
		owned = append(owned, c)
	}
	return owned, nil
}
