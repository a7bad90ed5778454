package transition

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-escrow/commitment"
	"github.com/vocdoni/zk-escrow/crypto/hash/mimc"
	"github.com/vocdoni/zk-escrow/crypto/keys"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/metrics"
	"github.com/vocdoni/zk-escrow/prover"
	"github.com/vocdoni/zk-escrow/state"
	"github.com/vocdoni/zk-escrow/storage"
	"github.com/vocdoni/zk-escrow/timber"
	"github.com/vocdoni/zk-escrow/types"
	"github.com/vocdoni/zk-escrow/util"
	"go.vocdoni.io/dvote/db"
	"golang.org/x/sync/errgroup"
)

// recipient identifies the receiver of a transfer.
type recipient struct {
	address   common.Address
	publicKey types.Field
}

// spendPlan describes a transition that spends two commitments.
type spendPlan struct {
	kind       Kind
	stateVarID types.Field
	mappingKey types.Field
	// amount leaving the owner balance, zero for joins
	amount    types.Field
	inputs    [2]*commitment.Commitment
	recipient *recipient
}

func circuitFor(op Operation) prover.Circuit {
	switch op {
	case OpTransfer:
		return prover.CircuitTransfer
	case OpWithdraw:
		return prover.CircuitWithdraw
	default:
		return prover.CircuitJoin
	}
}

// spend runs a spending transition from BuildWitnesses to Finalize. The
// caller holds the owner lock.
func (b *Builder) spend(ctx context.Context, r *run, p *spendPlan) (*Result, error) {
	r.enter(PhaseBuildWitnesses,
		"input0", p.inputs[0].Hash.Hex(),
		"input1", p.inputs[1].Hash.Hex())
	if err := b.tree.StartEventFilter(ctx, b.contract); err != nil {
		return nil, fmt.Errorf("start event filter: %w", err)
	}
	memberships, err := b.membershipWitnesses(ctx, p.inputs)
	if err != nil {
		return nil, err
	}
	batch, err := b.nullifiers.Stage(ctx)
	if err != nil {
		return nil, fmt.Errorf("stage nullifiers: %w", err)
	}
	// no-op once committed
	defer batch.Rollback()
	w, err := b.stageNullifiers(batch, p.inputs, memberships)
	if err != nil {
		return nil, err
	}

	r.enter(PhaseComputeOutputs)
	sum := new(big.Int).Add(p.inputs[0].Value().BigInt(), p.inputs[1].Value().BigInt())
	changeValue := new(big.Int).Sub(sum, p.amount.BigInt())
	if changeValue.Sign() < 0 {
		return nil, fmt.Errorf("%w: inputs %s do not cover %s", ErrInsufficientFunds, sum, p.amount.Integer())
	}
	change, err := b.newCommitment(p.stateVarID, p.mappingKey, types.NewField(changeValue), b.keys.PublicKey)
	if err != nil {
		return nil, err
	}
	outputs := []*commitment.Commitment{change}

	var inputs types.Fields
	var sent *commitment.Commitment
	switch p.kind {
	case Spend2Produce2:
		sent, err = b.recipientCommitment(p.recipient, p.amount)
		if err != nil {
			return nil, err
		}
		point, err := keys.Decompress(p.recipient.publicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownRecipient, err)
		}
		inputs = transferInputs(mimc.MappingKey(p.recipient.address), p.amount, p.mappingKey,
			b.keys.SecretKey, w, change, sent, util.RandomSalt(),
			[2]types.Field{types.NewField(point.X), types.NewField(point.Y)})
		outputs = append(outputs, sent)
	default:
		if r.op == OpWithdraw {
			inputs = withdrawInputs(p.amount, p.mappingKey, b.keys.SecretKey, w, change)
		} else {
			inputs = joinInputs(p.mappingKey, b.keys.SecretKey, w, change)
		}
	}

	circuit := circuitFor(r.op)
	proof, err := b.generateProof(ctx, r, circuit, inputs)
	if err != nil {
		return nil, err
	}
	var encrypted *types.EncryptedDataEvent
	if p.kind == Spend2Produce2 {
		if encrypted, err = encryptedOutputs(proof); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter(PhaseSubmitTx)
	newLeaves := make([]*big.Int, len(outputs))
	for i, c := range outputs {
		newLeaves[i] = c.Hash.BigInt()
	}
	nullifiers := w.nullifiers().BigInts()
	var args []any
	switch r.op {
	case OpTransfer:
		args = []any{
			w.nullifierRoot.BigInt(), w.newNullifierRoot.BigInt(), nullifiers,
			w.commitmentRoot.BigInt(), newLeaves,
			[][]*big.Int{encrypted.CipherText.BigInts()},
			[][2]*big.Int{{encrypted.EphPublicKey[0].BigInt(), encrypted.EphPublicKey[1].BigInt()}},
			proof.Coefficients.BigInts(),
		}
	case OpWithdraw:
		args = []any{
			p.amount.BigInt(), w.nullifierRoot.BigInt(), w.newNullifierRoot.BigInt(), nullifiers,
			w.commitmentRoot.BigInt(), newLeaves, proof.Coefficients.BigInts(),
		}
	default:
		args = []any{
			w.nullifierRoot.BigInt(), w.newNullifierRoot.BigInt(), nullifiers,
			w.commitmentRoot.BigInt(), newLeaves, proof.Coefficients.BigInts(),
		}
	}
	receipt, err := b.submit(ctx, string(circuit), outputs, args...)
	if err != nil {
		return nil, err
	}

	r.enter(PhaseFinalize, "tx", receipt.TxHash.Hex())
	update := &storage.Update{Insert: outputs}
	for _, in := range w.inputs {
		if in.commitment.IsPlaceholder() {
			continue
		}
		update.Nullify = append(update.Nullify, storage.Nullification{
			Hash:      in.commitment.Hash,
			SecretKey: b.keys.SecretKey,
		})
	}
	staged := len(batch.Staged())
	if err := batch.CommitWith(func(wTx db.WriteTx) error {
		return b.stg.CommitWithTx(wTx, update)
	}); err != nil {
		// the transaction is already mined, the local state is now behind
		log.Errorw(err, fmt.Sprintf("failed to finalize mined transaction %s", receipt.TxHash.Hex()))
		return nil, fmt.Errorf("finalize: %w", err)
	}
	metrics.Nullifiers.Add(float64(staged))
	if encrypted != nil {
		encrypted.TxHash = receipt.TxHash
		encrypted.BlockNumber = receipt.BlockNumber
	}
	return &Result{
		ID:             r.id,
		Operation:      r.op,
		TxHash:         receipt.TxHash,
		LeafIndex:      receipt.NewLeaves.MinLeafIndex,
		NewCommitments: outputs,
		Nullifiers:     w.nullifiers(),
		Encrypted:      encrypted,
	}, nil
}

// membershipWitnesses fetches the shield tree witnesses of both inputs
// concurrently. Placeholders get an empty path against the same root.
func (b *Builder) membershipWitnesses(ctx context.Context, inputs [2]*commitment.Commitment) ([2]*timber.Witness, error) {
	var res [2]*timber.Witness
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		if in.IsPlaceholder() {
			continue
		}
		g.Go(func() error {
			w, err := b.tree.MembershipWitness(gctx, b.contract, in.Hash)
			if err != nil {
				return fmt.Errorf("membership witness of %s: %w", in.Hash.Hex(), err)
			}
			res[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	var root *types.Field
	for _, w := range res {
		if w == nil {
			continue
		}
		if root != nil && *root != w.Root {
			return res, fmt.Errorf("membership witnesses disagree on the tree root")
		}
		root = &w.Root
	}
	if root == nil {
		return res, fmt.Errorf("no commitment to spend")
	}
	for i := range res {
		if res[i] == nil {
			res[i] = b.tree.Placeholder(*root)
		}
	}
	return res, nil
}

// stageNullifiers derives the nullifiers of the inputs, proves they are not
// spent, stages them and proves their insertion. Placeholders get a zero
// nullifier and no-op witnesses and are not inserted.
func (b *Builder) stageNullifiers(batch *state.Batch, inputs [2]*commitment.Commitment, memberships [2]*timber.Witness) (*spendWitness, error) {
	root, err := batch.Root()
	if err != nil {
		return nil, err
	}
	w := &spendWitness{
		nullifierRoot:  root,
		commitmentRoot: memberships[0].Root,
	}
	for i, in := range inputs {
		w.inputs[i] = spentInput{commitment: in, membership: memberships[i]}
		if in.IsPlaceholder() {
			w.inputs[i].before = state.Noop(root)
			continue
		}
		if w.inputs[i].nullifier, err = in.Nullifier(b.keys.SecretKey); err != nil {
			return nil, err
		}
		if w.inputs[i].before, err = batch.NonMembershipWitness(w.inputs[i].nullifier); err != nil {
			return nil, err
		}
	}
	for _, in := range w.inputs {
		if in.commitment.IsPlaceholder() {
			continue
		}
		if err := batch.Insert(in.nullifier); err != nil {
			return nil, err
		}
	}
	if w.newNullifierRoot, err = batch.Root(); err != nil {
		return nil, err
	}
	for i, in := range w.inputs {
		if in.commitment.IsPlaceholder() {
			w.inputs[i].after = state.Noop(w.newNullifierRoot)
			continue
		}
		if w.inputs[i].after, err = batch.Witness(in.nullifier); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// newCommitment builds a commitment with a fresh salt. The owner secret is
// recorded when the owner is the local key pair.
func (b *Builder) newCommitment(stateVarID, mappingKey, value, ownerPublicKey types.Field) (*commitment.Commitment, error) {
	var sk *types.Field
	if ownerPublicKey == b.keys.PublicKey {
		secret := b.keys.SecretKey
		sk = &secret
	}
	return commitment.New(mappingKey, commitment.Preimage{
		StateVarID:     stateVarID,
		Value:          value,
		Salt:           util.RandomSalt(),
		OwnerPublicKey: ownerPublicKey,
	}, sk)
}

func (b *Builder) recipientCommitment(to *recipient, amount types.Field) (*commitment.Commitment, error) {
	stateVarID, err := mimc.BalanceID(to.address)
	if err != nil {
		return nil, err
	}
	return b.newCommitment(stateVarID, mimc.MappingKey(to.address), amount, to.publicKey)
}

// encryptedOutputs extracts the encrypted recipient preimage from the tail
// of the transfer proof outputs: three ciphertext elements followed by the
// ephemeral public key.
func encryptedOutputs(proof *prover.Proof) (*types.EncryptedDataEvent, error) {
	n := len(proof.Inputs)
	if n < 5 {
		return nil, fmt.Errorf("%w: transfer proof has %d outputs", ErrProofService, n)
	}
	return &types.EncryptedDataEvent{
		CipherText:   append(types.Fields(nil), proof.Inputs[n-5:n-2]...),
		EphPublicKey: [2]types.Field{proof.Inputs[n-2], proof.Inputs[n-1]},
	}, nil
}
