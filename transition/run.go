package transition

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/metrics"
)

// Phase is a step of the transition state machine:
//
//	Init -> SelectInputs -> (Join)* -> BuildWitnesses -> ComputeOutputs ->
//	RequestProof -> SubmitTx -> Finalize | Abort
type Phase string

const (
	PhaseInit           Phase = "init"
	PhaseSelectInputs   Phase = "select-inputs"
	PhaseJoin           Phase = "join"
	PhaseBuildWitnesses Phase = "build-witnesses"
	PhaseComputeOutputs Phase = "compute-outputs"
	PhaseRequestProof   Phase = "request-proof"
	PhaseSubmitTx       Phase = "submit-tx"
	PhaseFinalize       Phase = "finalize"
	PhaseAbort          Phase = "abort"
)

// run tracks a transition in progress.
type run struct {
	id     string
	parent string
	op     Operation
	phase  Phase
	start  time.Time
}

func newRun(op Operation, parent *run) *run {
	r := &run{
		id:    uuid.NewString(),
		op:    op,
		start: time.Now(),
	}
	if parent != nil {
		r.parent = parent.id
	}
	r.enter(PhaseInit)
	return r
}

func (r *run) enter(p Phase, keysAndValues ...any) {
	r.phase = p
	kv := append([]any{"id", r.id, "operation", r.op, "phase", p}, keysAndValues...)
	if r.parent != "" {
		kv = append(kv, "parent", r.parent)
	}
	log.Debugw("transition", kv...)
}

// done logs and records the outcome of the run.
func (r *run) done(res *Result, err error) {
	if err == nil {
		log.Infow("transition finalized",
			"id", r.id,
			"operation", r.op,
			"tx", res.TxHash.Hex(),
			"leafIndex", res.LeafIndex,
			"took", time.Since(r.start).String())
		metrics.ObserveTransition(string(r.op), metrics.OutcomeOK, r.start)
		return
	}
	failedAt := r.phase
	r.phase = PhaseAbort
	log.Warnw("transition aborted",
		"id", r.id,
		"operation", r.op,
		"phase", failedAt,
		"error", err.Error())
	outcome := metrics.OutcomeFailed
	if errors.Is(err, ErrChainRejected) {
		outcome = metrics.OutcomeRejected
	}
	metrics.ObserveTransition(string(r.op), outcome, r.start)
}
