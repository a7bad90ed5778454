package web3

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/types"
)

// parseReceipt decodes the shield events emitted by the contract in the
// receipt. Logs of other contracts and events are ignored.
func parseReceipt(ct *contract, r *gethtypes.Receipt) (*types.TxReceipt, error) {
	res := &types.TxReceipt{
		TxHash:  r.TxHash,
		GasUsed: r.GasUsed,
	}
	if r.BlockNumber != nil {
		res.BlockNumber = r.BlockNumber.Uint64()
	}
	for _, l := range r.Logs {
		if l == nil || l.Address != ct.address || len(l.Topics) == 0 {
			continue
		}
		switch {
		case matches(ct, NewLeavesEvent, l):
			ev, err := decodeNewLeaves(ct, l)
			if err != nil {
				return nil, err
			}
			res.NewLeaves = ev
		case matches(ct, EncryptedDataEvent, l):
			ev, err := decodeEncryptedData(ct, l)
			if err != nil {
				return nil, err
			}
			res.EncryptedData = append(res.EncryptedData, ev)
		}
	}
	return res, nil
}

func matches(ct *contract, event string, l *gethtypes.Log) bool {
	ev, ok := ct.abi.Events[event]
	return ok && l.Topics[0] == ev.ID
}

func decodeNewLeaves(ct *contract, l *gethtypes.Log) (*types.NewLeavesEvent, error) {
	values, err := ct.abi.Unpack(NewLeavesEvent, l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", NewLeavesEvent, err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected %s fields: %d", NewLeavesEvent, len(values))
	}
	minLeafIndex, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s minLeafIndex type %T", NewLeavesEvent, values[0])
	}
	leaves, ok := values[1].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s leafValues type %T", NewLeavesEvent, values[1])
	}
	ev := &types.NewLeavesEvent{
		MinLeafIndex: minLeafIndex.Uint64(),
		LeafValues:   make(types.Fields, len(leaves)),
	}
	for i, v := range leaves {
		ev.LeafValues[i] = types.NewField(v)
	}
	return ev, nil
}

func decodeEncryptedData(ct *contract, l *gethtypes.Log) (*types.EncryptedDataEvent, error) {
	values, err := ct.abi.Unpack(EncryptedDataEvent, l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", EncryptedDataEvent, err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected %s fields: %d", EncryptedDataEvent, len(values))
	}
	cipherText, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s cipherText type %T", EncryptedDataEvent, values[0])
	}
	ephKey, ok := values[1].([2]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s ephPublicKey type %T", EncryptedDataEvent, values[1])
	}
	ev := &types.EncryptedDataEvent{
		CipherText:   make(types.Fields, len(cipherText)),
		EphPublicKey: [2]types.Field{types.NewField(ephKey[0]), types.NewField(ephKey[1])},
		TxHash:       l.TxHash,
		BlockNumber:  l.BlockNumber,
	}
	for i, v := range cipherText {
		ev.CipherText[i] = types.NewField(v)
	}
	return ev, nil
}

// EncryptedDataEvents returns the EncryptedData events emitted by the shield
// from the given block on, oldest first.
func (c *Contracts) EncryptedDataEvents(ctx context.Context, fromBlock uint64) ([]*types.EncryptedDataEvent, error) {
	ct, err := c.contract(EscrowShieldContract)
	if err != nil {
		return nil, err
	}
	logs, err := c.pastEvents(ctx, ct, EncryptedDataEvent, fromBlock)
	if err != nil {
		return nil, err
	}
	events := make([]*types.EncryptedDataEvent, 0, len(logs))
	for i := range logs {
		ev, err := decodeEncryptedData(ct, &logs[i])
		if err != nil {
			log.Warnw("skipping malformed event", "event", EncryptedDataEvent, "tx", logs[i].TxHash.Hex(), "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *Contracts) pastEvents(ctx context.Context, ct *contract, event string, fromBlock uint64) ([]gethtypes.Log, error) {
	ev, ok := ct.abi.Events[event]
	if !ok {
		return nil, fmt.Errorf("contract %s has no event %s", ct.name, event)
	}
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	logs, err := c.cli.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{ct.address},
		Topics:    [][]common.Hash{{ev.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter %s events: %w", event, err)
	}
	return logs, nil
}

// MonitorEncryptedDataByPolling polls the shield contract every interval for
// new EncryptedData events, starting at fromBlock. The channel is closed
// when the context is done.
func (c *Contracts) MonitorEncryptedDataByPolling(ctx context.Context, fromBlock uint64, interval time.Duration) (<-chan *types.EncryptedDataEvent, error) {
	if _, err := c.contract(EscrowShieldContract); err != nil {
		return nil, err
	}
	ch := make(chan *types.EncryptedDataEvent)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		next := fromBlock
		for {
			select {
			case <-ctx.Done():
				log.Warnw("exiting monitor encrypted data")
				return
			case <-ticker.C:
				events, err := c.EncryptedDataEvents(ctx, next)
				if err != nil {
					log.Warnw("failed to filter encrypted data, retrying", "err", err)
					continue
				}
				for _, ev := range events {
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
					next = ev.BlockNumber + 1
				}
			}
		}
	}()
	return ch, nil
}
