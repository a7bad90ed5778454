package web3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/types"
)

// RegisterKey registers the compressed zero-knowledge public key of the
// account in the shield contract, so other parties can send commitments to
// it.
func (c *Contracts) RegisterKey(ctx context.Context, publicKey types.Field) (*types.TxReceipt, error) {
	r, err := c.CallMethod(ctx, EscrowShieldContract, "registerZKPPublicKey", publicKey.BigInt())
	if err != nil {
		return nil, fmt.Errorf("failed to register key: %w", err)
	}
	log.Infow("zkp public key registered", "account", c.address.Hex(), "publicKey", publicKey.Hex())
	return r, nil
}

// ZKPPublicKey returns the zero-knowledge public key registered by the
// account. The zero value means no key is registered.
func (c *Contracts) ZKPPublicKey(ctx context.Context, account common.Address) (types.Field, error) {
	out, err := c.Call(ctx, EscrowShieldContract, "zkpPublicKeys", account)
	if err != nil {
		return types.Field{}, err
	}
	v, err := singleBigInt(out)
	if err != nil {
		return types.Field{}, fmt.Errorf("zkpPublicKeys: %w", err)
	}
	return types.NewField(v), nil
}

func singleBigInt(out []any) (*big.Int, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected number of outputs: %d", len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", out[0])
	}
	return v, nil
}
