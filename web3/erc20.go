package web3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-escrow/types"
)

// Mint creates amount tokens for the account. It is signed with the admin
// key.
func (c *Contracts) Mint(ctx context.Context, amount *big.Int) (*types.TxReceipt, error) {
	if c.adminKey == nil {
		return nil, fmt.Errorf("no admin private key set")
	}
	return c.transact(ctx, c.adminKey, ERC20Contract, "mint", c.address, amount)
}

// Approve allows spender to move amount tokens of the account. Deposits need
// the shield contract approved first.
func (c *Contracts) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.TxReceipt, error) {
	return c.CallMethod(ctx, ERC20Contract, "approve", spender, amount)
}

// BalanceOf returns the public token balance of the account.
func (c *Contracts) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := c.Call(ctx, ERC20Contract, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	v, err := singleBigInt(out)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return v, nil
}
