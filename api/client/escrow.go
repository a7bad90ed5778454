package client

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-escrow/api"
	"github.com/vocdoni/zk-escrow/types"
)

// Deposit moves value public tokens into a new commitment owned by
// recipientPublicKey, or by the daemon owner when it is nil.
func (c *Client) Deposit(ctx context.Context, value string, recipientPublicKey *types.Field) (*api.Transition, error) {
	res := &api.Transition{}
	req := &api.DepositRequest{Value: value, RecipientPublicKey: recipientPublicKey}
	return res, c.do(ctx, http.MethodPost, req, res, api.DepositEndpoint)
}

// Transfer sends value to the recipient account.
func (c *Client) Transfer(ctx context.Context, recipient common.Address, value string, recipientPublicKey *types.Field) (*api.Transition, error) {
	res := &api.Transition{}
	req := &api.TransferRequest{Value: value, Recipient: recipient, RecipientPublicKey: recipientPublicKey}
	return res, c.do(ctx, http.MethodPost, req, res, api.TransferEndpoint)
}

func (c *Client) Withdraw(ctx context.Context, value string) (*api.Transition, error) {
	res := &api.Transition{}
	return res, c.do(ctx, http.MethodPost, &api.AmountRequest{Value: value}, res, api.WithdrawEndpoint)
}

func (c *Client) Join(ctx context.Context) (*api.Transition, error) {
	res := &api.Transition{}
	return res, c.do(ctx, http.MethodPost, nil, res, api.JoinEndpoint)
}

// Balance returns the shielded balance of the daemon account.
func (c *Client) Balance(ctx context.Context) (*api.BalanceResponse, error) {
	res := &api.BalanceResponse{}
	return res, c.do(ctx, http.MethodGet, nil, res, api.BalanceEndpoint)
}

// Commitments returns every commitment known to the daemon.
func (c *Client) Commitments(ctx context.Context) (*api.Commitments, error) {
	res := &api.Commitments{}
	return res, c.do(ctx, http.MethodGet, nil, res, api.CommitmentsEndpoint)
}

// Mint mints value test tokens to the daemon account.
func (c *Client) Mint(ctx context.Context, value string) (*api.TxResponse, error) {
	res := &api.TxResponse{}
	return res, c.do(ctx, http.MethodPost, &api.AmountRequest{Value: value}, res, api.MintEndpoint)
}

// Approve lets the shield, or spender when set, move value tokens of the
// daemon account.
func (c *Client) Approve(ctx context.Context, value string, spender *common.Address) (*api.TxResponse, error) {
	res := &api.TxResponse{}
	return res, c.do(ctx, http.MethodPost, &api.ApproveRequest{Value: value, Spender: spender}, res, api.ApproveEndpoint)
}
