package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
)

// mint mints test tokens to the account
// POST /mint
func (a *API) mint(w http.ResponseWriter, r *http.Request) {
	if a.token == nil {
		ErrTokenNotConfigured.Write(w)
		return
	}
	req := &AmountRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	amount, err := parseAmount(req.Value)
	if err != nil {
		ErrMalformedAmount.WithErr(err).Write(w)
		return
	}
	receipt, err := a.token.Mint(r.Context(), amount.BigInt())
	if err != nil {
		ErrTokenCallFailed.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &TxResponse{TxHash: receipt.TxHash})
}

// approve allows the shield (or the given spender) to move the account tokens
// POST /approve
func (a *API) approve(w http.ResponseWriter, r *http.Request) {
	if a.token == nil {
		ErrTokenNotConfigured.Write(w)
		return
	}
	req := &ApproveRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	amount, err := parseAmount(req.Value)
	if err != nil {
		ErrMalformedAmount.WithErr(err).Write(w)
		return
	}
	spender := a.shield
	if req.Spender != nil {
		spender = *req.Spender
	}
	receipt, err := a.token.Approve(r.Context(), spender, amount.BigInt())
	if err != nil {
		ErrTokenCallFailed.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &TxResponse{TxHash: receipt.TxHash})
}

// balanceOf returns the public token balance of an account
// GET /balanceOf/{account}
func (a *API) balanceOf(w http.ResponseWriter, r *http.Request) {
	if a.token == nil {
		ErrTokenNotConfigured.Write(w)
		return
	}
	param := chi.URLParam(r, AccountURLParam)
	if !common.IsHexAddress(param) {
		ErrMalformedAddress.With(param).Write(w)
		return
	}
	account := common.HexToAddress(param)
	bal, err := a.token.BalanceOf(r.Context(), account)
	if err != nil {
		ErrTokenCallFailed.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &BalanceResponse{Account: account, Balance: bal.String()})
}
