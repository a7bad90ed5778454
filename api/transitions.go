package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-escrow/log"
)

// deposit moves public tokens into a new commitment
// POST /deposit
func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	req := &DepositRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	amount, err := parseAmount(req.Value)
	if err != nil {
		ErrMalformedAmount.WithErr(err).Write(w)
		return
	}
	res, err := a.engine.Deposit(r.Context(), amount, req.RecipientPublicKey)
	if err != nil {
		transitionError(err).Write(w)
		return
	}
	log.Infow("deposit done", "id", res.ID, "tx", res.TxHash.Hex())
	httpWriteJSON(w, transitionView(res))
}

// transfer sends part of the shielded balance to another account
// POST /transfer
func (a *API) transfer(w http.ResponseWriter, r *http.Request) {
	req := &TransferRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.Recipient == (common.Address{}) {
		ErrMalformedAddress.With("missing recipient").Write(w)
		return
	}
	amount, err := parseAmount(req.Value)
	if err != nil {
		ErrMalformedAmount.WithErr(err).Write(w)
		return
	}
	res, err := a.engine.Transfer(r.Context(), req.Recipient, amount, req.RecipientPublicKey)
	if err != nil {
		transitionError(err).Write(w)
		return
	}
	log.Infow("transfer done", "id", res.ID, "tx", res.TxHash.Hex(), "joins", len(res.Joins))
	httpWriteJSON(w, transitionView(res))
}

// withdraw moves part of the shielded balance back to public tokens
// POST /withdraw
func (a *API) withdraw(w http.ResponseWriter, r *http.Request) {
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
	res, err := a.engine.Withdraw(r.Context(), amount)
	if err != nil {
		transitionError(err).Write(w)
		return
	}
	log.Infow("withdraw done", "id", res.ID, "tx", res.TxHash.Hex(), "joins", len(res.Joins))
	httpWriteJSON(w, transitionView(res))
}

// join merges the two largest owned commitments
// POST /join
func (a *API) join(w http.ResponseWriter, r *http.Request) {
	res, err := a.engine.Join(r.Context())
	if err != nil {
		transitionError(err).Write(w)
		return
	}
	httpWriteJSON(w, transitionView(res))
}

// balance returns the shielded balance of the account
// GET /balance
func (a *API) balance(w http.ResponseWriter, r *http.Request) {
	bal, err := a.engine.Balance()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &BalanceResponse{Account: a.engine.Account(), Balance: bal.Integer()})
}
