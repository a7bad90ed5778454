package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-escrow/api"
)

func fakeDaemon(t *testing.T) (*httptest.Server, *[]string) {
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc(api.PingEndpoint, func(w http.ResponseWriter, _ *http.Request) {})
	mux.HandleFunc(api.BalanceEndpoint, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(&api.BalanceResponse{Account: common.HexToAddress("0x01"), Balance: "42"})
	})
	mux.HandleFunc(api.TransferEndpoint, func(w http.ResponseWriter, r *http.Request) {
		req := &api.TransferRequest{}
		_ = json.NewDecoder(r.Body).Decode(req)
		seen = append(seen, req.Recipient.Hex()+":"+req.Value)
		api.ErrUnknownRecipient.Write(w)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestRunBalance(t *testing.T) {
	c := qt.New(t)
	srv, _ := fakeDaemon(t)
	out := &bytes.Buffer{}
	c.Assert(run(context.Background(), []string{"--host", srv.URL, "balance"}, out), qt.IsNil)
	res := &api.BalanceResponse{}
	c.Assert(json.Unmarshal(out.Bytes(), res), qt.IsNil)
	c.Assert(res.Balance, qt.Equals, "42")
}

func TestRunTransferReportsAPIError(t *testing.T) {
	c := qt.New(t)
	srv, seen := fakeDaemon(t)
	to := "0x2222222222222222222222222222222222222222"
	err := run(context.Background(), []string{"--host", srv.URL, "transfer", to, "5"}, &bytes.Buffer{})
	c.Assert(err, qt.ErrorMatches, ".*40012: unknown recipient")
	c.Assert(*seen, qt.DeepEquals, []string{common.HexToAddress(to).Hex() + ":5"})
}

func TestRunRejectsBadArguments(t *testing.T) {
	c := qt.New(t)
	srv, _ := fakeDaemon(t)
	ctx := context.Background()
	c.Assert(run(ctx, []string{"--host", srv.URL}, &bytes.Buffer{}), qt.ErrorMatches, "missing command")
	c.Assert(run(ctx, []string{"--host", srv.URL, "deposit"}, &bytes.Buffer{}), qt.ErrorMatches, "unknown command.*")
	c.Assert(run(ctx, []string{"--host", srv.URL, "transfer", "bob", "5"}, &bytes.Buffer{}), qt.ErrorMatches, "invalid account.*")
	c.Assert(run(ctx, []string{"--host", "localhost", "balance"}, &bytes.Buffer{}), qt.ErrorMatches, "invalid host.*")
}
