package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-escrow/api"
	"github.com/vocdoni/zk-escrow/api/client"
	"github.com/vocdoni/zk-escrow/commitment"
	"github.com/vocdoni/zk-escrow/storage"
	"github.com/vocdoni/zk-escrow/transition"
	"github.com/vocdoni/zk-escrow/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestAPIService(t *testing.T) {
	c := qt.New(t)

	// Port 0 lets the OS choose an available port
	apiService := NewAPI(&api.APIConfig{
		Host:    "127.0.0.1",
		Port:    0,
		Storage: storage.New(metadb.NewTest(t)),
		Engine:  stubEngine{},
	})
	ctx := context.Background()

	err := apiService.Start(ctx)
	c.Assert(err, qt.IsNil)
	defer apiService.Stop()

	// Test starting an already running service
	err = apiService.Start(ctx)
	c.Assert(err, qt.ErrorMatches, "service already running")

	// Test stopping and restarting
	apiService.Stop()
	err = apiService.Start(ctx)
	c.Assert(err, qt.IsNil)

	c.Assert(NewAPI(&api.APIConfig{Host: "127.0.0.1"}).Start(ctx), qt.ErrorMatches, ".*missing storage instance")
}

func TestAPIServiceClient(t *testing.T) {
	c := qt.New(t)
	stg := storage.New(metadb.NewTest(t))
	apiService := NewAPI(&api.APIConfig{
		Host:    "127.0.0.1",
		Port:    0,
		Storage: stg,
		Engine:  stubEngine{},
	})
	ctx := context.Background()
	c.Assert(apiService.Start(ctx), qt.IsNil)
	defer apiService.Stop()

	host, port := apiService.HostPort()
	c.Assert(port, qt.Not(qt.Equals), 0)
	cli, err := client.New(ctx, fmt.Sprintf("http://%s:%d", host, port))
	c.Assert(err, qt.IsNil)

	res, err := cli.Deposit(ctx, "100", nil)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Operation, qt.Equals, transition.OpDeposit)
	c.Assert(res.NewCommitments, qt.HasLen, 1)
	c.Assert(res.NewCommitments[0].Preimage.Value, qt.Equals, types.FieldFromUint64(100))
	c.Assert(res.NewCommitments[0].Owned, qt.IsFalse)

	// the engine error is reported with its API code
	_, err = cli.Withdraw(ctx, "10")
	var apiErr *client.Error
	c.Assert(errors.As(err, &apiErr), qt.IsTrue)
	c.Assert(apiErr.Status, qt.Equals, http.StatusBadRequest)
	c.Assert(apiErr.Code, qt.Equals, api.ErrInsufficientFunds.Code)

	_, err = cli.Deposit(ctx, "not a number", nil)
	c.Assert(errors.As(err, &apiErr), qt.IsTrue)
	c.Assert(apiErr.Code, qt.Equals, api.ErrMalformedAmount.Code)

	bal, err := cli.Balance(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(bal.Account, qt.Equals, testAccount)
	c.Assert(bal.Balance, qt.Equals, "0")

	// commitments are served from the store, not the engine
	stored, err := commitment.New(types.FieldFromUint64(1), commitment.Preimage{Value: types.FieldFromUint64(25)}, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(stg.Store(stored), qt.IsNil)
	list, err := cli.Commitments(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(list.Commitments, qt.HasLen, 1)
	c.Assert(list.Commitments[0].Hash, qt.Equals, stored.Hash)
	c.Assert(list.Commitments[0].Preimage.Value, qt.Equals, types.FieldFromUint64(25))
}
