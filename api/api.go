package api

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/metrics"
	stg "github.com/vocdoni/zk-escrow/storage"
	"github.com/vocdoni/zk-escrow/transition"
	"github.com/vocdoni/zk-escrow/types"
)

// Engine runs the balance transitions of the local owner.
type Engine interface {
	Deposit(ctx context.Context, amount types.Field, recipientPublicKey *types.Field) (*transition.Result, error)
	Transfer(ctx context.Context, to common.Address, amount types.Field, recipientPublicKey *types.Field) (*transition.Result, error)
	Withdraw(ctx context.Context, amount types.Field) (*transition.Result, error)
	Join(ctx context.Context) (*transition.Result, error)
	Balance() (types.Field, error)
	Account() common.Address
}

// Token is the ERC20 token behind the shielded balances.
type Token interface {
	Mint(ctx context.Context, amount *big.Int) (*types.TxReceipt, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.TxReceipt, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// APIConfig type represents the configuration for the API HTTP server.
// Token is optional, the token endpoints fail when it is nil.
type APIConfig struct {
	Host    string
	Port    int
	Storage *stg.Storage
	Engine  Engine
	Token   Token
	// Shield is the default spender of the approvals.
	Shield common.Address
}

// API type represents the API HTTP server.
type API struct {
	router  *chi.Mux
	server  *http.Server
	storage *stg.Storage
	engine  Engine
	token   Token
	shield  common.Address
	addr    net.Addr
}

// New creates a new API instance with the given configuration and starts
// the HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil {
		return nil, fmt.Errorf("missing storage instance")
	}
	if conf.Engine == nil {
		return nil, fmt.Errorf("missing transition engine")
	}
	a := &API{
		storage: conf.Storage,
		engine:  conf.Engine,
		token:   conf.Token,
		shield:  conf.Shield,
	}

	// Initialize router
	a.initRouter()
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", conf.Host, conf.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	a.addr = ln.Addr()
	a.server = &http.Server{Handler: a.router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("starting API server", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Addr returns the address the server listens on.
func (a *API) Addr() net.Addr {
	return a.addr
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Close stops the HTTP server, waiting for the ongoing requests up to the
// context deadline.
func (a *API) Close(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", MetricsEndpoint, "method", "GET")
	a.router.Method(http.MethodGet, MetricsEndpoint, metrics.Handler())

	log.Infow("register handler", "endpoint", DepositEndpoint, "method", "POST")
	a.router.Post(DepositEndpoint, a.deposit)
	log.Infow("register handler", "endpoint", TransferEndpoint, "method", "POST")
	a.router.Post(TransferEndpoint, a.transfer)
	log.Infow("register handler", "endpoint", WithdrawEndpoint, "method", "POST")
	a.router.Post(WithdrawEndpoint, a.withdraw)
	log.Infow("register handler", "endpoint", JoinEndpoint, "method", "POST")
	a.router.Post(JoinEndpoint, a.join)
	log.Infow("register handler", "endpoint", BalanceEndpoint, "method", "GET")
	a.router.Get(BalanceEndpoint, a.balance)

	log.Infow("register handler", "endpoint", MintEndpoint, "method", "POST")
	a.router.Post(MintEndpoint, a.mint)
	log.Infow("register handler", "endpoint", ApproveEndpoint, "method", "POST")
	a.router.Post(ApproveEndpoint, a.approve)
	log.Infow("register handler", "endpoint", BalanceOfEndpoint, "method", "GET")
	a.router.Get(BalanceOfEndpoint, a.balanceOf)

	log.Infow("register handler", "endpoint", CommitmentsEndpoint, "method", "GET")
	a.router.Get(CommitmentsEndpoint, a.commitments)
	log.Infow("register handler", "endpoint", CommitmentsByStateEndpoint, "method", "GET")
	a.router.Get(CommitmentsByStateEndpoint, a.commitmentsByState)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	// transitions wait for a proof and a mined transaction
	a.router.Use(middleware.Timeout(5 * time.Minute))

	// Register the API handlers
	a.registerHandlers()
}
