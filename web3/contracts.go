package web3

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/types"
	"github.com/vocdoni/zk-escrow/util"
)

const (
	// DefaultGasLimit is the gas limit of every transaction unless changed
	// with SetGasLimit.
	DefaultGasLimit = 5221975

	web3QueryTimeout = 10 * time.Second
)

// Addresses contains the addresses of the contracts deployed in the network.
type Addresses struct {
	EscrowShield common.Address
	ERC20        common.Address
}

type contract struct {
	name    string
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
}

// Contracts contains the bindings to the deployed contracts and the keys
// used to sign transactions.
type Contracts struct {
	ChainID   uint64
	cli       *ethclient.Client
	contracts map[string]*contract
	privKey   *ecdsa.PrivateKey
	address   common.Address
	adminKey  *ecdsa.PrivateKey
	gasLimit  uint64

	// transactions of the same account are sent one at a time so nonces do
	// not collide
	txLock sync.Mutex
}

// NewContracts dials the web3 endpoint and binds the contracts using their
// built-in interfaces.
func NewContracts(ctx context.Context, addresses *Addresses, web3rpc string) (*Contracts, error) {
	cli, err := ethclient.DialContext(ctx, web3rpc)
	if err != nil {
		return nil, fmt.Errorf("failed to dial web3 endpoint: %w", err)
	}
	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	c := &Contracts{
		ChainID:   chainID.Uint64(),
		cli:       cli,
		contracts: make(map[string]*contract),
		gasLimit:  DefaultGasLimit,
	}
	for name, addr := range map[string]common.Address{
		EscrowShieldContract: addresses.EscrowShield,
		ERC20Contract:        addresses.ERC20,
	} {
		a, err := DefaultABI(name)
		if err != nil {
			return nil, err
		}
		c.Bind(name, addr, a)
	}
	return c, nil
}

// Bind registers or replaces the binding of the named contract.
func (c *Contracts) Bind(name string, address common.Address, a abi.ABI) {
	c.contracts[name] = &contract{
		name:    name,
		address: address,
		abi:     a,
		bound:   bind.NewBoundContract(address, a, c.cli, c.cli, c.cli),
	}
}

// Address returns the address of the named contract.
func (c *Contracts) Address(name string) (common.Address, error) {
	ct, err := c.contract(name)
	if err != nil {
		return common.Address{}, err
	}
	return ct.address, nil
}

// SetAccountPrivateKey sets the private key to be used for signing transactions.
func (c *Contracts) SetAccountPrivateKey(hexPrivKey string) error {
	var err error
	c.privKey, err = crypto.HexToECDSA(util.TrimHex(hexPrivKey))
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	c.address = crypto.PubkeyToAddress(c.privKey.PublicKey)
	return nil
}

// SetAdminPrivateKey sets the key of the token administrator, required to
// mint tokens.
func (c *Contracts) SetAdminPrivateKey(hexPrivKey string) error {
	var err error
	c.adminKey, err = crypto.HexToECDSA(util.TrimHex(hexPrivKey))
	if err != nil {
		return fmt.Errorf("failed to parse admin private key: %w", err)
	}
	return nil
}

// SetGasLimit changes the gas limit used for every transaction.
func (c *Contracts) SetGasLimit(gas uint64) {
	c.gasLimit = gas
}

// AccountAddress returns the address of the account used to sign transactions.
func (c *Contracts) AccountAddress() common.Address {
	return c.address
}

// CallMethod sends a transaction calling the method of the named contract
// with the account key, waits until it is mined and returns the receipt with
// the shield events decoded. A reverted transaction is an error.
func (c *Contracts) CallMethod(ctx context.Context, name, method string, args ...any) (*types.TxReceipt, error) {
	return c.transact(ctx, c.privKey, name, method, args...)
}

// Call executes a read-only method of the named contract.
func (c *Contracts) Call(ctx context.Context, name, method string, args ...any) ([]any, error) {
	ct, err := c.contract(name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	var out []any
	if err := ct.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("failed to call %s.%s: %w", name, method, err)
	}
	return out, nil
}

func (c *Contracts) transact(ctx context.Context, key *ecdsa.PrivateKey, name, method string, args ...any) (*types.TxReceipt, error) {
	ct, err := c.contract(name)
	if err != nil {
		return nil, err
	}
	c.txLock.Lock()
	defer c.txLock.Unlock()
	txOpts, err := c.authTransactOpts(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create transact options: %w", err)
	}
	tx, err := ct.bound.Transact(txOpts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s.%s: %w", name, method, err)
	}
	log.Debugw("transaction sent", "contract", name, "method", method, "hash", tx.Hash().Hex())
	receipt, err := bind.WaitMined(ctx, c.cli, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for %s.%s: %w", name, method, err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	res, err := parseReceipt(ct, receipt)
	if err != nil {
		return nil, err
	}
	log.Infow("transaction mined",
		"contract", name,
		"method", method,
		"hash", res.TxHash.Hex(),
		"block", res.BlockNumber,
		"gasUsed", res.GasUsed)
	return res, nil
}

// authTransactOpts helper method creates the transact options with the given
// private key. It sets the nonce, gas tip cap, and gas limit. If something
// goes wrong creating the signer, getting the nonce, or getting the gas
// price, it returns an error.
func (c *Contracts) authTransactOpts(ctx context.Context, key *ecdsa.PrivateKey) (*bind.TransactOpts, error) {
	if key == nil {
		return nil, fmt.Errorf("no private key set")
	}
	bChainID := new(big.Int).SetUint64(c.ChainID)
	auth, err := bind.NewKeyedTransactorWithChainID(key, bChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	qctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	// set the nonce
	log.Debugw("getting nonce", "address", auth.From.Hex())
	nonce, err := c.cli.PendingNonceAt(qctx, auth.From)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	// set the gas tip cap
	if auth.GasTipCap, err = c.cli.SuggestGasTipCap(qctx); err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	auth.GasLimit = c.gasLimit
	auth.Context = ctx
	return auth, nil
}

func (c *Contracts) contract(name string) (*contract, error) {
	ct, ok := c.contracts[name]
	if !ok {
		return nil, fmt.Errorf("contract %s not found", name)
	}
	return ct, nil
}
