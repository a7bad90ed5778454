package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-escrow/crypto/keys"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/storage"
	"github.com/vocdoni/zk-escrow/types"
)

// KeyRegistry is the key registry of the shield contract.
type KeyRegistry interface {
	RegisterKey(ctx context.Context, publicKey types.Field) (*types.TxReceipt, error)
	ZKPPublicKey(ctx context.Context, account common.Address) (types.Field, error)
}

// BootstrapKeys loads the owner key pair from stg, generating it on first
// run, and makes sure the shield contract maps account to its public key so
// that transfers to account can be encrypted for it.
func BootstrapKeys(ctx context.Context, stg *storage.Storage, registry KeyRegistry, account common.Address) (*keys.KeyPair, error) {
	kp, generated, err := stg.LoadOrGenerateKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to load keys: %w", err)
	}
	registered, err := registry.ZKPPublicKey(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to get registered key: %w", err)
	}
	if !generated && registered == kp.PublicKey {
		log.Debugw("owner key already registered", "account", account.Hex())
		return kp, nil
	}
	receipt, err := registry.RegisterKey(ctx, kp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to register key: %w", err)
	}
	log.Infow("registered owner key",
		"account", account.Hex(),
		"publicKey", kp.PublicKey.Hex(),
		"tx", receipt.TxHash.Hex())
	return kp, nil
}
