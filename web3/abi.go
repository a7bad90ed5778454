package web3

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	// EscrowShieldContract is the name of the shield contract, used to
	// address it in CallMethod and to name its Merkle tree in Timber.
	EscrowShieldContract = "EscrowShield"
	// ERC20Contract is the name of the token contract wrapped by the shield.
	ERC20Contract = "ERC20"

	// NewLeavesEvent is emitted by the shield when commitments are appended.
	NewLeavesEvent = "NewLeaves"
	// EncryptedDataEvent carries the encrypted preimage of a transferred
	// commitment.
	EncryptedDataEvent = "EncryptedData"
)

// escrowShieldABI holds the subset of the shield interface used by the
// engine.
const escrowShieldABI = `[
  {"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[
    {"name":"amount","type":"uint256"},
    {"name":"newCommitments","type":"uint256[]"},
    {"name":"proof","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[
    {"name":"nullifierRoot","type":"uint256"},
    {"name":"latestNullifierRoot","type":"uint256"},
    {"name":"newNullifiers","type":"uint256[]"},
    {"name":"commitmentRoot","type":"uint256"},
    {"name":"newCommitments","type":"uint256[]"},
    {"name":"cipherText","type":"uint256[][]"},
    {"name":"ephKeys","type":"uint256[2][]"},
    {"name":"proof","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[
    {"name":"amount","type":"uint256"},
    {"name":"nullifierRoot","type":"uint256"},
    {"name":"latestNullifierRoot","type":"uint256"},
    {"name":"newNullifiers","type":"uint256[]"},
    {"name":"commitmentRoot","type":"uint256"},
    {"name":"newCommitments","type":"uint256[]"},
    {"name":"proof","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"joinCommitments","stateMutability":"nonpayable","inputs":[
    {"name":"nullifierRoot","type":"uint256"},
    {"name":"latestNullifierRoot","type":"uint256"},
    {"name":"newNullifiers","type":"uint256[]"},
    {"name":"commitmentRoot","type":"uint256"},
    {"name":"newCommitments","type":"uint256[]"},
    {"name":"proof","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"registerZKPPublicKey","stateMutability":"nonpayable","inputs":[
    {"name":"pk","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"zkpPublicKeys","stateMutability":"view","inputs":[
    {"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"NewLeaves","anonymous":false,"inputs":[
    {"name":"minLeafIndex","type":"uint256","indexed":false},
    {"name":"leafValues","type":"uint256[]","indexed":false}]},
  {"type":"event","name":"EncryptedData","anonymous":false,"inputs":[
    {"name":"cipherText","type":"uint256[]","indexed":false},
    {"name":"ephPublicKey","type":"uint256[2]","indexed":false}]}
]`

const erc20ABI = `[
  {"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[
    {"name":"to","type":"address"},
    {"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[
    {"name":"spender","type":"address"},
    {"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
    {"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"Transfer","anonymous":false,"inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"value","type":"uint256","indexed":false}]},
  {"type":"event","name":"Approval","anonymous":false,"inputs":[
    {"name":"owner","type":"address","indexed":true},
    {"name":"spender","type":"address","indexed":true},
    {"name":"value","type":"uint256","indexed":false}]}
]`

// DefaultABI returns the built-in interface of the named contract.
func DefaultABI(name string) (abi.ABI, error) {
	switch name {
	case EscrowShieldContract:
		return abi.JSON(strings.NewReader(escrowShieldABI))
	case ERC20Contract:
		return abi.JSON(strings.NewReader(erc20ABI))
	default:
		return abi.ABI{}, fmt.Errorf("no built-in abi for contract %s", name)
	}
}

// LoadArtifactABI reads the abi of a contract from a compiler artifact, a
// JSON document with the interface under the "abi" key.
func LoadArtifactABI(path string) (abi.ABI, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read contract artifact: %w", err)
	}
	artifact := struct {
		ABI json.RawMessage `json:"abi"`
	}{}
	if err := json.Unmarshal(content, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("decode contract artifact: %w", err)
	}
	if len(artifact.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("contract artifact %s has no abi", path)
	}
	return abi.JSON(strings.NewReader(string(artifact.ABI)))
}
