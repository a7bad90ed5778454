package web3

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-escrow/types"
)

func testShield(c *qt.C) *contract {
	a, err := DefaultABI(EscrowShieldContract)
	c.Assert(err, qt.IsNil)
	return &contract{
		name:    EscrowShieldContract,
		address: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		abi:     a,
	}
}

func eventLog(c *qt.C, ct *contract, event string, args ...any) *gethtypes.Log {
	ev := ct.abi.Events[event]
	data, err := ev.Inputs.Pack(args...)
	c.Assert(err, qt.IsNil)
	return &gethtypes.Log{
		Address:     ct.address,
		Topics:      []common.Hash{ev.ID},
		Data:        data,
		BlockNumber: 7,
		TxHash:      common.HexToHash("0x01"),
	}
}

func TestParseReceipt(t *testing.T) {
	c := qt.New(t)
	ct := testShield(c)

	leaves := eventLog(c, ct, NewLeavesEvent, big.NewInt(4), []*big.Int{big.NewInt(11), big.NewInt(12)})
	enc := eventLog(c, ct, EncryptedDataEvent,
		[]*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)},
		[2]*big.Int{big.NewInt(5), big.NewInt(6)})
	// same event from another contract is ignored
	foreign := eventLog(c, ct, NewLeavesEvent, big.NewInt(99), []*big.Int{big.NewInt(1)})
	foreign.Address = common.HexToAddress("0xbb")

	r, err := parseReceipt(ct, &gethtypes.Receipt{
		TxHash:      common.HexToHash("0x01"),
		BlockNumber: big.NewInt(7),
		GasUsed:     21000,
		Logs:        []*gethtypes.Log{foreign, leaves, enc},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(r.BlockNumber, qt.Equals, uint64(7))
	c.Assert(r.GasUsed, qt.Equals, uint64(21000))
	c.Assert(r.NewLeaves, qt.IsNotNil)
	c.Assert(r.NewLeaves.MinLeafIndex, qt.Equals, uint64(4))
	c.Assert(r.NewLeaves.LeafValues, qt.DeepEquals, types.Fields{types.FieldFromUint64(11), types.FieldFromUint64(12)})
	c.Assert(r.EncryptedData, qt.HasLen, 1)
	c.Assert(r.EncryptedData[0].CipherText, qt.HasLen, 3)
	c.Assert(r.EncryptedData[0].EphPublicKey[1], qt.Equals, types.FieldFromUint64(6))
	c.Assert(r.EncryptedData[0].BlockNumber, qt.Equals, uint64(7))
}

func TestParseReceiptWithoutEvents(t *testing.T) {
	c := qt.New(t)
	r, err := parseReceipt(testShield(c), &gethtypes.Receipt{BlockNumber: big.NewInt(1)})
	c.Assert(err, qt.IsNil)
	c.Assert(r.NewLeaves, qt.IsNil)
	c.Assert(r.EncryptedData, qt.HasLen, 0)
}

func TestLoadArtifactABI(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "ERC20.json")
	c.Assert(os.WriteFile(path, []byte(`{"contractName":"ERC20","abi":`+erc20ABI+`}`), 0o644), qt.IsNil)
	a, err := LoadArtifactABI(path)
	c.Assert(err, qt.IsNil)
	_, ok := a.Methods["balanceOf"]
	c.Assert(ok, qt.IsTrue)

	empty := filepath.Join(dir, "empty.json")
	c.Assert(os.WriteFile(empty, []byte(`{"contractName":"X"}`), 0o644), qt.IsNil)
	_, err = LoadArtifactABI(empty)
	c.Assert(err, qt.ErrorMatches, ".*has no abi")

	_, err = DefaultABI("Unknown")
	c.Assert(err, qt.IsNotNil)
}

func TestSingleBigInt(t *testing.T) {
	c := qt.New(t)
	v, err := singleBigInt([]any{big.NewInt(3)})
	c.Assert(err, qt.IsNil)
	c.Assert(v.Int64(), qt.Equals, int64(3))
	_, err = singleBigInt([]any{"x"})
	c.Assert(err, qt.IsNotNil)
	_, err = singleBigInt(nil)
	c.Assert(err, qt.IsNotNil)
}
