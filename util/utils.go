package util

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/vocdoni/zk-escrow/types"
)

// SaltSize is the number of random bytes used for salts and secret keys.
// 31 bytes always fit in the BN254 scalar field without reduction.
const SaltSize = 31

// RandomBytes generates a random byte slice of length n.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	return b
}

// RandomHex generates a random hex string of length n.
func RandomHex(n int) string {
	return fmt.Sprintf("%x", RandomBytes(n))
}

// RandomInt generates a random integer between min and max.
func RandomInt(min, max int) int {
	num, err := rand.Int(rand.Reader, big.NewInt(int64(max-min)))
	if err != nil {
		panic(err)
	}
	return int(num.Int64()) + min
}

// RandomSalt returns a fresh random field element of SaltSize bytes.
func RandomSalt() types.Field {
	return types.FieldFromBytes(RandomBytes(SaltSize))
}

// TrimHex trims the '0x' prefix from a hex string.
func TrimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// BigToFF function returns the finite field representation of the big.Int
// provided. It uses Euclidean Modulus and the BN254 curve scalar field to
// represent the provided number.
func BigToFF(iv *big.Int) *big.Int {
	return types.NewField(iv).BigInt()
}
