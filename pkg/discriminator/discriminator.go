// Package discriminator computes the eight-byte keccak256 prefixes that
// identify instructions and persisted record types on the wire.
package discriminator

import (
	"github.com/ethereum/go-ethereum/crypto"
)

const Size = 8

// Instruction returns keccak256("global:" + name)[:8].
func Instruction(name string) [Size]byte {
	return prefix("global:" + name)
}

// Account returns keccak256("account:" + typeName)[:8].
func Account(typeName string) [Size]byte {
	return prefix("account:" + typeName)
}

func prefix(s string) [Size]byte {
	h := crypto.Keccak256([]byte(s))
	var out [Size]byte
	copy(out[:], h[:Size])
	return out
}
