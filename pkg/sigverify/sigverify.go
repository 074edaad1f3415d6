// Package sigverify recovers and checks secp256k1 recoverable signatures
// against a Merkle-proven signer public key.
package sigverify

import (
	"errors"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/axelar-network/solana-gateway-core/pkg/merkle"
)

// ErrInvalidSignature covers malformed signatures and recovery failures.
var ErrInvalidSignature = errors.New("sigverify: invalid signature")

// ErrInvalidRecoveryID is returned when the trailing recovery byte is not
// 0 or 1. The wire contract pins to {0,1}; a legacy +27 offset is rejected
// rather than silently normalised.
var ErrInvalidRecoveryID = errors.New("sigverify: recovery id must be 0 or 1")

// SignatureSize is the wire length of a verifier signature: 64-byte
// compact (r||s) plus a 1-byte recovery id.
const SignatureSize = 65

// Recover recovers the compressed public key that produced sig over digest.
// sig must be exactly SignatureSize bytes with a recovery id in {0,1}.
func Recover(digest [32]byte, sig [SignatureSize]byte) (merkle.PublicKey, error) {
	recid := sig[64]
	if recid != 0 && recid != 1 {
		return merkle.PublicKey{}, ErrInvalidRecoveryID
	}

	pub, err := crypto.SigToPub(digest[:], sig[:])
	if err != nil {
		return merkle.PublicKey{}, ErrInvalidSignature
	}

	compressed := crypto.CompressPubkey(pub)
	var out merkle.PublicKey
	copy(out[:], compressed)
	return out, nil
}

// Verify reports whether sig over digest recovers to expected.
func Verify(digest [32]byte, sig [SignatureSize]byte, expected merkle.PublicKey) (bool, error) {
	recovered, err := Recover(digest, sig)
	if err != nil {
		return false, err
	}
	return recovered == expected, nil
}
