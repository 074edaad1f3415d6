package merkle

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrWeightOverflow is returned when a u128 field does not fit in 16 bytes.
var ErrWeightOverflow = errors.New("merkle: value does not fit in 128 bits")

// PublicKey is a compressed secp256k1 public key, as carried by a
// VerifierSetLeaf.
type PublicKey [33]byte

// CrossChainID names a message by its origin chain and per-chain id.
type CrossChainID struct {
	Chain string
	ID    string
}

// CommandID is keccak(chain || "-" || id), the literal UTF-8 concatenation
// with no length prefixing — distinct from the canonical leaf encoding below.
func (cc CrossChainID) CommandID() [32]byte {
	buf := make([]byte, 0, len(cc.Chain)+1+len(cc.ID))
	buf = append(buf, cc.Chain...)
	buf = append(buf, '-')
	buf = append(buf, cc.ID...)
	return crypto.Keccak256Hash(buf)
}

// Message is the payload carried by one leaf of a messages batch.
type Message struct {
	CCID                CrossChainID
	SourceAddress       string
	DestinationChain    string
	DestinationAddress  string
	PayloadHash         [32]byte
}

func putString(buf []byte, s string) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(s)))
	buf = append(buf, lenBytes[:]...)
	buf = append(buf, s...)
	return buf
}

func putUint128(buf []byte, v *big.Int) ([]byte, error) {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		return nil, ErrWeightOverflow
	}
	var word [16]byte
	v.FillBytes(word[:])
	return append(buf, word[:]...), nil
}

// encode serialises every field of Message, length-prefixing variable-width
// strings so that no field boundary is ambiguous.
func (m Message) encode() []byte {
	buf := make([]byte, 0, 128)
	buf = putString(buf, m.CCID.Chain)
	buf = putString(buf, m.CCID.ID)
	buf = putString(buf, m.SourceAddress)
	buf = putString(buf, m.DestinationChain)
	buf = putString(buf, m.DestinationAddress)
	buf = append(buf, m.PayloadHash[:]...)
	return buf
}

// Hash reproduces the stored IncomingMessage.message_hash; re-hashing a
// stored message must reproduce this value exactly.
func (m Message) Hash() [32]byte {
	return crypto.Keccak256Hash(m.encode())
}

// VerifierSetLeaf is one signer's entry in a verifier set's Merkle tree.
type VerifierSetLeaf struct {
	Nonce           uint64
	Quorum          *big.Int
	SignerPubkey    PublicKey
	SignerWeight    *big.Int
	Position        uint16
	SetSize         uint16
	DomainSeparator [32]byte
}

// Hash computes the canonical leaf hash: nonce || quorum || pubkey ||
// weight || position || set_size || domain_separator, keccak256'd.
func (l VerifierSetLeaf) Hash() ([32]byte, error) {
	buf := make([]byte, 0, 109)
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], l.Nonce)
	buf = append(buf, nonce[:]...)

	var err error
	buf, err = putUint128(buf, l.Quorum)
	if err != nil {
		return [32]byte{}, err
	}

	buf = append(buf, l.SignerPubkey[:]...)

	buf, err = putUint128(buf, l.SignerWeight)
	if err != nil {
		return [32]byte{}, err
	}

	var pos, size [2]byte
	binary.BigEndian.PutUint16(pos[:], l.Position)
	binary.BigEndian.PutUint16(size[:], l.SetSize)
	buf = append(buf, pos[:]...)
	buf = append(buf, size[:]...)
	buf = append(buf, l.DomainSeparator[:]...)

	return crypto.Keccak256Hash(buf), nil
}

// MessageLeaf is one message's entry in a payload's Merkle tree.
type MessageLeaf struct {
	Message         Message
	Position        uint16
	SetSize         uint16
	DomainSeparator [32]byte
}

// Hash computes the canonical leaf hash of a message entry.
func (l MessageLeaf) Hash() [32]byte {
	buf := l.Message.encode()
	var pos, size [2]byte
	binary.BigEndian.PutUint16(pos[:], l.Position)
	binary.BigEndian.PutUint16(size[:], l.SetSize)
	buf = append(buf, pos[:]...)
	buf = append(buf, size[:]...)
	buf = append(buf, l.DomainSeparator[:]...)
	return crypto.Keccak256Hash(buf)
}

// PayloadType distinguishes what a signed Merkle root authorises.
type PayloadType uint8

const (
	PayloadTypeApproveMessages PayloadType = 0
	PayloadTypeRotateSigners   PayloadType = 1
)

// SigningHash is the payload-type-prefixed preimage verifiers sign:
// keccak(type_byte || payload_merkle_root). Prefixing the type prevents a
// payload authorising one operation from being replayed as the other.
func SigningHash(payloadType PayloadType, payloadRoot [32]byte) [32]byte {
	buf := make([]byte, 0, 33)
	buf = append(buf, byte(payloadType))
	buf = append(buf, payloadRoot[:]...)
	return crypto.Keccak256Hash(buf)
}
