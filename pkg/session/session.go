// Package session implements the incremental signature-verification
// session (C4): an on-chain-shaped accumulator that admits one signature
// at a time, each proved to belong to a specific verifier set via a
// Merkle inclusion proof, and becomes valid once accumulated weight
// reaches the set's quorum.
package session

import (
	"errors"
	"math/big"

	"github.com/axelar-network/solana-gateway-core/pkg/discriminator"
	"github.com/axelar-network/solana-gateway-core/pkg/events"
	"github.com/axelar-network/solana-gateway-core/pkg/gatewayconfig"
	"github.com/axelar-network/solana-gateway-core/pkg/merkle"
	"github.com/axelar-network/solana-gateway-core/pkg/sigverify"
	"github.com/axelar-network/solana-gateway-core/pkg/store"
	"github.com/axelar-network/solana-gateway-core/pkg/verifierset"
)

var (
	ErrSessionAlreadyExists  = errors.New("session: already exists")
	ErrSessionNotFound       = errors.New("session: not found")
	ErrPayloadTypeMismatch   = errors.New("session: payload type mismatch")
	ErrInvalidMerkleProof    = errors.New("session: invalid merkle proof")
	ErrDomainSeparatorMismatch = errors.New("session: domain separator mismatch")
	ErrSlotAlreadyVerified   = errors.New("session: signer slot already verified")
	ErrInvalidSignature      = errors.New("session: invalid signature")
	ErrArithmeticOverflow    = errors.New("session: accumulated weight overflow")
	ErrSessionNotValid       = errors.New("session: quorum not reached")
)

// maxU128 is the saturating ceiling for accumulated_threshold.
var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

var accountDiscriminator = discriminator.Account("SignatureVerificationSessionData")

// identityKey builds the store key for the triple
// (payload_merkle_root, payload_type, signing_verifier_set_hash).
func identityKey(payloadRoot [32]byte, payloadType merkle.PayloadType, signingVerifierSetHash [32]byte) []byte {
	k := make([]byte, 0, len(accountDiscriminator)+32+1+32)
	k = append(k, accountDiscriminator[:]...)
	k = append(k, payloadRoot[:]...)
	k = append(k, byte(payloadType))
	k = append(k, signingVerifierSetHash[:]...)
	return k
}

// Verification is the mutable accumulator inside a session.
type Verification struct {
	AccumulatedThreshold *big.Int
	Quorum               *big.Int // meaningless until QuorumSet; taken from the leaf of every successful submission
	QuorumSet            bool
	SignatureSlots       [32]byte // 256-bit bitmap
	SigningVerifierSetHash [32]byte
}

func (v *Verification) bitSet(pos uint16) bool {
	return v.SignatureSlots[pos/8]&(1<<(pos%8)) != 0
}

func (v *Verification) setBit(pos uint16) {
	v.SignatureSlots[pos/8] |= 1 << (pos % 8)
}

// Popcount returns the number of set bits, i.e. the number of distinct
// successful verify_signature calls recorded.
func (v *Verification) Popcount() int {
	n := 0
	for _, b := range v.SignatureSlots {
		for b != 0 {
			n += int(b & 1)
			b >>= 1
		}
	}
	return n
}

// Session is the on-chain-shaped record for one payload's signing round.
type Session struct {
	PayloadMerkleRoot [32]byte
	PayloadType       merkle.PayloadType
	Verification      Verification
	Bump              uint8
}

// IsValid reports whether accumulated_threshold has reached quorum. A
// session with no successful verify_signature call yet has no quorum
// captured and is never valid, regardless of what AccumulatedThreshold
// happens to hold. Once true it stays true, since threshold is
// monotonically non-decreasing.
func (s *Session) IsValid() bool {
	if !s.Verification.QuorumSet {
		return false
	}
	return s.Verification.AccumulatedThreshold.Cmp(s.Verification.Quorum) >= 0
}

func encode(s *Session) []byte {
	buf := append([]byte(nil), accountDiscriminator[:]...)
	buf = append(buf, s.PayloadMerkleRoot[:]...)
	buf = append(buf, byte(s.PayloadType))
	buf = append(buf, s.Verification.AccumulatedThreshold.FillBytes(make([]byte, 32))...)

	quorum := s.Verification.Quorum
	if quorum == nil {
		quorum = new(big.Int)
	}
	buf = append(buf, quorum.FillBytes(make([]byte, 32))...)
	if s.Verification.QuorumSet {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, s.Verification.SignatureSlots[:]...)
	buf = append(buf, s.Verification.SigningVerifierSetHash[:]...)
	buf = append(buf, s.Bump)
	return buf
}

func decode(raw []byte) (*Session, error) {
	prefixLen := len(accountDiscriminator)
	const fixed = 32 + 1 + 32 + 32 + 1 + 32 + 32 + 1
	if len(raw) < prefixLen+fixed {
		return nil, errors.New("session: truncated record")
	}
	i := prefixLen
	s := &Session{}
	copy(s.PayloadMerkleRoot[:], raw[i:i+32])
	i += 32
	s.PayloadType = merkle.PayloadType(raw[i])
	i++
	s.Verification.AccumulatedThreshold = new(big.Int).SetBytes(raw[i : i+32])
	i += 32
	s.Verification.Quorum = new(big.Int).SetBytes(raw[i : i+32])
	i += 32
	s.Verification.QuorumSet = raw[i] != 0
	i++
	copy(s.Verification.SignatureSlots[:], raw[i:i+32])
	i += 32
	copy(s.Verification.SigningVerifierSetHash[:], raw[i:i+32])
	i += 32
	s.Bump = raw[i]
	return s, nil
}

func load(kv store.KV, payloadRoot [32]byte, payloadType merkle.PayloadType, signingVerifierSetHash [32]byte) (*Session, []byte, error) {
	k := identityKey(payloadRoot, payloadType, signingVerifierSetHash)
	raw, err := kv.Get(k)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, k, ErrSessionNotFound
		}
		return nil, k, err
	}
	s, err := decode(raw)
	return s, k, err
}

// Init creates a new, empty session identified by
// (payloadRoot, payloadType, signingVerifierSetHash). Reject is idempotent:
// a duplicate init_session call fails without mutating the existing
// session.
func Init(kv store.KV, payloadRoot [32]byte, payloadType merkle.PayloadType, signingVerifierSetHash [32]byte, bump uint8) (*Session, events.SessionOpened, error) {
	k := identityKey(payloadRoot, payloadType, signingVerifierSetHash)
	if has, err := kv.Has(k); err != nil {
		return nil, events.SessionOpened{}, err
	} else if has {
		return nil, events.SessionOpened{}, ErrSessionAlreadyExists
	}

	s := &Session{
		PayloadMerkleRoot: payloadRoot,
		PayloadType:       payloadType,
		Verification: Verification{
			AccumulatedThreshold:   new(big.Int),
			Quorum:                 new(big.Int),
			SigningVerifierSetHash: signingVerifierSetHash,
		},
		Bump: bump,
	}

	if err := kv.Set(k, encode(s)); err != nil {
		return nil, events.SessionOpened{}, err
	}

	ev := events.SessionOpened{
		PayloadMerkleRoot:  payloadRoot,
		PayloadType:        uint8(payloadType),
		SigningVerifierSet: signingVerifierSetHash,
	}
	return s, ev, nil
}

// Get loads a session by its identity triple.
func Get(kv store.KV, payloadRoot [32]byte, payloadType merkle.PayloadType, signingVerifierSetHash [32]byte) (*Session, error) {
	s, _, err := load(kv, payloadRoot, payloadType, signingVerifierSetHash)
	return s, err
}

// VerifySignature executes the six-point verify_signature contract against
// the session identified by (payloadRoot, payloadType,
// signingVerifierSetHash). Every failing precondition is a distinct error
// and leaves the session unmutated.
func VerifySignature(
	kv store.KV,
	cfg *gatewayconfig.Config,
	payloadRoot [32]byte,
	payloadType merkle.PayloadType,
	signingVerifierSetHash [32]byte,
	leaf merkle.VerifierSetLeaf,
	merkleProof [][32]byte,
	signature [sigverify.SignatureSize]byte,
) (*Session, events.Event, error) {
	s, k, err := load(kv, payloadRoot, payloadType, signingVerifierSetHash)
	if err != nil {
		return nil, nil, err
	}

	// 1. payload_type matches the session's.
	if s.PayloadType != payloadType {
		return nil, nil, ErrPayloadTypeMismatch
	}

	// 2. the Merkle proof proves leaf belongs to the signing verifier set.
	leafHash, err := leaf.Hash()
	if err != nil {
		return nil, nil, err
	}
	if !merkle.VerifyProof(leafHash, leaf.Position, merkleProof, s.Verification.SigningVerifierSetHash) {
		return nil, nil, ErrInvalidMerkleProof
	}

	// 3. leaf.domain_separator matches the Gateway's domain_separator.
	if leaf.DomainSeparator != cfg.DomainSeparator {
		return nil, nil, ErrDomainSeparatorMismatch
	}

	// 4. the tracker exists and satisfies the retention policy.
	tracker, err := verifierset.Lookup(kv, s.Verification.SigningVerifierSetHash)
	if err != nil {
		return nil, nil, err
	}
	if err := verifierset.AcceptedForSigning(tracker, cfg.CurrentEpoch, cfg.PreviousVerifierSetRetention); err != nil {
		return nil, nil, err
	}

	// 5. the bit at leaf.position is zero.
	if s.Verification.bitSet(leaf.Position) {
		return nil, nil, ErrSlotAlreadyVerified
	}

	// 6. the signature recovers to leaf.signer_pubkey over
	// keccak(payload_type || payload_root).
	digest := merkle.SigningHash(payloadType, payloadRoot)
	ok, err := sigverify.Verify(digest, signature, leaf.SignerPubkey)
	if err != nil {
		return nil, nil, ErrInvalidSignature
	}
	if !ok {
		return nil, nil, ErrInvalidSignature
	}

	wasValid := s.IsValid()

	s.Verification.setBit(leaf.Position)
	s.Verification.Quorum = new(big.Int).Set(leaf.Quorum)
	s.Verification.QuorumSet = true

	newThreshold := new(big.Int).Add(s.Verification.AccumulatedThreshold, leaf.SignerWeight)
	if newThreshold.Cmp(maxU128) > 0 {
		return nil, nil, ErrArithmeticOverflow
	}
	s.Verification.AccumulatedThreshold = newThreshold

	if err := kv.Set(k, encode(s)); err != nil {
		return nil, nil, err
	}

	if !wasValid && s.IsValid() {
		return s, events.SessionQuorumReached{
			PayloadMerkleRoot: payloadRoot,
			AccumulatedWeight: new(big.Int).Set(s.Verification.AccumulatedThreshold),
		}, nil
	}

	return s, events.SignatureVerified{
		PayloadMerkleRoot: payloadRoot,
		SignerPosition:    leaf.Position,
		AccumulatedWeight: new(big.Int).Set(s.Verification.AccumulatedThreshold),
	}, nil
}
