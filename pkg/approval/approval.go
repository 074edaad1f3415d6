// Package approval implements the approval recorder (C5) and the message
// validator (C6): creating single-use IncomingMessage records from a
// quorum-valid session, and letting a destination program consume one
// exactly once.
package approval

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/axelar-network/solana-gateway-core/pkg/discriminator"
	"github.com/axelar-network/solana-gateway-core/pkg/events"
	"github.com/axelar-network/solana-gateway-core/pkg/gatewayconfig"
	"github.com/axelar-network/solana-gateway-core/pkg/merkle"
	"github.com/axelar-network/solana-gateway-core/pkg/session"
	"github.com/axelar-network/solana-gateway-core/pkg/store"
)

var (
	ErrSessionNotValid        = errors.New("approval: session has not reached quorum")
	ErrInvalidMerkleProof     = errors.New("approval: invalid merkle proof")
	ErrDomainSeparatorMismatch = errors.New("approval: domain separator mismatch")
	ErrMessageAlreadyApproved = errors.New("approval: message already approved")
	ErrMessageNotApproved     = errors.New("approval: message not approved")
	ErrMessageAlreadyConsumed = errors.New("approval: message already consumed")
	ErrMessageHashMismatch    = errors.New("approval: message hash mismatch")
	ErrSigningPDAMismatch     = errors.New("approval: signing pda does not match the record bound at approval")
)

// Status is the lifecycle of an IncomingMessage.
type Status uint8

const (
	StatusApproved Status = iota
	StatusConsumed
)

var accountDiscriminator = discriminator.Account("IncomingMessage")

func key(commandID [32]byte) []byte {
	k := make([]byte, 0, len(accountDiscriminator)+32)
	k = append(k, accountDiscriminator[:]...)
	k = append(k, commandID[:]...)
	return k
}

// IncomingMessage is the single-use approval record keyed by command_id.
type IncomingMessage struct {
	Status         Status
	MessageHash    [32]byte
	PayloadHash    [32]byte
	SigningPDABump uint8
	Bump           uint8
	ApprovedAt     uint64
	ConsumedAt     uint64 // zero until consumed
}

func encode(m *IncomingMessage) []byte {
	buf := append([]byte(nil), accountDiscriminator[:]...)
	buf = append(buf, byte(m.Status))
	buf = append(buf, m.MessageHash[:]...)
	buf = append(buf, m.PayloadHash[:]...)
	buf = append(buf, m.SigningPDABump, m.Bump)
	var ts [16]byte
	binary.BigEndian.PutUint64(ts[0:8], m.ApprovedAt)
	binary.BigEndian.PutUint64(ts[8:16], m.ConsumedAt)
	buf = append(buf, ts[:]...)
	return buf
}

func decode(raw []byte) (*IncomingMessage, error) {
	prefixLen := len(accountDiscriminator)
	if len(raw) < prefixLen+1+32+32+2+16 {
		return nil, errors.New("approval: truncated record")
	}
	i := prefixLen
	m := &IncomingMessage{}
	m.Status = Status(raw[i])
	i++
	copy(m.MessageHash[:], raw[i:i+32])
	i += 32
	copy(m.PayloadHash[:], raw[i:i+32])
	i += 32
	m.SigningPDABump = raw[i]
	i++
	m.Bump = raw[i]
	i++
	m.ApprovedAt = binary.BigEndian.Uint64(raw[i : i+8])
	i += 8
	m.ConsumedAt = binary.BigEndian.Uint64(raw[i : i+8])
	return m, nil
}

// signingPDABump derives the deterministic bump for the destination-side
// validation PDA from (command_id, destination_address).
func signingPDABump(commandID [32]byte, destinationAddress string) uint8 {
	buf := make([]byte, 0, 32+len(destinationAddress))
	buf = append(buf, commandID[:]...)
	buf = append(buf, destinationAddress...)
	h := crypto.Keccak256(buf)
	return h[0]
}

// Approve creates an IncomingMessage from a quorum-valid session and a
// message proved against the session's payload root. The second attempt
// for the same command_id always fails: approval is idempotent only in
// the negative direction.
func Approve(
	kv store.KV,
	cfg *gatewayconfig.Config,
	payloadRoot [32]byte,
	signingVerifierSetHash [32]byte,
	leaf merkle.MessageLeaf,
	proof [][32]byte,
	bump uint8,
	now uint64,
) (*IncomingMessage, events.MessageApproved, error) {
	sess, err := session.Get(kv, payloadRoot, merkle.PayloadTypeApproveMessages, signingVerifierSetHash)
	if err != nil {
		return nil, events.MessageApproved{}, err
	}
	if !sess.IsValid() {
		return nil, events.MessageApproved{}, ErrSessionNotValid
	}

	leafHash := leaf.Hash()
	if !merkle.VerifyProof(leafHash, leaf.Position, proof, payloadRoot) {
		return nil, events.MessageApproved{}, ErrInvalidMerkleProof
	}

	if leaf.DomainSeparator != cfg.DomainSeparator {
		return nil, events.MessageApproved{}, ErrDomainSeparatorMismatch
	}

	commandID := leaf.Message.CCID.CommandID()
	k := key(commandID)
	if has, err := kv.Has(k); err != nil {
		return nil, events.MessageApproved{}, err
	} else if has {
		return nil, events.MessageApproved{}, ErrMessageAlreadyApproved
	}

	m := &IncomingMessage{
		Status:         StatusApproved,
		MessageHash:    leaf.Message.Hash(),
		PayloadHash:    leaf.Message.PayloadHash,
		SigningPDABump: signingPDABump(commandID, leaf.Message.DestinationAddress),
		Bump:           bump,
		ApprovedAt:     now,
	}

	if err := kv.Set(k, encode(m)); err != nil {
		return nil, events.MessageApproved{}, err
	}

	return m, events.MessageApproved{
		CommandID:   commandID,
		MessageHash: m.MessageHash,
		PayloadHash: m.PayloadHash,
	}, nil
}

// Get loads an IncomingMessage by command_id.
func Get(kv store.KV, commandID [32]byte) (*IncomingMessage, error) {
	raw, err := kv.Get(key(commandID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotApproved
		}
		return nil, err
	}
	return decode(raw)
}

// Validate implements the destination-program-facing message validator
// (C6): it re-derives the command_id, checks the signing PDA and message
// hash, and atomically flips Approved -> Consumed. Any later call for the
// same command_id fails.
func Validate(kv store.KV, message merkle.Message, callerSigningPDABump uint8, now uint64) (*IncomingMessage, events.MessageConsumed, error) {
	commandID := message.CCID.CommandID()
	k := key(commandID)

	raw, err := kv.Get(k)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, events.MessageConsumed{}, ErrMessageNotApproved
		}
		return nil, events.MessageConsumed{}, err
	}
	m, err := decode(raw)
	if err != nil {
		return nil, events.MessageConsumed{}, err
	}

	if message.Hash() != m.MessageHash {
		return nil, events.MessageConsumed{}, ErrMessageHashMismatch
	}
	if callerSigningPDABump != m.SigningPDABump {
		return nil, events.MessageConsumed{}, ErrSigningPDAMismatch
	}
	if m.Status == StatusConsumed {
		return nil, events.MessageConsumed{}, ErrMessageAlreadyConsumed
	}

	m.Status = StatusConsumed
	m.ConsumedAt = now

	if err := kv.Set(k, encode(m)); err != nil {
		return nil, events.MessageConsumed{}, err
	}

	return m, events.MessageConsumed{CommandID: commandID}, nil
}
