// Package gatewayconfig implements the Gateway's singleton configuration
// record (C3): the current epoch, retention window, rotation cooldown,
// operator, and domain separator.
package gatewayconfig

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/axelar-network/solana-gateway-core/pkg/discriminator"
	"github.com/axelar-network/solana-gateway-core/pkg/events"
	"github.com/axelar-network/solana-gateway-core/pkg/store"
)

var (
	ErrAlreadyInitialized               = errors.New("gatewayconfig: config already initialized")
	ErrNotInitialized                   = errors.New("gatewayconfig: config not initialized")
	ErrOperatorSignatureMissing         = errors.New("gatewayconfig: current operator signature required")
	ErrUpgradeAuthoritySignatureMissing = errors.New("gatewayconfig: program upgrade authority signature required")
)

var recordKey = func() []byte {
	d := discriminator.Account("GatewayConfig")
	return append(d[:], 0x00)
}()

// Config is the Gateway singleton. current_epoch is strictly monotonic;
// minimum_rotation_delay, previous_verifier_set_retention and
// domain_separator are fixed at initialization.
type Config struct {
	CurrentEpoch                 *big.Int
	PreviousVerifierSetRetention *big.Int
	MinimumRotationDelay         uint64
	LastRotationTimestamp        uint64
	Operator                     string
	DomainSeparator              [32]byte
	Bump                         uint8
}

func encode(c *Config) []byte {
	buf := append([]byte(nil), recordKey...)

	epochBytes := c.CurrentEpoch.FillBytes(make([]byte, 32))
	buf = append(buf, epochBytes...)

	retentionBytes := c.PreviousVerifierSetRetention.FillBytes(make([]byte, 32))
	buf = append(buf, retentionBytes...)

	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], c.MinimumRotationDelay)
	buf = append(buf, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], c.LastRotationTimestamp)
	buf = append(buf, u64[:]...)

	var opLen [4]byte
	binary.BigEndian.PutUint32(opLen[:], uint32(len(c.Operator)))
	buf = append(buf, opLen[:]...)
	buf = append(buf, c.Operator...)

	buf = append(buf, c.DomainSeparator[:]...)
	buf = append(buf, c.Bump)
	return buf
}

func decode(raw []byte) (*Config, error) {
	prefixLen := len(recordKey)
	if len(raw) < prefixLen+32+32+8+8+4 {
		return nil, errors.New("gatewayconfig: truncated record")
	}
	i := prefixLen

	c := &Config{}
	c.CurrentEpoch = new(big.Int).SetBytes(raw[i : i+32])
	i += 32
	c.PreviousVerifierSetRetention = new(big.Int).SetBytes(raw[i : i+32])
	i += 32
	c.MinimumRotationDelay = binary.BigEndian.Uint64(raw[i : i+8])
	i += 8
	c.LastRotationTimestamp = binary.BigEndian.Uint64(raw[i : i+8])
	i += 8

	opLen := binary.BigEndian.Uint32(raw[i : i+4])
	i += 4
	if len(raw) < i+int(opLen)+32+1 {
		return nil, errors.New("gatewayconfig: truncated record")
	}
	c.Operator = string(raw[i : i+int(opLen)])
	i += int(opLen)

	copy(c.DomainSeparator[:], raw[i:i+32])
	i += 32
	c.Bump = raw[i]

	return c, nil
}

// Initialize creates the singleton config. Fails if already initialized.
func Initialize(kv store.KV, domainSeparator [32]byte, minimumRotationDelay uint64, operator string, previousRetention *big.Int, bump uint8) (*Config, error) {
	if has, err := kv.Has(recordKey); err != nil {
		return nil, err
	} else if has {
		return nil, ErrAlreadyInitialized
	}

	c := &Config{
		CurrentEpoch:                 new(big.Int),
		PreviousVerifierSetRetention: new(big.Int).Set(previousRetention),
		MinimumRotationDelay:         minimumRotationDelay,
		LastRotationTimestamp:        0,
		Operator:                     operator,
		DomainSeparator:              domainSeparator,
		Bump:                         bump,
	}

	if err := kv.Set(recordKey, encode(c)); err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads the singleton config.
func Get(kv store.KV) (*Config, error) {
	raw, err := kv.Get(recordKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	return decode(raw)
}

// TransferOperatorship overwrites the operator field. Both the current
// operator and the program upgrade authority must have signed the request;
// either missing signature fails the call before the record is touched.
func TransferOperatorship(kv store.KV, newOperator string, operatorSignaturePresent, upgradeAuthoritySignaturePresent bool) (*Config, error) {
	if !operatorSignaturePresent {
		return nil, ErrOperatorSignatureMissing
	}
	if !upgradeAuthoritySignaturePresent {
		return nil, ErrUpgradeAuthoritySignatureMissing
	}

	c, err := Get(kv)
	if err != nil {
		return nil, err
	}
	c.Operator = newOperator
	if err := kv.Set(recordKey, encode(c)); err != nil {
		return nil, err
	}
	return c, nil
}

// CallContract implements the call_contract instruction: it carries no
// persisted state of its own and exists purely to emit a ContractCall
// event authorising a message to destinationContractAddress on
// destinationChain. Authentication (a direct signer or a caller-program
// signing PDA derived from signingPDABump) happens upstream of this
// function, at the same layer that recovers the caller's identity.
func CallContract(destinationChain, destinationContractAddress string, payload []byte) events.ContractCall {
	return events.ContractCall{
		DestinationChain:           destinationChain,
		DestinationContractAddress: destinationContractAddress,
		PayloadHash:                crypto.Keccak256Hash(payload),
	}
}

// ApplyRotation increments current_epoch by exactly one and records the
// rotation timestamp. Called by pkg/rotation after its own policy checks
// pass; gatewayconfig itself enforces no rotation policy.
func ApplyRotation(kv store.KV, now uint64) (*Config, error) {
	c, err := Get(kv)
	if err != nil {
		return nil, err
	}
	c.CurrentEpoch = new(big.Int).Add(c.CurrentEpoch, big.NewInt(1))
	c.LastRotationTimestamp = now
	if err := kv.Set(recordKey, encode(c)); err != nil {
		return nil, err
	}
	return c, nil
}
