package governance

import (
	"encoding/binary"
	"errors"

	"github.com/axelar-network/solana-gateway-core/pkg/discriminator"
	"github.com/axelar-network/solana-gateway-core/pkg/store"
)

var (
	ErrAlreadyInitialized     = errors.New("governance: config already initialized")
	ErrNotInitialized         = errors.New("governance: config not initialized")
	ErrUntrustedSourceChain   = errors.New("governance: message did not originate from the configured governance chain")
	ErrUntrustedSourceAddress = errors.New("governance: message did not originate from the configured governance address")
)

var configKey = func() []byte {
	d := discriminator.Account("GovernanceConfig")
	return append(d[:], 0x00)
}()

func encodeConfig(c *GovernanceConfig) []byte {
	buf := append([]byte(nil), configKey...)

	var opLen [4]byte
	binary.BigEndian.PutUint32(opLen[:], uint32(len(c.Operator)))
	buf = append(buf, opLen[:]...)
	buf = append(buf, c.Operator...)

	buf = append(buf, c.GovernanceChainHash[:]...)
	buf = append(buf, c.GovernanceAddressHash[:]...)

	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], c.MinimumProposalETADelay)
	buf = append(buf, u64[:]...)

	buf = append(buf, c.Bump)
	return buf
}

func decodeConfig(raw []byte) (*GovernanceConfig, error) {
	prefixLen := len(configKey)
	if len(raw) < prefixLen+4 {
		return nil, errors.New("governance: truncated config record")
	}
	i := prefixLen

	opLen := binary.BigEndian.Uint32(raw[i : i+4])
	i += 4
	if len(raw) < i+int(opLen)+32+32+8+1 {
		return nil, errors.New("governance: truncated config record")
	}

	c := &GovernanceConfig{}
	c.Operator = string(raw[i : i+int(opLen)])
	i += int(opLen)

	copy(c.GovernanceChainHash[:], raw[i:i+32])
	i += 32
	copy(c.GovernanceAddressHash[:], raw[i:i+32])
	i += 32

	c.MinimumProposalETADelay = binary.BigEndian.Uint64(raw[i : i+8])
	i += 8
	c.Bump = raw[i]

	return c, nil
}

// Initialize creates the singleton GovernanceConfig. Fails if already
// initialized.
func Initialize(kv store.KV, operator string, governanceChainHash, governanceAddressHash [32]byte, minimumProposalETADelay uint64, bump uint8) (*GovernanceConfig, error) {
	if has, err := kv.Has(configKey); err != nil {
		return nil, err
	} else if has {
		return nil, ErrAlreadyInitialized
	}

	c := &GovernanceConfig{
		Operator:                operator,
		GovernanceChainHash:     governanceChainHash,
		GovernanceAddressHash:   governanceAddressHash,
		MinimumProposalETADelay: minimumProposalETADelay,
		Bump:                    bump,
	}
	if err := kv.Set(configKey, encodeConfig(c)); err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads the singleton GovernanceConfig.
func Get(kv store.KV) (*GovernanceConfig, error) {
	raw, err := kv.Get(configKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	return decodeConfig(raw)
}

// TransferOperatorship overwrites Governance's own operator field, distinct
// from the Gateway's.
func TransferOperatorship(kv store.KV, newOperator string) (*GovernanceConfig, error) {
	c, err := Get(kv)
	if err != nil {
		return nil, err
	}
	c.Operator = newOperator
	if err := kv.Set(configKey, encodeConfig(c)); err != nil {
		return nil, err
	}
	return c, nil
}

// AdmitMessage checks that an incoming GMP message originates from the
// configured Governance source chain and address.
func AdmitMessage(cfg *GovernanceConfig, sourceChainHash, sourceAddressHash [32]byte) bool {
	return Admit(cfg, sourceChainHash, sourceAddressHash) == nil
}

// Admit is the admission gate process_gmp runs before decoding a command:
// a command is only processed when it was delivered by a message whose
// cc_id.chain and source_address hash match the configured Governance
// source. It reports which half of the pair mismatched.
func Admit(cfg *GovernanceConfig, sourceChainHash, sourceAddressHash [32]byte) error {
	if cfg.GovernanceChainHash != sourceChainHash {
		return ErrUntrustedSourceChain
	}
	if cfg.GovernanceAddressHash != sourceAddressHash {
		return ErrUntrustedSourceAddress
	}
	return nil
}
