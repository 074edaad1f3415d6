package governance

import (
	"errors"
	"math/big"

	"github.com/axelar-network/solana-gateway-core/pkg/discriminator"
	"github.com/axelar-network/solana-gateway-core/pkg/events"
	"github.com/axelar-network/solana-gateway-core/pkg/store"
)

var (
	ErrProposalAlreadyExists         = errors.New("governance: proposal already exists")
	ErrProposalNotFound              = errors.New("governance: proposal not found")
	ErrOperatorProposalAlreadyExists = errors.New("governance: operator approval already exists")
	ErrOperatorProposalNotFound      = errors.New("governance: operator approval not found")
	ErrTimelockNotElapsed            = errors.New("governance: timelock has not elapsed")
	ErrOperatorOnly                  = errors.New("governance: operator signature required")
)

var (
	executableDiscriminator = discriminator.Account("ExecutableProposal")
	operatorDiscriminator   = discriminator.Account("OperatorProposal")
)

func executableKey(hash [32]byte) []byte {
	k := make([]byte, 0, len(executableDiscriminator)+32)
	k = append(k, executableDiscriminator[:]...)
	return append(k, hash[:]...)
}

func operatorKey(hash [32]byte) []byte {
	k := make([]byte, 0, len(operatorDiscriminator)+32)
	k = append(k, operatorDiscriminator[:]...)
	return append(k, hash[:]...)
}

func encodeExecutable(p *ExecutableProposal) []byte {
	buf := append([]byte(nil), executableDiscriminator[:]...)
	buf = append(buf, p.Hash[:]...)
	etaBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		etaBytes[7-i] = byte(p.ETA >> (8 * i))
	}
	buf = append(buf, etaBytes...)
	buf = append(buf, p.Bump)
	return buf
}

func decodeExecutable(raw []byte) (*ExecutableProposal, error) {
	prefixLen := len(executableDiscriminator)
	if len(raw) < prefixLen+32+8+1 {
		return nil, errors.New("governance: truncated proposal record")
	}
	i := prefixLen
	p := &ExecutableProposal{}
	copy(p.Hash[:], raw[i:i+32])
	i += 32
	var eta uint64
	for j := 0; j < 8; j++ {
		eta = eta<<8 | uint64(raw[i+j])
	}
	p.ETA = eta
	i += 8
	p.Bump = raw[i]
	return p, nil
}

func encodeOperator(p *OperatorProposal) []byte {
	buf := append([]byte(nil), operatorDiscriminator[:]...)
	buf = append(buf, p.ProposalHash[:]...)
	buf = append(buf, p.Bump)
	return buf
}

func decodeOperator(raw []byte) (*OperatorProposal, error) {
	prefixLen := len(operatorDiscriminator)
	if len(raw) < prefixLen+32+1 {
		return nil, errors.New("governance: truncated operator proposal record")
	}
	i := prefixLen
	p := &OperatorProposal{}
	copy(p.ProposalHash[:], raw[i:i+32])
	i += 32
	p.Bump = raw[i]
	return p, nil
}

func getExecutable(kv store.KV, hash [32]byte) (*ExecutableProposal, error) {
	raw, err := kv.Get(executableKey(hash))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProposalNotFound
		}
		return nil, err
	}
	return decodeExecutable(raw)
}

func getOperator(kv store.KV, hash [32]byte) (*OperatorProposal, error) {
	raw, err := kv.Get(operatorKey(hash))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOperatorProposalNotFound
		}
		return nil, err
	}
	return decodeOperator(raw)
}

func proposalHashOf(cmd CommandPayload) [32]byte {
	return ProposalHash(cmd.Target, cmd.CallData, cmd.NativeValue)
}

// Schedule creates a time-locked ExecutableProposal. eta_final is the
// later of the caller-supplied eta and now + minimum_proposal_eta_delay.
func Schedule(kv store.KV, cfg *GovernanceConfig, cmd CommandPayload, now uint64, bump uint8) (*ExecutableProposal, events.ProposalScheduled, error) {
	hash := proposalHashOf(cmd)
	k := executableKey(hash)
	if has, err := kv.Has(k); err != nil {
		return nil, events.ProposalScheduled{}, err
	} else if has {
		return nil, events.ProposalScheduled{}, ErrProposalAlreadyExists
	}

	etaFinal := now + cfg.MinimumProposalETADelay
	if cmd.ETA != nil && cmd.ETA.IsUint64() && cmd.ETA.Uint64() > etaFinal {
		etaFinal = cmd.ETA.Uint64()
	}

	p := &ExecutableProposal{Hash: hash, ETA: etaFinal, Bump: bump}
	if err := kv.Set(k, encodeExecutable(p)); err != nil {
		return nil, events.ProposalScheduled{}, err
	}

	return p, events.ProposalScheduled{Hash: hash, ETA: etaFinal}, nil
}

// Cancel removes the Scheduled record (and any Operator approval) for cmd.
func Cancel(kv store.KV, cmd CommandPayload) (events.ProposalCancelled, error) {
	hash := proposalHashOf(cmd)
	if _, err := getExecutable(kv, hash); err != nil {
		return events.ProposalCancelled{}, err
	}

	if err := kv.Delete(executableKey(hash)); err != nil {
		return events.ProposalCancelled{}, err
	}
	_ = kv.Delete(operatorKey(hash))

	return events.ProposalCancelled{Hash: hash}, nil
}

// ApproveOperator creates an OperatorProposal for an already-Scheduled
// proposal.
func ApproveOperator(kv store.KV, cmd CommandPayload, bump uint8) (*OperatorProposal, events.ProposalOperatorApproved, error) {
	hash := proposalHashOf(cmd)
	if _, err := getExecutable(kv, hash); err != nil {
		return nil, events.ProposalOperatorApproved{}, err
	}

	k := operatorKey(hash)
	if has, err := kv.Has(k); err != nil {
		return nil, events.ProposalOperatorApproved{}, err
	} else if has {
		return nil, events.ProposalOperatorApproved{}, ErrOperatorProposalAlreadyExists
	}

	p := &OperatorProposal{ProposalHash: hash, Bump: bump}
	if err := kv.Set(k, encodeOperator(p)); err != nil {
		return nil, events.ProposalOperatorApproved{}, err
	}

	return p, events.ProposalOperatorApproved{Hash: hash}, nil
}

// CancelOperatorApproval removes the Operator record, leaving Scheduled
// intact.
func CancelOperatorApproval(kv store.KV, cmd CommandPayload) (events.ProposalOperatorApprovalCancelled, error) {
	hash := proposalHashOf(cmd)
	if _, err := getOperator(kv, hash); err != nil {
		return events.ProposalOperatorApprovalCancelled{}, err
	}
	if err := kv.Delete(operatorKey(hash)); err != nil {
		return events.ProposalOperatorApprovalCancelled{}, err
	}
	return events.ProposalOperatorApprovalCancelled{Hash: hash}, nil
}

// Invoker executes the instruction encoded by a proposal's call data.
type Invoker func(target [32]byte, callData CallData, nativeValue *big.Int) error

// Execute is permissionless. It requires now >= eta. On success the
// Scheduled record is deleted; on failure state is unchanged.
func Execute(kv store.KV, cmd CommandPayload, now uint64, invoke Invoker) (events.ProposalExecuted, error) {
	hash := proposalHashOf(cmd)
	p, err := getExecutable(kv, hash)
	if err != nil {
		return events.ProposalExecuted{}, err
	}
	if now < p.ETA {
		return events.ProposalExecuted{}, ErrTimelockNotElapsed
	}

	callData, err := DecodeCallData(cmd.CallData)
	if err != nil {
		return events.ProposalExecuted{}, err
	}
	if err := invoke(cmd.Target, callData, cmd.NativeValue); err != nil {
		return events.ProposalExecuted{}, err
	}

	if err := kv.Delete(executableKey(hash)); err != nil {
		return events.ProposalExecuted{}, err
	}

	return events.ProposalExecuted{Hash: hash}, nil
}

// ExecuteOperator requires the configured operator's signature and an
// existing Operator approval; the timelock check is bypassed. On success
// both records are deleted.
func ExecuteOperator(kv store.KV, cmd CommandPayload, operatorSignaturePresent bool, invoke Invoker) (events.ProposalOperatorExecuted, error) {
	if !operatorSignaturePresent {
		return events.ProposalOperatorExecuted{}, ErrOperatorOnly
	}

	hash := proposalHashOf(cmd)
	if _, err := getOperator(kv, hash); err != nil {
		return events.ProposalOperatorExecuted{}, err
	}

	callData, err := DecodeCallData(cmd.CallData)
	if err != nil {
		return events.ProposalOperatorExecuted{}, err
	}
	if err := invoke(cmd.Target, callData, cmd.NativeValue); err != nil {
		return events.ProposalOperatorExecuted{}, err
	}

	_ = kv.Delete(executableKey(hash))
	if err := kv.Delete(operatorKey(hash)); err != nil {
		return events.ProposalOperatorExecuted{}, err
	}

	return events.ProposalOperatorExecuted{Hash: hash}, nil
}
