package governance

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/axelar-network/solana-gateway-core/pkg/store"
)

func chainHash(name string) [32]byte {
	return crypto.Keccak256Hash([]byte(name))
}

func TestCommandPayloadCodecRoundTrip(t *testing.T) {
	var target [32]byte
	copy(target[:], []byte("target-account-000000000000000000"))

	callData := EncodeCallData(CallData{
		SolanaAccounts: []AccountMeta{
			{Pubkey: target, IsSigner: true, IsWritable: false},
		},
		InstructionBytes: []byte("a single instruction payload"),
	})

	cmd := CommandPayload{
		Command:     CommandSchedule,
		Target:      target,
		CallData:    callData,
		NativeValue: big.NewInt(1234),
		ETA:         big.NewInt(999999),
	}

	encoded := EncodeCommand(cmd)
	decoded, err := DecodeCommand(encoded)
	require.NoError(t, err)
	require.Equal(t, cmd.Command, decoded.Command)
	require.Equal(t, cmd.Target, decoded.Target)
	require.Equal(t, 0, cmd.NativeValue.Cmp(decoded.NativeValue))
	require.Equal(t, 0, cmd.ETA.Cmp(decoded.ETA))
	require.Equal(t, cmd.CallData, decoded.CallData)
}

func TestCallDataCodecRoundTrip(t *testing.T) {
	var receiver [32]byte
	copy(receiver[:], []byte("receiver-account-0000000000000000"))

	cd := CallData{
		SolanaAccounts: []AccountMeta{
			{Pubkey: [32]byte{1}, IsSigner: true, IsWritable: true},
			{Pubkey: [32]byte{2}, IsSigner: false, IsWritable: true},
		},
		NativeValueReceiver: &receiver,
		InstructionBytes:    []byte("do the thing"),
	}

	encoded := EncodeCallData(cd)
	decoded, err := DecodeCallData(encoded)
	require.NoError(t, err)
	require.Equal(t, cd.SolanaAccounts, decoded.SolanaAccounts)
	require.NotNil(t, decoded.NativeValueReceiver)
	require.Equal(t, *cd.NativeValueReceiver, *decoded.NativeValueReceiver)
	require.Equal(t, cd.InstructionBytes, decoded.InstructionBytes)
}

func TestCallDataCodecRoundTripNoReceiver(t *testing.T) {
	cd := CallData{InstructionBytes: []byte("x")}
	decoded, err := DecodeCallData(EncodeCallData(cd))
	require.NoError(t, err)
	require.Nil(t, decoded.NativeValueReceiver)
}

func TestProposalHashIsDeterministic(t *testing.T) {
	target := [32]byte{9}
	h1 := ProposalHash(target, []byte("call-data"), big.NewInt(5))
	h2 := ProposalHash(target, []byte("call-data"), big.NewInt(5))
	require.Equal(t, h1, h2)

	h3 := ProposalHash(target, []byte("call-data"), big.NewInt(6))
	require.NotEqual(t, h1, h3)
}

func setupConfig(t *testing.T) (store.KV, *GovernanceConfig) {
	t.Helper()
	kv := store.NewMemory()
	cfg, err := Initialize(kv, "operator-1", chainHash("axelarnet"), chainHash("0xGovernanceAddress"), 3600, 255)
	require.NoError(t, err)
	return kv, cfg
}

func sampleCommand(eta *big.Int) CommandPayload {
	return CommandPayload{
		Command:     CommandSchedule,
		Target:      [32]byte{7},
		CallData:    EncodeCallData(CallData{InstructionBytes: []byte("instruction-bytes")}),
		NativeValue: big.NewInt(0),
		ETA:         eta,
	}
}

// TestScheduleThenCancel mirrors a scheduled proposal being cancelled
// before its timelock elapses.
func TestScheduleThenCancel(t *testing.T) {
	kv, cfg := setupConfig(t)
	cmd := sampleCommand(big.NewInt(0))

	proposal, ev, err := Schedule(kv, cfg, cmd, 1000, 255)
	require.NoError(t, err)
	require.Equal(t, uint64(1000+cfg.MinimumProposalETADelay), proposal.ETA)
	require.Equal(t, proposal.ETA, ev.ETA)

	_, _, err = Schedule(kv, cfg, cmd, 1000, 255)
	require.ErrorIs(t, err, ErrProposalAlreadyExists)

	_, err = Cancel(kv, cmd)
	require.NoError(t, err)

	_, err = Cancel(kv, cmd)
	require.ErrorIs(t, err, ErrProposalNotFound)

	// re-scheduling after cancellation succeeds.
	_, _, err = Schedule(kv, cfg, cmd, 2000, 255)
	require.NoError(t, err)
}

func TestCancelRemovesOperatorApprovalToo(t *testing.T) {
	kv, cfg := setupConfig(t)
	cmd := sampleCommand(big.NewInt(0))

	_, _, err := Schedule(kv, cfg, cmd, 1000, 255)
	require.NoError(t, err)
	_, _, err = ApproveOperator(kv, cmd, 255)
	require.NoError(t, err)

	_, err = Cancel(kv, cmd)
	require.NoError(t, err)

	_, err = CancelOperatorApproval(kv, cmd)
	require.ErrorIs(t, err, ErrOperatorProposalNotFound)
}

func TestApproveOperatorRequiresScheduled(t *testing.T) {
	kv, _ := setupConfig(t)
	cmd := sampleCommand(big.NewInt(0))

	_, _, err := ApproveOperator(kv, cmd, 255)
	require.ErrorIs(t, err, ErrProposalNotFound)
}

func TestCancelOperatorApprovalLeavesScheduledIntact(t *testing.T) {
	kv, cfg := setupConfig(t)
	cmd := sampleCommand(big.NewInt(0))

	_, _, err := Schedule(kv, cfg, cmd, 1000, 255)
	require.NoError(t, err)
	_, _, err = ApproveOperator(kv, cmd, 255)
	require.NoError(t, err)

	_, err = CancelOperatorApproval(kv, cmd)
	require.NoError(t, err)

	// the Scheduled record survives; a second cancel attempt is rejected.
	_, err = getExecutable(kv, proposalHashOf(cmd))
	require.NoError(t, err)

	_, err = CancelOperatorApproval(kv, cmd)
	require.ErrorIs(t, err, ErrOperatorProposalNotFound)
}

// TestExecuteRespectsTimelock mirrors a timed execute: rejected one second
// before eta, succeeds exactly at eta.
func TestExecuteRespectsTimelock(t *testing.T) {
	kv, cfg := setupConfig(t)
	cmd := sampleCommand(big.NewInt(0))

	proposal, _, err := Schedule(kv, cfg, cmd, 1000, 255)
	require.NoError(t, err)

	var invoked bool
	invoke := func(target [32]byte, callData CallData, nativeValue *big.Int) error {
		invoked = true
		return nil
	}

	_, err = Execute(kv, cmd, proposal.ETA-1, invoke)
	require.ErrorIs(t, err, ErrTimelockNotElapsed)
	require.False(t, invoked)

	_, err = Execute(kv, cmd, proposal.ETA, invoke)
	require.NoError(t, err)
	require.True(t, invoked)

	// the Scheduled record is gone; a second execute fails to find it.
	_, err = Execute(kv, cmd, proposal.ETA+1, invoke)
	require.ErrorIs(t, err, ErrProposalNotFound)
}

func TestExecuteLeavesStateUnchangedOnInvokeFailure(t *testing.T) {
	kv, cfg := setupConfig(t)
	cmd := sampleCommand(big.NewInt(0))
	proposal, _, err := Schedule(kv, cfg, cmd, 1000, 255)
	require.NoError(t, err)

	failing := func(target [32]byte, callData CallData, nativeValue *big.Int) error {
		return errInvokeFailed
	}

	_, err = Execute(kv, cmd, proposal.ETA, failing)
	require.ErrorIs(t, err, errInvokeFailed)

	// still scheduled.
	_, err = getExecutable(kv, proposalHashOf(cmd))
	require.NoError(t, err)
}

func TestExecuteOperatorBypassesTimelockButRequiresSignatureAndApproval(t *testing.T) {
	kv, cfg := setupConfig(t)
	cmd := sampleCommand(big.NewInt(0))
	_, _, err := Schedule(kv, cfg, cmd, 1000, 255)
	require.NoError(t, err)

	invoke := func(target [32]byte, callData CallData, nativeValue *big.Int) error { return nil }

	_, err = ExecuteOperator(kv, cmd, false, invoke)
	require.ErrorIs(t, err, ErrOperatorOnly)

	_, err = ExecuteOperator(kv, cmd, true, invoke)
	require.ErrorIs(t, err, ErrOperatorProposalNotFound)

	_, _, err = ApproveOperator(kv, cmd, 255)
	require.NoError(t, err)

	_, err = ExecuteOperator(kv, cmd, true, invoke)
	require.NoError(t, err)

	_, err = getExecutable(kv, proposalHashOf(cmd))
	require.ErrorIs(t, err, ErrProposalNotFound)
	_, err = getOperator(kv, proposalHashOf(cmd))
	require.ErrorIs(t, err, ErrOperatorProposalNotFound)
}

func TestAdmitMessageChecksSourceChainAndAddress(t *testing.T) {
	_, cfg := setupConfig(t)
	require.True(t, AdmitMessage(cfg, chainHash("axelarnet"), chainHash("0xGovernanceAddress")))
	require.False(t, AdmitMessage(cfg, chainHash("ethereum"), chainHash("0xGovernanceAddress")))
	require.False(t, AdmitMessage(cfg, chainHash("axelarnet"), chainHash("0xSomeoneElse")))
}

func TestAdmitReturnsDistinctSentinelsPerMismatch(t *testing.T) {
	_, cfg := setupConfig(t)

	require.NoError(t, Admit(cfg, chainHash("axelarnet"), chainHash("0xGovernanceAddress")))

	err := Admit(cfg, chainHash("ethereum"), chainHash("0xGovernanceAddress"))
	require.ErrorIs(t, err, ErrUntrustedSourceChain)

	err = Admit(cfg, chainHash("axelarnet"), chainHash("0xSomeoneElse"))
	require.ErrorIs(t, err, ErrUntrustedSourceAddress)
}

type invokeError string

func (e invokeError) Error() string { return string(e) }

const errInvokeFailed = invokeError("invoke failed")
