// Package governance implements the Governance proposal engine (C8): ABI
// payload encoding, the trusted-source admission check, and the
// Schedule/Cancel/ApproveOperator/CancelOperatorApproval/Execute/
// ExecuteOperator state machine.
package governance

import "math/big"

// CommandType is one of the four ABI command discriminants carried by a
// process_gmp payload.
type CommandType uint8

const (
	CommandSchedule               CommandType = 0
	CommandCancel                 CommandType = 1
	CommandApproveOperator        CommandType = 2
	CommandCancelOperatorApproval CommandType = 3
)

// AccountMeta names one Solana account referenced by an encoded
// instruction.
type AccountMeta struct {
	Pubkey     [32]byte
	IsSigner   bool
	IsWritable bool
}

// CallData is the payload carried inside a CommandPayload, further
// encoding the accounts and instruction bytes to invoke on Execute.
type CallData struct {
	SolanaAccounts      []AccountMeta
	NativeValueReceiver *[32]byte
	InstructionBytes    []byte
}

// CommandPayload is the decoded process_gmp argument.
type CommandPayload struct {
	Command     CommandType
	Target      [32]byte
	CallData    []byte
	NativeValue *big.Int
	ETA         *big.Int
}

// ProposalStatus distinguishes whether a proposal carries an operator
// fast-path approval.
type ProposalStatus uint8

const (
	ProposalScheduledOnly ProposalStatus = iota
	ProposalOperatorApprovedStatus
)

// ExecutableProposal is the time-locked record created by Schedule.
type ExecutableProposal struct {
	Hash [32]byte
	ETA  uint64
	Bump uint8
}

// OperatorProposal marks a proposal as operator-fast-path approved.
type OperatorProposal struct {
	ProposalHash [32]byte
	Bump         uint8
}

// GovernanceConfig is the Governance singleton, mirroring GatewayConfig's
// shape.
type GovernanceConfig struct {
	Operator                string
	GovernanceChainHash     [32]byte
	GovernanceAddressHash   [32]byte
	MinimumProposalETADelay uint64
	Bump                    uint8
}
