package server

import (
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/axelar-network/solana-gateway-core/pkg/approval"
	"github.com/axelar-network/solana-gateway-core/pkg/governance"
	"github.com/axelar-network/solana-gateway-core/pkg/merkle"
)

type initializeGovernanceRequest struct {
	Operator                string `json:"operator"`
	GovernanceChainName     string `json:"governance_chain_name"`
	GovernanceAddress       string `json:"governance_address"`
	MinimumProposalETADelay uint64 `json:"minimum_proposal_eta_delay"`
	Bump                    uint8  `json:"bump"`
}

func (s *Server) handleInitializeGovernance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req initializeGovernanceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cfg, err := governance.Initialize(s.kv, req.Operator,
		crypto.Keccak256Hash([]byte(req.GovernanceChainName)),
		crypto.Keccak256Hash([]byte(req.GovernanceAddress)),
		req.MinimumProposalETADelay, req.Bump)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, governanceConfigJSON(cfg))
}

type transferGovernanceOperatorshipRequest struct {
	NewOperator string `json:"new_operator"`
}

func (s *Server) handleTransferGovernanceOperatorship(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req transferGovernanceOperatorshipRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	cfg, err := governance.TransferOperatorship(s.kv, req.NewOperator)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.emit(eventOperatorshipTransferred(req.NewOperator))
	s.writeJSON(w, http.StatusOK, governanceConfigJSON(cfg))
}

func governanceConfigJSON(cfg *governance.GovernanceConfig) map[string]interface{} {
	return map[string]interface{}{
		"operator":                   cfg.Operator,
		"governance_chain_hash":      hashHex(cfg.GovernanceChainHash),
		"governance_address_hash":    hashHex(cfg.GovernanceAddressHash),
		"minimum_proposal_eta_delay": cfg.MinimumProposalETADelay,
		"bump":                       cfg.Bump,
	}
}

type commandPayloadRequest struct {
	Command     uint8  `json:"command"`
	Target      string `json:"target"`
	CallData    string `json:"call_data"`
	NativeValue string `json:"native_value"`
	ETA         string `json:"eta"`
}

func (req commandPayloadRequest) toCommand() (governance.CommandPayload, error) {
	var cmd governance.CommandPayload
	target, err := decodeHash(req.Target)
	if err != nil {
		return cmd, err
	}
	callData, err := hex.DecodeString(req.CallData)
	if err != nil {
		return cmd, errors.New("invalid call_data hex")
	}
	nativeValue, err := parseU128(req.NativeValue)
	if err != nil {
		return cmd, err
	}
	eta, err := parseU128(req.ETA)
	if err != nil {
		return cmd, err
	}
	cmd.Command = governance.CommandType(req.Command)
	cmd.Target = target
	cmd.CallData = callData
	cmd.NativeValue = nativeValue
	cmd.ETA = eta
	return cmd, nil
}

type proposalCommandRequest struct {
	Command commandPayloadRequest `json:"command"`
}

// processGMPMessage is the subset of merkle.Message a process_gmp caller
// supplies to identify the already-approved IncomingMessage carrying the
// command, and to re-derive the source chain/address hashes Admit checks.
type processGMPMessage struct {
	CCID               crossChainIDRequest `json:"ccid"`
	SourceAddress      string              `json:"source_address"`
	DestinationChain   string              `json:"destination_chain"`
	DestinationAddress string              `json:"destination_address"`
	PayloadHash        string              `json:"payload_hash"`
}

type processGMPRequest struct {
	Message processGMPMessage `json:"message"`
	Payload string            `json:"payload"`
	Bump    uint8             `json:"bump"`
}

// handleProcessGMP is the single entry point for all four governance
// commands. It loads the IncomingMessage the command was delivered in,
// admits it against GovernanceConfig's trusted source, decodes the
// command from payload, and only then dispatches to the matching
// state-machine function. Schedule and ApproveOperator consume req.Bump
// for the record they create; Cancel and CancelOperatorApproval ignore it.
func (s *Server) handleProcessGMP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req processGMPRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	payloadHash, err := decodeHash(req.Message.PayloadHash)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	payload, err := hex.DecodeString(req.Payload)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid payload hex")
		return
	}

	message := merkle.Message{
		CCID:               merkle.CrossChainID{Chain: req.Message.CCID.Chain, ID: req.Message.CCID.ID},
		SourceAddress:      req.Message.SourceAddress,
		DestinationChain:   req.Message.DestinationChain,
		DestinationAddress: req.Message.DestinationAddress,
		PayloadHash:        payloadHash,
	}

	incoming, err := approval.Get(s.kv, message.CCID.CommandID())
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	if message.Hash() != incoming.MessageHash {
		s.writeError(w, http.StatusBadRequest, "invalid_request", approval.ErrMessageHashMismatch.Error())
		return
	}

	cfg, err := governance.Get(s.kv)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	sourceChainHash := crypto.Keccak256Hash([]byte(message.CCID.Chain))
	sourceAddressHash := crypto.Keccak256Hash([]byte(message.SourceAddress))
	if err := governance.Admit(cfg, sourceChainHash, sourceAddressHash); err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}

	cmd, err := governance.DecodeCommand(payload)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	now := uint64(time.Now().Unix())
	switch cmd.Command {
	case governance.CommandSchedule:
		proposal, ev, err := governance.Schedule(s.kv, cfg, cmd, now, req.Bump)
		if err != nil {
			status, code := statusForError(err)
			s.writeError(w, status, code, err.Error())
			return
		}
		s.emit(ev)
		if s.metrics != nil {
			s.metrics.ProposalsScheduled.Inc()
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"command": "schedule",
			"hash":    hashHex(proposal.Hash),
			"eta":     proposal.ETA,
			"bump":    proposal.Bump,
		})

	case governance.CommandCancel:
		ev, err := governance.Cancel(s.kv, cmd)
		if err != nil {
			status, code := statusForError(err)
			s.writeError(w, status, code, err.Error())
			return
		}
		s.emit(ev)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"command": "cancel", "hash": hashHex(ev.Hash)})

	case governance.CommandApproveOperator:
		proposal, ev, err := governance.ApproveOperator(s.kv, cmd, req.Bump)
		if err != nil {
			status, code := statusForError(err)
			s.writeError(w, status, code, err.Error())
			return
		}
		s.emit(ev)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"command":       "approve_operator",
			"proposal_hash": hashHex(proposal.ProposalHash),
			"bump":          proposal.Bump,
		})

	case governance.CommandCancelOperatorApproval:
		ev, err := governance.CancelOperatorApproval(s.kv, cmd)
		if err != nil {
			status, code := statusForError(err)
			s.writeError(w, status, code, err.Error())
			return
		}
		s.emit(ev)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"command": "cancel_operator_approval", "hash": hashHex(ev.Hash)})

	default:
		s.writeError(w, http.StatusBadRequest, "invalid_request", "unknown governance command discriminant")
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	s.withCommand(w, r, func(cmd governance.CommandPayload) (interface{}, error) {
		now := uint64(time.Now().Unix())
		ev, err := governance.Execute(s.kv, cmd, now, s.invoker())
		if err != nil {
			return nil, err
		}
		s.emit(ev)
		if s.metrics != nil {
			s.metrics.ProposalsExecuted.Inc()
		}
		return map[string]interface{}{"hash": hashHex(ev.Hash)}, nil
	})
}

type executeOperatorRequest struct {
	Command                  commandPayloadRequest `json:"command"`
	OperatorSignaturePresent bool                  `json:"operator_signature_present"`
}

func (s *Server) handleExecuteOperator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req executeOperatorRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	cmd, err := req.Command.toCommand()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ev, err := governance.ExecuteOperator(s.kv, cmd, req.OperatorSignaturePresent, s.invoker())
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.emit(ev)
	if s.metrics != nil {
		s.metrics.ProposalsExecuted.Inc()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"hash": hashHex(ev.Hash)})
}

// invoker is the placeholder target-instruction dispatcher: process_gmp's
// call data names accounts and instruction bytes for a Solana instruction
// this service does not itself execute. A deployment wires this to the
// chain client capable of submitting it; gatewayd's own responsibility
// ends at the timelock and signature checks.
func (s *Server) invoker() governance.Invoker {
	return func(target [32]byte, callData governance.CallData, nativeValue *big.Int) error {
		s.logger.Printf("governance execute: target=%s accounts=%d native_value=%s",
			hashHex(target), len(callData.SolanaAccounts), nativeValue.String())
		return nil
	}
}

func (s *Server) withCommand(w http.ResponseWriter, r *http.Request, fn func(governance.CommandPayload) (interface{}, error)) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req proposalCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	cmd, err := req.Command.toCommand()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := fn(cmd)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
