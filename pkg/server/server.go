// Package server implements the HTTP surface over the Gateway and
// Governance cores (C13): one handler per instruction, JSON request
// decode, core package invocation, and a JSON response carrying the
// resulting record and event.
package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"

	"github.com/axelar-network/solana-gateway-core/pkg/approval"
	"github.com/axelar-network/solana-gateway-core/pkg/discriminator"
	"github.com/axelar-network/solana-gateway-core/pkg/events"
	"github.com/axelar-network/solana-gateway-core/pkg/gatewayconfig"
	"github.com/axelar-network/solana-gateway-core/pkg/governance"
	"github.com/axelar-network/solana-gateway-core/pkg/merkle"
	"github.com/axelar-network/solana-gateway-core/pkg/metrics"
	"github.com/axelar-network/solana-gateway-core/pkg/rotation"
	"github.com/axelar-network/solana-gateway-core/pkg/session"
	"github.com/axelar-network/solana-gateway-core/pkg/sigverify"
	"github.com/axelar-network/solana-gateway-core/pkg/store"
	"github.com/axelar-network/solana-gateway-core/pkg/verifierset"
)

// Server holds everything a handler needs: the content-addressed store,
// per-key lock table, event sink, and metrics registry.
type Server struct {
	kv      store.KV
	locks   *store.KeyLocks
	sink    events.Sink
	metrics *metrics.Registry
	logger  *log.Logger
}

// New constructs a Server. sink and metricsReg may be nil; a nil sink
// defaults to events.NoopSink, a nil metrics registry disables counters.
func New(kv store.KV, sink events.Sink, metricsReg *metrics.Registry, logger *log.Logger) *Server {
	if sink == nil {
		sink = events.NoopSink{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[gatewayd] ", log.LstdFlags)
	}
	return &Server{
		kv:      kv,
		locks:   store.NewKeyLocks(),
		sink:    sink,
		metrics: metricsReg,
		logger:  logger,
	}
}

// Routes registers every handler on mux, one path per legacy instruction
// name in §6.1/§6.2 so route and discriminator agree; register_verifier_set
// is the one exception, an internal bookkeeping step with no instruction
// counterpart of its own.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/gateway/initialize_config", s.withDiscriminator("initialize_config", s.handleInitializeGateway))
	mux.HandleFunc("/v1/gateway/initialize_payload_verification_session", s.withDiscriminator("initialize_payload_verification_session", s.handleInitSession))
	mux.HandleFunc("/v1/gateway/verify_signature", s.withDiscriminator("verify_signature", s.handleVerifySignature))
	mux.HandleFunc("/v1/gateway/register_verifier_set", s.handleRegisterVerifierSet)
	mux.HandleFunc("/v1/gateway/approve_message", s.withDiscriminator("approve_message", s.handleApproveMessage))
	mux.HandleFunc("/v1/gateway/validate_message", s.withDiscriminator("validate_message", s.handleValidateMessage))
	mux.HandleFunc("/v1/gateway/rotate_signers", s.withDiscriminator("rotate_signers", s.handleRotateSigners))
	mux.HandleFunc("/v1/gateway/call_contract", s.withDiscriminator("call_contract", s.handleCallContract))
	mux.HandleFunc("/v1/gateway/transfer_operatorship", s.withDiscriminator("transfer_operatorship", s.handleTransferOperatorship))

	mux.HandleFunc("/v1/governance/initialize_config", s.withDiscriminator("initialize_config", s.handleInitializeGovernance))
	mux.HandleFunc("/v1/governance/process_gmp", s.withDiscriminator("process_gmp", s.handleProcessGMP))
	mux.HandleFunc("/v1/governance/execute_timelock_proposal", s.withDiscriminator("execute_timelock_proposal", s.handleExecute))
	mux.HandleFunc("/v1/governance/execute_operator_proposal", s.withDiscriminator("execute_operator_proposal", s.handleExecuteOperator))
	mux.HandleFunc("/v1/governance/transfer_operatorship", s.withDiscriminator("transfer_operatorship", s.handleTransferGovernanceOperatorship))
}

// instructionDiscriminator renders keccak("global:"+name)[:8] as the
// lowercase hex string a client compares against.
func instructionDiscriminator(name string) string {
	d := discriminator.Instruction(name)
	return hex.EncodeToString(d[:])
}

// withDiscriminator maps an HTTP route to the same discriminator table a
// legacy client would check on-chain: it always returns the instruction's
// discriminator in the X-Instruction-Discriminator response header, and,
// when the caller supplies that header on the request, rejects a mismatch
// before the handler runs — so a client can confirm it is calling the
// instruction it thinks it is.
func (s *Server) withDiscriminator(name string, handler http.HandlerFunc) http.HandlerFunc {
	want := instructionDiscriminator(name)
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Instruction-Discriminator"); got != "" && got != want {
			s.writeError(w, http.StatusBadRequest, "invalid_request",
				fmt.Sprintf("discriminator mismatch: %s expects %s", name, want))
			return
		}
		w.Header().Set("X-Instruction-Discriminator", want)
		handler(w, r)
	}
}

// ---- encoding helpers -------------------------------------------------

func decodeHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("expected 32-byte hex string, got %q", s)
	}
	copy(out[:], raw)
	return out, nil
}

func decodeProof(items []string) ([][32]byte, error) {
	out := make([][32]byte, len(items))
	for i, s := range items {
		h, err := decodeHash(s)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func decodeSignature(s string) ([sigverify.SignatureSize]byte, error) {
	var out [sigverify.SignatureSize]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != sigverify.SignatureSize {
		return out, fmt.Errorf("expected %d-byte hex signature, got %q", sigverify.SignatureSize, s)
	}
	copy(out[:], raw)
	return out, nil
}

func decodePubkey(s string) (merkle.PublicKey, error) {
	var out merkle.PublicKey
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(out) {
		return out, fmt.Errorf("expected %d-byte hex pubkey, got %q", len(out), s)
	}
	copy(out[:], raw)
	return out, nil
}

func hashHex(h [32]byte) string { return hex.EncodeToString(h[:]) }

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func eventOperatorshipTransferred(newOperator string) events.Event {
	return events.OperatorshipTransferred{NewOperator: newOperator}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("error encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
}

// statusForError maps a core-package sentinel to an HTTP status and code.
// Unrecognised errors map to 500 internal_error.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, gatewayconfig.ErrAlreadyInitialized),
		errors.Is(err, governance.ErrAlreadyInitialized),
		errors.Is(err, session.ErrSessionAlreadyExists),
		errors.Is(err, verifierset.ErrTrackerAlreadyExists),
		errors.Is(err, rotation.ErrTrackerAlreadyExists),
		errors.Is(err, approval.ErrMessageAlreadyApproved),
		errors.Is(err, approval.ErrMessageAlreadyConsumed),
		errors.Is(err, governance.ErrProposalAlreadyExists),
		errors.Is(err, governance.ErrOperatorProposalAlreadyExists):
		return http.StatusConflict, "already_exists"

	case errors.Is(err, gatewayconfig.ErrNotInitialized),
		errors.Is(err, governance.ErrNotInitialized),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, verifierset.ErrTrackerNotFound),
		errors.Is(err, approval.ErrMessageNotApproved),
		errors.Is(err, governance.ErrProposalNotFound),
		errors.Is(err, governance.ErrOperatorProposalNotFound):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, session.ErrInvalidMerkleProof),
		errors.Is(err, session.ErrDomainSeparatorMismatch),
		errors.Is(err, session.ErrPayloadTypeMismatch),
		errors.Is(err, session.ErrSlotAlreadyVerified),
		errors.Is(err, session.ErrInvalidSignature),
		errors.Is(err, session.ErrArithmeticOverflow),
		errors.Is(err, verifierset.ErrVerifierSetFromFuture),
		errors.Is(err, verifierset.ErrVerifierSetTooOld),
		errors.Is(err, approval.ErrInvalidMerkleProof),
		errors.Is(err, approval.ErrDomainSeparatorMismatch),
		errors.Is(err, approval.ErrMessageHashMismatch),
		errors.Is(err, approval.ErrSigningPDAMismatch),
		errors.Is(err, sigverify.ErrInvalidRecoveryID),
		errors.Is(err, sigverify.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_request"

	case errors.Is(err, session.ErrSessionNotValid),
		errors.Is(err, rotation.ErrSessionNotValid),
		errors.Is(err, approval.ErrSessionNotValid),
		errors.Is(err, rotation.ErrCooldownNotElapsed),
		errors.Is(err, rotation.ErrSigningSetNotCurrent),
		errors.Is(err, governance.ErrTimelockNotElapsed),
		errors.Is(err, governance.ErrOperatorOnly),
		errors.Is(err, gatewayconfig.ErrOperatorSignatureMissing),
		errors.Is(err, gatewayconfig.ErrUpgradeAuthoritySignatureMissing),
		errors.Is(err, governance.ErrUntrustedSourceChain),
		errors.Is(err, governance.ErrUntrustedSourceAddress):
		return http.StatusForbidden, "precondition_failed"

	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) emit(ev events.Event) {
	if err := s.sink.Emit(ev); err != nil {
		s.logger.Printf("event sink error (event=%s): %v", ev.EventType(), err)
	}
}

// parseU128 parses a JSON decimal string into a *big.Int, defaulting to
// zero when the field is empty.
func parseU128(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid u128 decimal string %q", s)
	}
	return v, nil
}
