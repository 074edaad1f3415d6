package server

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"time"

	"github.com/axelar-network/solana-gateway-core/pkg/events"
	"github.com/axelar-network/solana-gateway-core/pkg/gatewayconfig"
	"github.com/axelar-network/solana-gateway-core/pkg/merkle"
	"github.com/axelar-network/solana-gateway-core/pkg/rotation"
	"github.com/axelar-network/solana-gateway-core/pkg/session"
	"github.com/axelar-network/solana-gateway-core/pkg/verifierset"
)

type initSessionRequest struct {
	PayloadMerkleRoot  string `json:"payload_merkle_root"`
	PayloadType        uint8  `json:"payload_type"`
	SigningVerifierSet string `json:"signing_verifier_set_hash"`
	Bump               uint8  `json:"bump"`
}

func (s *Server) handleInitSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req initSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	payloadRoot, err := decodeHash(req.PayloadMerkleRoot)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	signingSet, err := decodeHash(req.SigningVerifierSet)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	_, ev, err := session.Init(s.kv, payloadRoot, merkle.PayloadType(req.PayloadType), signingSet, req.Bump)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.emit(ev)
	if s.metrics != nil {
		s.metrics.SessionsOpened.Inc()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"payload_merkle_root":       hashHex(ev.PayloadMerkleRoot),
		"payload_type":              ev.PayloadType,
		"signing_verifier_set_hash": hashHex(ev.SigningVerifierSet),
	})
}

type registerVerifierSetRequest struct {
	Hash      string `json:"hash"`
	Epoch     string `json:"epoch"`
	Bump      uint8  `json:"bump"`
	CreatedAt uint64 `json:"created_at"`
}

func (s *Server) handleRegisterVerifierSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req registerVerifierSetRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	hash, err := decodeHash(req.Hash)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	epoch, err := parseU128(req.Epoch)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	tracker, err := verifierset.Register(s.kv, hash, epoch, req.Bump, req.CreatedAt)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"verifier_set_hash": hashHex(hash),
		"epoch":             tracker.Epoch.String(),
		"bump":              tracker.Bump,
		"created_at":        tracker.CreatedAt,
	})
}

type initializeGatewayRequest struct {
	DomainSeparator              string `json:"domain_separator"`
	MinimumRotationDelay         uint64 `json:"minimum_rotation_delay"`
	Operator                     string `json:"operator"`
	PreviousVerifierSetRetention string `json:"previous_verifier_set_retention"`
	Bump                         uint8  `json:"bump"`
}

func (s *Server) handleInitializeGateway(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req initializeGatewayRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	domainSeparator, err := decodeHash(req.DomainSeparator)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	retention, err := parseU128(req.PreviousVerifierSetRetention)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cfg, err := gatewayconfig.Initialize(s.kv, domainSeparator, req.MinimumRotationDelay, req.Operator, retention, req.Bump)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, gatewayConfigJSON(cfg))
}

func gatewayConfigJSON(cfg *gatewayconfig.Config) map[string]interface{} {
	return map[string]interface{}{
		"current_epoch":                   cfg.CurrentEpoch.String(),
		"previous_verifier_set_retention": cfg.PreviousVerifierSetRetention.String(),
		"minimum_rotation_delay":          cfg.MinimumRotationDelay,
		"last_rotation_timestamp":         cfg.LastRotationTimestamp,
		"operator":                        cfg.Operator,
		"domain_separator":                hashHex(cfg.DomainSeparator),
		"bump":                            cfg.Bump,
	}
}

type verifierSetLeafRequest struct {
	Nonce           uint64 `json:"nonce"`
	Quorum          string `json:"quorum"`
	SignerPubkey    string `json:"signer_pubkey"`
	SignerWeight    string `json:"signer_weight"`
	Position        uint16 `json:"position"`
	SetSize         uint16 `json:"set_size"`
	DomainSeparator string `json:"domain_separator"`
}

func (req verifierSetLeafRequest) toLeaf() (merkle.VerifierSetLeaf, error) {
	var leaf merkle.VerifierSetLeaf
	pk, err := decodePubkey(req.SignerPubkey)
	if err != nil {
		return leaf, err
	}
	quorum, err := parseU128(req.Quorum)
	if err != nil {
		return leaf, err
	}
	weight, err := parseU128(req.SignerWeight)
	if err != nil {
		return leaf, err
	}
	ds, err := decodeHash(req.DomainSeparator)
	if err != nil {
		return leaf, err
	}
	return merkle.VerifierSetLeaf{
		Nonce:           req.Nonce,
		Quorum:          quorum,
		SignerPubkey:    pk,
		SignerWeight:    weight,
		Position:        req.Position,
		SetSize:         req.SetSize,
		DomainSeparator: ds,
	}, nil
}

type verifySignatureRequest struct {
	PayloadMerkleRoot  string                 `json:"payload_merkle_root"`
	PayloadType        uint8                  `json:"payload_type"`
	SigningVerifierSet string                 `json:"signing_verifier_set_hash"`
	Leaf               verifierSetLeafRequest `json:"leaf"`
	MerkleProof        []string               `json:"merkle_proof"`
	Signature          string                 `json:"signature"`
}

func (s *Server) handleVerifySignature(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req verifySignatureRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	payloadRoot, err := decodeHash(req.PayloadMerkleRoot)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	signingSet, err := decodeHash(req.SigningVerifierSet)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	leaf, err := req.Leaf.toLeaf()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	proof, err := decodeProof(req.MerkleProof)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sig, err := decodeSignature(req.Signature)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cfg, err := gatewayconfig.Get(s.kv)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}

	var sess *session.Session
	var ev events.Event
	lockKey := append([]byte("verify_signature:"), payloadRoot[:]...)
	err = s.locks.WithLock(lockKey, func() error {
		var innerErr error
		sess, ev, innerErr = session.VerifySignature(s.kv, cfg, payloadRoot, merkle.PayloadType(req.PayloadType), signingSet, leaf, proof, sig)
		return innerErr
	})
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.emit(ev)
	if s.metrics != nil {
		s.metrics.SignaturesVerified.Inc()
		if ev.EventType() == "SessionQuorumReached" {
			s.metrics.SessionsQuorumReached.Inc()
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_valid":              sess.IsValid(),
		"accumulated_threshold": sess.Verification.AccumulatedThreshold.String(),
		"quorum":                sess.Verification.Quorum.String(),
	})
}

type rotateSignersRequest struct {
	NewVerifierSetHash       string `json:"new_verifier_set_hash"`
	CurrentVerifierSetHash   string `json:"current_verifier_set_hash"`
	OperatorSignaturePresent bool   `json:"operator_signature_present"`
	NewTrackerBump           uint8  `json:"new_tracker_bump"`
}

func (s *Server) handleRotateSigners(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req rotateSignersRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	newHash, err := decodeHash(req.NewVerifierSetHash)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	currentHash, err := decodeHash(req.CurrentVerifierSetHash)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cfg, err := gatewayconfig.Get(s.kv)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}

	now := uint64(time.Now().Unix())
	var result map[string]interface{}
	lockKey := append([]byte("rotate:"), currentHash[:]...)
	err = s.locks.WithLock(lockKey, func() error {
		t, ev, innerErr := rotation.Rotate(s.kv, cfg, newHash, currentHash, req.OperatorSignaturePresent, req.NewTrackerBump, now)
		if innerErr != nil {
			return innerErr
		}
		s.emit(ev)
		if s.metrics != nil {
			s.metrics.Rotations.Inc()
			epochF, _ := new(big.Float).SetInt(ev.NewEpoch).Float64()
			s.metrics.CurrentEpoch.Set(epochF)
		}
		result = map[string]interface{}{
			"epoch":      t.Epoch.String(),
			"bump":       t.Bump,
			"created_at": t.CreatedAt,
			"new_hash":   hashHex(ev.NewHash),
		}
		return nil
	})
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type callContractRequest struct {
	DestinationChain           string `json:"destination_chain"`
	DestinationContractAddress string `json:"destination_contract_address"`
	Payload                    string `json:"payload"`
	SigningPDABump             uint8  `json:"signing_pda_bump"`
}

// handleCallContract implements call_contract: authentication is either a
// direct signer or a caller-program signing PDA, established upstream of
// this handler by whatever submitted the request; signing_pda_bump is
// accepted and echoed back but not independently checked here, since
// there is no persisted record to check it against.
func (s *Server) handleCallContract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req callContractRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	payload, err := hex.DecodeString(req.Payload)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid payload hex")
		return
	}

	ev := gatewayconfig.CallContract(req.DestinationChain, req.DestinationContractAddress, payload)
	s.emit(ev)
	if s.metrics != nil {
		s.metrics.ContractCallsEmitted.Inc()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"destination_chain":            ev.DestinationChain,
		"destination_contract_address": ev.DestinationContractAddress,
		"payload_hash":                 hashHex(ev.PayloadHash),
		"signing_pda_bump":             req.SigningPDABump,
	})
}

type transferOperatorshipRequest struct {
	NewOperator                      string `json:"new_operator"`
	OperatorSignaturePresent         bool   `json:"operator_signature_present"`
	UpgradeAuthoritySignaturePresent bool   `json:"upgrade_authority_signature_present"`
}

func (s *Server) handleTransferOperatorship(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req transferOperatorshipRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	cfg, err := gatewayconfig.TransferOperatorship(s.kv, req.NewOperator, req.OperatorSignaturePresent, req.UpgradeAuthoritySignaturePresent)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.emit(eventOperatorshipTransferred(req.NewOperator))
	s.writeJSON(w, http.StatusOK, gatewayConfigJSON(cfg))
}
