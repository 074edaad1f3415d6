package server

import (
	"net/http"
	"time"

	"github.com/axelar-network/solana-gateway-core/pkg/approval"
	"github.com/axelar-network/solana-gateway-core/pkg/gatewayconfig"
	"github.com/axelar-network/solana-gateway-core/pkg/merkle"
)

type crossChainIDRequest struct {
	Chain string `json:"chain"`
	ID    string `json:"id"`
}

type messageLeafRequest struct {
	CCID               crossChainIDRequest `json:"ccid"`
	SourceAddress      string              `json:"source_address"`
	DestinationChain   string              `json:"destination_chain"`
	DestinationAddress string              `json:"destination_address"`
	PayloadHash        string              `json:"payload_hash"`
	Position           uint16              `json:"position"`
	SetSize            uint16              `json:"set_size"`
	DomainSeparator    string              `json:"domain_separator"`
}

func (req messageLeafRequest) toLeaf() (merkle.MessageLeaf, error) {
	var leaf merkle.MessageLeaf
	payloadHash, err := decodeHash(req.PayloadHash)
	if err != nil {
		return leaf, err
	}
	ds, err := decodeHash(req.DomainSeparator)
	if err != nil {
		return leaf, err
	}
	return merkle.MessageLeaf{
		Message: merkle.Message{
			CCID:               merkle.CrossChainID{Chain: req.CCID.Chain, ID: req.CCID.ID},
			SourceAddress:      req.SourceAddress,
			DestinationChain:   req.DestinationChain,
			DestinationAddress: req.DestinationAddress,
			PayloadHash:        payloadHash,
		},
		Position:        req.Position,
		SetSize:         req.SetSize,
		DomainSeparator: ds,
	}, nil
}

type approveMessageRequest struct {
	PayloadMerkleRoot  string             `json:"payload_merkle_root"`
	SigningVerifierSet string             `json:"signing_verifier_set_hash"`
	Leaf               messageLeafRequest `json:"leaf"`
	MerkleProof        []string           `json:"merkle_proof"`
	Bump               uint8              `json:"bump"`
}

func (s *Server) handleApproveMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req approveMessageRequest
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

	cfg, err := gatewayconfig.Get(s.kv)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}

	now := uint64(time.Now().Unix())
	msg, ev, err := approval.Approve(s.kv, cfg, payloadRoot, signingSet, leaf, proof, req.Bump, now)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.emit(ev)
	if s.metrics != nil {
		s.metrics.MessagesApproved.Inc()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"command_id":       hashHex(ev.CommandID),
		"message_hash":     hashHex(msg.MessageHash),
		"payload_hash":     hashHex(msg.PayloadHash),
		"signing_pda_bump": msg.SigningPDABump,
		"bump":             msg.Bump,
		"approved_at":      msg.ApprovedAt,
	})
}

type validateMessageRequest struct {
	CCID               crossChainIDRequest `json:"ccid"`
	SourceAddress      string              `json:"source_address"`
	DestinationChain   string              `json:"destination_chain"`
	DestinationAddress string              `json:"destination_address"`
	PayloadHash        string              `json:"payload_hash"`
	SigningPDABump     uint8               `json:"signing_pda_bump"`
}

func (s *Server) handleValidateMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	var req validateMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	payloadHash, err := decodeHash(req.PayloadHash)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	message := merkle.Message{
		CCID:               merkle.CrossChainID{Chain: req.CCID.Chain, ID: req.CCID.ID},
		SourceAddress:      req.SourceAddress,
		DestinationChain:   req.DestinationChain,
		DestinationAddress: req.DestinationAddress,
		PayloadHash:        payloadHash,
	}

	now := uint64(time.Now().Unix())
	msg, ev, err := approval.Validate(s.kv, message, req.SigningPDABump, now)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error())
		return
	}
	s.emit(ev)
	if s.metrics != nil {
		s.metrics.MessagesConsumed.Inc()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"command_id":  hashHex(ev.CommandID),
		"consumed_at": msg.ConsumedAt,
	})
}
