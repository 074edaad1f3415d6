package server

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/axelar-network/solana-gateway-core/pkg/approval"
	"github.com/axelar-network/solana-gateway-core/pkg/discriminator"
	"github.com/axelar-network/solana-gateway-core/pkg/gatewayconfig"
	"github.com/axelar-network/solana-gateway-core/pkg/governance"
	"github.com/axelar-network/solana-gateway-core/pkg/merkle"
	"github.com/axelar-network/solana-gateway-core/pkg/metrics"
	"github.com/axelar-network/solana-gateway-core/pkg/session"
	"github.com/axelar-network/solana-gateway-core/pkg/sigverify"
	"github.com/axelar-network/solana-gateway-core/pkg/store"
	"github.com/axelar-network/solana-gateway-core/pkg/verifierset"
)

func testDomainSeparator() [32]byte {
	var ds [32]byte
	for i := range ds {
		ds[i] = 9
	}
	return ds
}

// approveMessage wires a single-signer verifier set through a quorum-valid
// session and into an approved IncomingMessage, without going through HTTP
// — it's test fixture setup, not the thing under test.
func approveMessage(t *testing.T, kv store.KV, cfg *gatewayconfig.Config, ds [32]byte, message merkle.Message, bump uint8) *approval.IncomingMessage {
	t.Helper()

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	compressed := crypto.CompressPubkey(&priv.PublicKey)
	var pk merkle.PublicKey
	copy(pk[:], compressed)

	vLeaf := merkle.VerifierSetLeaf{
		Nonce:           1,
		Quorum:          big.NewInt(100),
		SignerPubkey:    pk,
		SignerWeight:    big.NewInt(150),
		Position:        0,
		SetSize:         1,
		DomainSeparator: ds,
	}
	verifierSetRoot, err := vLeaf.Hash()
	require.NoError(t, err)

	_, err = verifierset.Register(kv, verifierSetRoot, big.NewInt(0), 255, 0)
	if err != nil {
		require.ErrorIs(t, err, verifierset.ErrTrackerAlreadyExists)
	}

	msgLeaf := merkle.MessageLeaf{Message: message, Position: 0, SetSize: 1, DomainSeparator: ds}
	payloadRoot := msgLeaf.Hash()

	_, _, err = session.Init(kv, payloadRoot, merkle.PayloadTypeApproveMessages, verifierSetRoot, 255)
	require.NoError(t, err)

	digest := merkle.SigningHash(merkle.PayloadTypeApproveMessages, payloadRoot)
	rawSig, err := crypto.Sign(digest[:], priv)
	require.NoError(t, err)
	var sig [sigverify.SignatureSize]byte
	copy(sig[:], rawSig)

	_, _, err = session.VerifySignature(kv, cfg, payloadRoot, merkle.PayloadTypeApproveMessages, verifierSetRoot, vLeaf, nil, sig)
	require.NoError(t, err)

	incoming, _, err := approval.Approve(kv, cfg, payloadRoot, verifierSetRoot, msgLeaf, nil, bump, 1000)
	require.NoError(t, err)
	return incoming
}

func setupProcessGMPEnv(t *testing.T) (*Server, *http.ServeMux, store.KV, merkle.Message) {
	t.Helper()
	ds := testDomainSeparator()
	kv := store.NewMemory()

	gwCfg, err := gatewayconfig.Initialize(kv, ds, 3600, "gateway-operator", big.NewInt(1), 255)
	require.NoError(t, err)

	message := merkle.Message{
		CCID:               merkle.CrossChainID{Chain: "axelarnet", ID: "1"},
		SourceAddress:      "0xGovernanceAddress",
		DestinationChain:   "solana",
		DestinationAddress: "governance-program",
		PayloadHash:        crypto.Keccak256Hash([]byte("gmp-payload")),
	}
	approveMessage(t, kv, gwCfg, ds, message, 254)

	_, err = governance.Initialize(kv, "gov-operator",
		crypto.Keccak256Hash([]byte(message.CCID.Chain)),
		crypto.Keccak256Hash([]byte(message.SourceAddress)),
		3600, 255)
	require.NoError(t, err)

	reg := metrics.NewRegistry()
	srv := New(kv, nil, reg, nil)
	mux := http.NewServeMux()
	srv.Routes(mux)
	return srv, mux, kv, message
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func commandRequest(cmd governance.CommandPayload, bump uint8) processGMPRequest {
	return processGMPRequest{
		Message: processGMPMessage{
			CCID:               crossChainIDRequest{Chain: "axelarnet", ID: "1"},
			SourceAddress:      "0xGovernanceAddress",
			DestinationChain:   "solana",
			DestinationAddress: "governance-program",
			PayloadHash:        hashHex(crypto.Keccak256Hash([]byte("gmp-payload"))),
		},
		Payload: hex.EncodeToString(governance.EncodeCommand(cmd)),
		Bump:    bump,
	}
}

func TestHandleProcessGMPDispatchesEveryCommand(t *testing.T) {
	_, mux, _, _ := setupProcessGMPEnv(t)

	cmd := governance.CommandPayload{
		Command:     governance.CommandSchedule,
		Target:      [32]byte{7},
		CallData:    []byte("instruction-bytes"),
		NativeValue: big.NewInt(0),
		ETA:         big.NewInt(0),
	}

	scheduleReq := commandRequest(cmd, 255)
	rec := doJSON(t, mux, http.MethodPost, "/v1/governance/process_gmp", scheduleReq, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "schedule", decodeBody(t, rec)["command"])

	cmd.Command = governance.CommandApproveOperator
	rec = doJSON(t, mux, http.MethodPost, "/v1/governance/process_gmp", commandRequest(cmd, 255), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "approve_operator", decodeBody(t, rec)["command"])

	cmd.Command = governance.CommandCancelOperatorApproval
	rec = doJSON(t, mux, http.MethodPost, "/v1/governance/process_gmp", commandRequest(cmd, 255), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cancel_operator_approval", decodeBody(t, rec)["command"])

	cmd.Command = governance.CommandCancel
	rec = doJSON(t, mux, http.MethodPost, "/v1/governance/process_gmp", commandRequest(cmd, 255), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cancel", decodeBody(t, rec)["command"])
}

func TestHandleProcessGMPRejectsUntrustedSource(t *testing.T) {
	_, mux, kv, _ := setupProcessGMPEnv(t)

	untrusted := merkle.Message{
		CCID:               merkle.CrossChainID{Chain: "axelarnet", ID: "2"},
		SourceAddress:      "0xNotGovernance",
		DestinationChain:   "solana",
		DestinationAddress: "governance-program",
		PayloadHash:        crypto.Keccak256Hash([]byte("gmp-payload")),
	}
	gwCfg, err := gatewayconfig.Get(kv)
	require.NoError(t, err)
	approveMessage(t, kv, gwCfg, testDomainSeparator(), untrusted, 254)

	cmd := governance.CommandPayload{
		Command:     governance.CommandSchedule,
		Target:      [32]byte{8},
		CallData:    []byte("instruction-bytes"),
		NativeValue: big.NewInt(0),
		ETA:         big.NewInt(0),
	}
	req := processGMPRequest{
		Message: processGMPMessage{
			CCID:               crossChainIDRequest{Chain: untrusted.CCID.Chain, ID: untrusted.CCID.ID},
			SourceAddress:      untrusted.SourceAddress,
			DestinationChain:   untrusted.DestinationChain,
			DestinationAddress: untrusted.DestinationAddress,
			PayloadHash:        hashHex(untrusted.PayloadHash),
		},
		Payload: hex.EncodeToString(governance.EncodeCommand(cmd)),
		Bump:    255,
	}

	rec := doJSON(t, mux, http.MethodPost, "/v1/governance/process_gmp", req, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	errBody := body["error"].(map[string]interface{})
	require.Equal(t, "precondition_failed", errBody["code"])
}

func TestHandleProcessGMPRejectsMessageHashMismatch(t *testing.T) {
	_, mux, _, _ := setupProcessGMPEnv(t)

	cmd := governance.CommandPayload{
		Command:     governance.CommandSchedule,
		Target:      [32]byte{7},
		CallData:    []byte("instruction-bytes"),
		NativeValue: big.NewInt(0),
		ETA:         big.NewInt(0),
	}
	req := commandRequest(cmd, 255)
	req.Message.DestinationAddress = "a-different-program"

	rec := doJSON(t, mux, http.MethodPost, "/v1/governance/process_gmp", req, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	errBody := body["error"].(map[string]interface{})
	require.Equal(t, "invalid_request", errBody["code"])
}

func TestHandleCallContractEmitsEventAndEchoesBump(t *testing.T) {
	kv := store.NewMemory()
	reg := metrics.NewRegistry()
	srv := New(kv, nil, reg, nil)
	mux := http.NewServeMux()
	srv.Routes(mux)

	req := callContractRequest{
		DestinationChain:           "ethereum",
		DestinationContractAddress: "0xdestination",
		Payload:                    hex.EncodeToString([]byte("payload-bytes")),
		SigningPDABump:             200,
	}
	rec := doJSON(t, mux, http.MethodPost, "/v1/gateway/call_contract", req, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "ethereum", body["destination_chain"])
	require.Equal(t, "0xdestination", body["destination_contract_address"])
	require.Equal(t, float64(200), body["signing_pda_bump"])
	require.NotEmpty(t, body["payload_hash"])
}

func TestHandleTransferOperatorshipRequiresBothSignatures(t *testing.T) {
	kv := store.NewMemory()
	var ds [32]byte
	_, err := gatewayconfig.Initialize(kv, ds, 1, "op-old", big.NewInt(1), 0)
	require.NoError(t, err)

	reg := metrics.NewRegistry()
	srv := New(kv, nil, reg, nil)
	mux := http.NewServeMux()
	srv.Routes(mux)

	rec := doJSON(t, mux, http.MethodPost, "/v1/gateway/transfer_operatorship",
		transferOperatorshipRequest{NewOperator: "op-new", OperatorSignaturePresent: true, UpgradeAuthoritySignaturePresent: false}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	cfg, err := gatewayconfig.Get(kv)
	require.NoError(t, err)
	require.Equal(t, "op-old", cfg.Operator)

	rec = doJSON(t, mux, http.MethodPost, "/v1/gateway/transfer_operatorship",
		transferOperatorshipRequest{NewOperator: "op-new", OperatorSignaturePresent: true, UpgradeAuthoritySignaturePresent: true}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cfg, err = gatewayconfig.Get(kv)
	require.NoError(t, err)
	require.Equal(t, "op-new", cfg.Operator)
}

func TestHandleTransferGovernanceOperatorship(t *testing.T) {
	kv := store.NewMemory()
	_, err := governance.Initialize(kv, "gov-old", crypto.Keccak256Hash([]byte("axelarnet")), crypto.Keccak256Hash([]byte("0xGov")), 3600, 255)
	require.NoError(t, err)

	reg := metrics.NewRegistry()
	srv := New(kv, nil, reg, nil)
	mux := http.NewServeMux()
	srv.Routes(mux)

	rec := doJSON(t, mux, http.MethodPost, "/v1/governance/transfer_operatorship",
		transferGovernanceOperatorshipRequest{NewOperator: "gov-new"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cfg, err := governance.Get(kv)
	require.NoError(t, err)
	require.Equal(t, "gov-new", cfg.Operator)
}

func TestWithDiscriminatorRejectsMismatchAndSurfacesHeader(t *testing.T) {
	kv := store.NewMemory()
	reg := metrics.NewRegistry()
	srv := New(kv, nil, reg, nil)
	mux := http.NewServeMux()
	srv.Routes(mux)

	var ds [32]byte
	req := initializeGatewayRequest{
		DomainSeparator:              hashHex(ds),
		MinimumRotationDelay:         3600,
		Operator:                     "op",
		PreviousVerifierSetRetention: "1",
		Bump:                         255,
	}

	want := instructionDiscriminator("initialize_config")
	d := discriminator.Instruction("initialize_config")
	require.Equal(t, d[:], mustDecodeHex(t, want))

	rec := doJSON(t, mux, http.MethodPost, "/v1/gateway/initialize_config", req, map[string]string{"X-Instruction-Discriminator": want})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, want, rec.Header().Get("X-Instruction-Discriminator"))

	kv2 := store.NewMemory()
	srv2 := New(kv2, nil, reg, nil)
	mux2 := http.NewServeMux()
	srv2.Routes(mux2)
	rec2 := doJSON(t, mux2, http.MethodPost, "/v1/gateway/initialize_config", req, map[string]string{"X-Instruction-Discriminator": "deadbeefdeadbeef"})
	require.Equal(t, http.StatusBadRequest, rec2.Code)
}

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()
	raw, err := hex.DecodeString(s)
	require.NoError(t, err)
	return raw
}
