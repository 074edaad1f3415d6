package merkle

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func domainSeparator() [32]byte {
	var d [32]byte
	for i := range d {
		d[i] = 2
	}
	return d
}

func twoSignerLeaves(t *testing.T) []VerifierSetLeaf {
	t.Helper()
	ds := domainSeparator()
	leaves := make([]VerifierSetLeaf, 2)
	for i := range leaves {
		var pk PublicKey
		pk[0] = 0x02
		pk[1] = byte(i + 1)
		leaves[i] = VerifierSetLeaf{
			Nonce:           1,
			Quorum:          big.NewInt(100),
			SignerPubkey:    pk,
			SignerWeight:    big.NewInt(50),
			Position:        uint16(i),
			SetSize:         2,
			DomainSeparator: ds,
		}
	}
	return leaves
}

func TestBuildAndVerifyProof(t *testing.T) {
	leaves := twoSignerLeaves(t)

	hashes := make([][32]byte, len(leaves))
	for i, l := range leaves {
		h, err := l.Hash()
		require.NoError(t, err)
		hashes[i] = h
	}

	tree, err := BuildTree(hashes)
	require.NoError(t, err)
	root := tree.Root()

	for i, h := range hashes {
		proof, err := tree.Proof(i)
		require.NoError(t, err)
		require.True(t, VerifyProof(h, uint16(i), proof, root))
	}
}

func TestVerifyProofRejectsWrongRoot(t *testing.T) {
	leaves := twoSignerLeaves(t)
	hashes := make([][32]byte, len(leaves))
	for i, l := range leaves {
		h, err := l.Hash()
		require.NoError(t, err)
		hashes[i] = h
	}

	tree, err := BuildTree(hashes)
	require.NoError(t, err)

	proof, err := tree.Proof(0)
	require.NoError(t, err)

	var wrongRoot [32]byte
	wrongRoot[0] = 0xff
	require.False(t, VerifyProof(hashes[0], 0, proof, wrongRoot))
}

func TestSingleLeafTreeRootIsLeaf(t *testing.T) {
	leaves := twoSignerLeaves(t)
	h, err := leaves[0].Hash()
	require.NoError(t, err)

	tree, err := BuildTree([][32]byte{h})
	require.NoError(t, err)
	require.Equal(t, h, tree.Root())

	proof, err := tree.Proof(0)
	require.NoError(t, err)
	require.Empty(t, proof)
	require.True(t, VerifyProof(h, 0, proof, tree.Root()))
}

func TestMessageHashRoundTrip(t *testing.T) {
	msg := Message{
		CCID:               CrossChainID{Chain: "ethereum", ID: "msg_1"},
		SourceAddress:      "0xSourceAddress",
		DestinationChain:   "solana",
		DestinationAddress: "DNHKNbf4JWJNnquuWJuNUSFGsXbDYs1sPR1ZvVhah827",
	}
	msg.PayloadHash[0] = 1

	h1 := msg.Hash()
	h2 := msg.Hash()
	require.Equal(t, h1, h2)

	other := msg
	other.CCID.ID = "msg_2"
	require.NotEqual(t, h1, other.Hash())
}

func TestCommandIDUsesLiteralConcatenation(t *testing.T) {
	cc := CrossChainID{Chain: "ethereum", ID: "msg_1"}
	id := cc.CommandID()

	other := CrossChainID{Chain: "ethereum", ID: "msg_1"}
	require.Equal(t, id, other.CommandID())

	different := CrossChainID{Chain: "ethereum-", ID: "msg_1"}
	require.NotEqual(t, id, different.CommandID())
}

func TestSigningHashDistinguishesPayloadType(t *testing.T) {
	var root [32]byte
	root[0] = 0x42

	a := SigningHash(PayloadTypeApproveMessages, root)
	b := SigningHash(PayloadTypeRotateSigners, root)
	require.NotEqual(t, a, b)
}
