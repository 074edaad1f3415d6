package gatewayconfig

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/axelar-network/solana-gateway-core/pkg/store"
)

func TestInitializeAndGet(t *testing.T) {
	kv := store.NewMemory()
	var ds [32]byte
	for i := range ds {
		ds[i] = 2
	}

	c, err := Initialize(kv, ds, 3600, "operator-1", big.NewInt(4), 255)
	require.NoError(t, err)
	require.Equal(t, 0, c.CurrentEpoch.Cmp(big.NewInt(0)))

	got, err := Get(kv)
	require.NoError(t, err)
	require.Equal(t, "operator-1", got.Operator)
	require.Equal(t, ds, got.DomainSeparator)
	require.Equal(t, uint64(3600), got.MinimumRotationDelay)
}

func TestInitializeTwiceFails(t *testing.T) {
	kv := store.NewMemory()
	var ds [32]byte
	_, err := Initialize(kv, ds, 1, "op", big.NewInt(1), 0)
	require.NoError(t, err)

	_, err = Initialize(kv, ds, 1, "op", big.NewInt(1), 0)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestGetBeforeInitializeFails(t *testing.T) {
	kv := store.NewMemory()
	_, err := Get(kv)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestApplyRotationIncrementsEpochByOne(t *testing.T) {
	kv := store.NewMemory()
	var ds [32]byte
	_, err := Initialize(kv, ds, 1, "op", big.NewInt(1), 0)
	require.NoError(t, err)

	c1, err := ApplyRotation(kv, 100)
	require.NoError(t, err)
	require.Equal(t, 0, c1.CurrentEpoch.Cmp(big.NewInt(1)))
	require.Equal(t, uint64(100), c1.LastRotationTimestamp)

	c2, err := ApplyRotation(kv, 200)
	require.NoError(t, err)
	require.Equal(t, 0, c2.CurrentEpoch.Cmp(big.NewInt(2)))
}

func TestTransferOperatorship(t *testing.T) {
	kv := store.NewMemory()
	var ds [32]byte
	_, err := Initialize(kv, ds, 1, "op-old", big.NewInt(1), 0)
	require.NoError(t, err)

	c, err := TransferOperatorship(kv, "op-new", true, true)
	require.NoError(t, err)
	require.Equal(t, "op-new", c.Operator)
}

func TestTransferOperatorshipRejectsMissingOperatorSignature(t *testing.T) {
	kv := store.NewMemory()
	var ds [32]byte
	_, err := Initialize(kv, ds, 1, "op-old", big.NewInt(1), 0)
	require.NoError(t, err)

	_, err = TransferOperatorship(kv, "op-new", false, true)
	require.ErrorIs(t, err, ErrOperatorSignatureMissing)

	got, err := Get(kv)
	require.NoError(t, err)
	require.Equal(t, "op-old", got.Operator)
}

func TestTransferOperatorshipRejectsMissingUpgradeAuthoritySignature(t *testing.T) {
	kv := store.NewMemory()
	var ds [32]byte
	_, err := Initialize(kv, ds, 1, "op-old", big.NewInt(1), 0)
	require.NoError(t, err)

	_, err = TransferOperatorship(kv, "op-new", true, false)
	require.ErrorIs(t, err, ErrUpgradeAuthoritySignatureMissing)

	got, err := Get(kv)
	require.NoError(t, err)
	require.Equal(t, "op-old", got.Operator)
}

func TestCallContractIsDeterministicAndStateless(t *testing.T) {
	kv := store.NewMemory()
	var ds [32]byte
	_, err := Initialize(kv, ds, 1, "op", big.NewInt(1), 0)
	require.NoError(t, err)

	payload := []byte("gmp-payload")
	ev := CallContract("ethereum", "0xabc", payload)
	require.Equal(t, "ethereum", ev.DestinationChain)
	require.Equal(t, "0xabc", ev.DestinationContractAddress)

	again := CallContract("ethereum", "0xabc", payload)
	require.Equal(t, ev.PayloadHash, again.PayloadHash)

	different := CallContract("ethereum", "0xabc", []byte("other-payload"))
	require.NotEqual(t, ev.PayloadHash, different.PayloadHash)

	got, err := Get(kv)
	require.NoError(t, err)
	require.Equal(t, "op", got.Operator)
}
