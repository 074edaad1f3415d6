package eventlog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/axelar-network/solana-gateway-core/pkg/events"
)

var testDSN string

func TestMain(m *testing.M) {
	testDSN = os.Getenv("GATEWAY_TEST_DB")
	if testDSN == "" {
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(testDSN, 5, 2, time.Hour)
	require.NoError(t, err)
	require.NoError(t, client.MigrateUp(context.Background()))
	t.Cleanup(func() { client.Close() })
	return client
}

func TestEmitAndQueryByCommandID(t *testing.T) {
	client := newTestClient(t)
	sink := NewPostgresSink(client)

	var commandID [32]byte
	commandID[0] = 0xAB

	require.NoError(t, sink.Emit(events.MessageApproved{CommandID: commandID, MessageHash: [32]byte{1}, PayloadHash: [32]byte{2}}))
	require.NoError(t, sink.Emit(events.MessageConsumed{CommandID: commandID}))

	records, err := sink.EventsForCommand(context.Background(), commandID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "MessageApproved", records[0].EventType)
	require.Equal(t, "MessageConsumed", records[1].EventType)
}

func TestEventsSinceOrdersOldestFirst(t *testing.T) {
	client := newTestClient(t)
	sink := NewPostgresSink(client)

	start := time.Now().Add(-time.Minute)
	require.NoError(t, sink.Emit(events.SessionOpened{PayloadMerkleRoot: [32]byte{9}}))
	require.NoError(t, sink.Emit(events.SessionQuorumReached{PayloadMerkleRoot: [32]byte{9}}))

	records, err := sink.EventsSince(context.Background(), start, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(records), 2)
	for i := 1; i < len(records); i++ {
		require.True(t, !records[i].RecordedAt.Before(records[i-1].RecordedAt))
	}
}
