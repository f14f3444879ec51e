package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethercflow/eRPC/pkg/sm"
)

func newTestUDP(t *testing.T, ringSize int) *UDP {
	t.Helper()

	trans, err := NewUDP(UDPConfig{Port: 0, RingSize: ringSize})
	require.NoError(t, err)
	t.Cleanup(func() { _ = trans.Close() })
	return trans
}

func TestRoutingInfoRoundTrip(t *testing.T) {
	trans := newTestUDP(t, 0)

	ri := trans.RoutingInfo()
	require.NoError(t, trans.ResolveRouting("localhost", &ri))

	addr, err := routingAddr(&ri)
	require.NoError(t, err)
	assert.NotZero(t, addr.Port)
}

func TestResolveRoutingRejectsGarbage(t *testing.T) {
	trans := newTestUDP(t, 0)

	var empty [sm.RoutingInfoSize]byte
	err := trans.ResolveRouting("peer", &empty)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRoutingResolution)

	var junk [sm.RoutingInfoSize]byte
	copy(junk[:], "not an address")
	assert.Error(t, trans.ResolveRouting("peer", &junk))
}

func TestRingAdmission(t *testing.T) {
	trans := newTestUDP(t, 2)

	require.NoError(t, trans.ReserveSessionResources())
	require.NoError(t, trans.ReserveSessionResources())

	err := trans.ReserveSessionResources()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRingExhausted)

	trans.FreeSessionResources()
	assert.NoError(t, trans.ReserveSessionResources())
}

func TestSendMessageAndPollCompletions(t *testing.T) {
	a := newTestUDP(t, 0)
	b := newTestUDP(t, 0)

	// A client session on a, with b as the server peer
	session := sm.NewSession(sm.RoleClient, sm.StateConnected)
	session.Server.RoutingInfo = b.RoutingInfo()

	require.NoError(t, a.SendMessage(session, []byte("hello")))

	var got [][]byte
	require.Eventually(t, func() bool {
		b.PollCompletions(func(payload []byte) {
			got = append(got, payload)
		})
		return len(got) > 0
	}, 2*time.Second, time.Millisecond)

	require.Len(t, got, 1)
	assert.Equal(t, []byte("hello"), got[0])
}

func TestPollCompletionsDoesNotBlock(t *testing.T) {
	trans := newTestUDP(t, 0)

	start := time.Now()
	n := trans.PollCompletions(func([]byte) {})
	assert.Zero(t, n)
	assert.Less(t, time.Since(start), time.Second)
}

func TestServerSideSendsToClientRouting(t *testing.T) {
	srv := newTestUDP(t, 0)
	cli := newTestUDP(t, 0)

	session := sm.NewSession(sm.RoleServer, sm.StateConnected)
	session.Client.RoutingInfo = cli.RoutingInfo()

	require.NoError(t, srv.SendMessage(session, []byte("pong")))

	received := false
	require.Eventually(t, func() bool {
		cli.PollCompletions(func(payload []byte) {
			received = string(payload) == "pong"
		})
		return received
	}, 2*time.Second, time.Millisecond)
}
