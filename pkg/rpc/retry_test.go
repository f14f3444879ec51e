package rpc

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethercflow/eRPC/pkg/sm"
	"github.com/ethercflow/eRPC/pkg/timing"
)

// rawPeer is a bare UDP socket standing in for a remote management plane.
// It lets tests observe and forge packets without a real peer endpoint.
type rawPeer struct {
	conn *net.UDPConn
}

func newRawPeer(t *testing.T) *rawPeer {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &rawPeer{conn: conn}
}

func (p *rawPeer) hostname() string {
	return fmt.Sprintf("127.0.0.1:%d", p.conn.LocalAddr().(*net.UDPAddr).Port)
}

// readPkt blocks until one management packet arrives or the timeout fires.
func (p *rawPeer) readPkt(t *testing.T, timeout time.Duration) *sm.Packet {
	t.Helper()

	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(timeout)))
	buf := make([]byte, sm.PacketSize+1)
	n, _, err := p.conn.ReadFromUDP(buf)
	require.NoError(t, err, "no management packet before timeout")

	pkt, err := sm.UnmarshalPacket(buf[:n])
	require.NoError(t, err)
	return pkt
}

// tryReadPkt is readPkt without the failure: a timeout returns nil.
func (p *rawPeer) tryReadPkt(t *testing.T, timeout time.Duration) *sm.Packet {
	t.Helper()

	if err := p.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil
	}
	buf := make([]byte, sm.PacketSize+1)
	n, _, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		return nil
	}
	pkt, err := sm.UnmarshalPacket(buf[:n])
	require.NoError(t, err)
	return pkt
}

// TestConnectRetransmit drops the first connect request on the floor (the
// peer never answers) and checks that the request is retransmitted after
// the retry interval, then that a late response still completes the
// handshake exactly once.
func TestConnectRetransmit(t *testing.T) {
	clock := timing.NewManualClock()
	client := newTestEndpoint(t, 3, clock, 0)
	peer := newRawPeer(t)

	session, err := client.rpc.CreateSession(0, peer.hostname(), 7, 0)
	require.NoError(t, err)

	req1 := peer.readPkt(t, time.Second)
	assert.Equal(t, sm.PktConnectReq, req1.PktType)
	assert.EqualValues(t, 0, req1.Client.SessionNum)

	// Below the retry interval nothing is resent
	clock.Advance(2 * time.Millisecond)
	client.rpc.RunEventLoopOnce()

	clock.Advance(4 * time.Millisecond)
	client.rpc.RunEventLoopOnce()

	req2 := peer.readPkt(t, time.Second)
	assert.Equal(t, sm.PktConnectReq, req2.PktType)
	assert.True(t, req2.Client.SameEndpoint(&req1.Client))

	// Answer the retried request
	resp := req2
	resp.PktType = sm.PktConnectResp
	resp.ErrType = sm.ErrNone
	resp.Server.SessionNum = 0
	resp.Server.StartSeq = 42
	require.NoError(t, resp.Server.SetHostname(peer.hostname()))
	copy(resp.Server.RoutingInfo[:], peer.hostname())
	require.NoError(t, resp.SendTo(resp.Client.HostnameString(), &sm.UDPConfig{}))

	deadline := time.Now().Add(2 * time.Second)
	for len(client.events) == 0 && time.Now().Before(deadline) {
		client.rpc.RunEventLoopOnce()
		time.Sleep(100 * time.Microsecond)
	}

	require.Len(t, client.events, 1)
	assert.Equal(t, sm.EventConnected, client.events[0].event)
	assert.True(t, client.rpc.IsConnected(session))
	assert.EqualValues(t, 42, session.Server.StartSeq)
}

// TestConnectTimeout covers the unreachable-peer scenario: retries stop at
// the absolute deadline and the session is parked in the error state.
func TestConnectTimeout(t *testing.T) {
	clock := timing.NewManualClock()
	client := newTestEndpoint(t, 3, clock, 0)
	peer := newRawPeer(t)

	session, err := client.rpc.CreateSession(0, peer.hostname(), 255, 0)
	require.NoError(t, err)

	// Let a few retries happen before the deadline
	for i := 0; i < 4; i++ {
		clock.Advance(10 * time.Millisecond)
		client.rpc.RunEventLoopOnce()
	}
	assert.Empty(t, client.events)
	assert.Equal(t, sm.StateConnectInProgress, session.State)

	clock.Advance(15 * time.Millisecond)
	client.rpc.RunEventLoopOnce()

	require.Len(t, client.events, 1)
	assert.Equal(t, sm.EventConnectFailed, client.events[0].event)
	assert.Equal(t, sm.ErrConnectTimeout, client.events[0].errType)
	assert.Equal(t, sm.StateError, session.State)

	// No further retries once the session left the queue
	clock.Advance(20 * time.Millisecond)
	client.rpc.RunEventLoopOnce()
	assert.Len(t, client.events, 1)

	// Disposing of an errored session delivers the disconnected event
	// synchronously and tombstones the slot.
	require.True(t, client.rpc.DestroySession(session))
	require.Len(t, client.events, 2)
	assert.Equal(t, sm.EventDisconnected, client.events[1].event)
	assert.Nil(t, client.rpc.sessionVec[0])
}

// TestDestroyWhileConnectInProgress: a session with a connect in flight
// cannot be destroyed.
func TestDestroyWhileConnectInProgress(t *testing.T) {
	clock := timing.NewManualClock()
	client := newTestEndpoint(t, 3, clock, 0)
	peer := newRawPeer(t)

	session, err := client.rpc.CreateSession(0, peer.hostname(), 7, 0)
	require.NoError(t, err)

	assert.False(t, client.rpc.DestroySession(session))
	assert.Equal(t, sm.StateConnectInProgress, session.State)
	assert.True(t, client.rpc.retryQueueContains(session))
	assert.Empty(t, client.events)
}

// TestDisconnectRetransmit: a lost disconnect request is retried until the
// response arrives.
func TestDisconnectRetransmit(t *testing.T) {
	clock := timing.NewManualClock()
	client := newTestEndpoint(t, 3, clock, 0)
	peer := newRawPeer(t)

	session, err := client.rpc.CreateSession(0, peer.hostname(), 7, 0)
	require.NoError(t, err)

	// Complete the handshake by hand
	req := peer.readPkt(t, time.Second)
	req.PktType = sm.PktConnectResp
	req.Server.SessionNum = 4
	req.Server.StartSeq = 1
	require.NoError(t, req.Server.SetHostname(peer.hostname()))
	require.NoError(t, req.SendTo(req.Client.HostnameString(), &sm.UDPConfig{}))

	deadline := time.Now().Add(2 * time.Second)
	for !client.rpc.IsConnected(session) && time.Now().Before(deadline) {
		client.rpc.RunEventLoopOnce()
		time.Sleep(100 * time.Microsecond)
	}
	require.True(t, client.rpc.IsConnected(session))

	require.True(t, client.rpc.DestroySession(session))
	disc1 := peer.readPkt(t, time.Second)
	assert.Equal(t, sm.PktDisconnectReq, disc1.PktType)

	clock.Advance(6 * time.Millisecond)
	client.rpc.RunEventLoopOnce()
	disc2 := peer.readPkt(t, time.Second)
	assert.Equal(t, sm.PktDisconnectReq, disc2.PktType)
	assert.EqualValues(t, 4, disc2.Server.SessionNum)

	// Unlike connects, disconnects keep retrying past the connect
	// deadline; the peer resolves every race eventually.
	clock.Advance(100 * time.Millisecond)
	client.rpc.RunEventLoopOnce()
	disc3 := peer.readPkt(t, time.Second)
	assert.Equal(t, sm.PktDisconnectReq, disc3.PktType)

	disc3.PktType = sm.PktDisconnectResp
	require.NoError(t, disc3.SendTo(disc3.Client.HostnameString(), &sm.UDPConfig{}))

	deadline = time.Now().Add(2 * time.Second)
	for len(client.events) < 2 && time.Now().Before(deadline) {
		client.rpc.RunEventLoopOnce()
		time.Sleep(100 * time.Microsecond)
	}

	require.Len(t, client.events, 2)
	assert.Equal(t, sm.EventDisconnected, client.events[1].event)
	assert.Nil(t, client.rpc.sessionVec[0])
}
