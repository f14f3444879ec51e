package nexus

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethercflow/eRPC/pkg/sm"
)

func startTestNexus(t *testing.T) *Nexus {
	t.Helper()

	nx, err := New(Config{URI: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(nx.Stop)
	return nx
}

// sendRaw writes raw bytes to the nexus management port.
func sendRaw(t *testing.T, nx *Nexus, data []byte) {
	t.Helper()

	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", nx.UDPConfig.MgmtPort))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write(data)
	require.NoError(t, err)
}

func connectReqFor(serverTID uint8, clientTID uint8) *sm.Packet {
	pkt := sm.NewPacket(sm.PktConnectReq)
	pkt.Client.TransportType = sm.TransportUDP
	pkt.Client.AppTID = clientTID
	pkt.Server.TransportType = sm.TransportUDP
	pkt.Server.AppTID = serverTID
	return pkt
}

func TestNewParsesURI(t *testing.T) {
	nx, err := New(Config{URI: "HostA.example.com:0"})
	require.NoError(t, err)
	defer nx.Stop()

	assert.Equal(t, "hosta.example.com", nx.Hostname)
	assert.NotZero(t, nx.UDPConfig.MgmtPort)
	assert.Equal(t, 1.0, nx.FreqGHz())
}

func TestNewRejectsBadURI(t *testing.T) {
	_, err := New(Config{URI: "no-port"})
	assert.Error(t, err)

	_, err = New(Config{URI: "host:notaport"})
	assert.Error(t, err)
}

func TestRegisterHookDuplicateTID(t *testing.T) {
	nx := startTestNexus(t)

	require.NoError(t, nx.RegisterHook(sm.NewHook(3)))
	assert.Error(t, nx.RegisterHook(sm.NewHook(3)))

	nx.DeregisterHook(3)
	assert.NoError(t, nx.RegisterHook(sm.NewHook(3)))
}

func TestRoutesRequestByServerTID(t *testing.T) {
	nx := startTestNexus(t)

	hook := sm.NewHook(7)
	require.NoError(t, nx.RegisterHook(hook))

	sendRaw(t, nx, connectReqFor(7, 3).Marshal())

	require.Eventually(t, func() bool { return hook.Pending() > 0 },
		2*time.Second, time.Millisecond)

	pkts := hook.Drain()
	require.Len(t, pkts, 1)
	assert.Equal(t, sm.PktConnectReq, pkts[0].PktType)
	assert.EqualValues(t, 3, pkts[0].Client.AppTID)
}

func TestRoutesResponseByClientTID(t *testing.T) {
	nx := startTestNexus(t)

	clientHook := sm.NewHook(3)
	serverHook := sm.NewHook(7)
	require.NoError(t, nx.RegisterHook(clientHook))
	require.NoError(t, nx.RegisterHook(serverHook))

	pkt := connectReqFor(7, 3)
	pkt.PktType = sm.PktConnectResp
	sendRaw(t, nx, pkt.Marshal())

	require.Eventually(t, func() bool { return clientHook.Pending() > 0 },
		2*time.Second, time.Millisecond)
	assert.EqualValues(t, 0, serverHook.Pending())
}

func TestDropsUnknownTIDAndMalformed(t *testing.T) {
	nx := startTestNexus(t)

	hook := sm.NewHook(7)
	require.NoError(t, nx.RegisterHook(hook))

	// Unregistered destination TID
	sendRaw(t, nx, connectReqFor(9, 3).Marshal())

	// Wrong size
	sendRaw(t, nx, make([]byte, 10))

	// Invalid packet type enum
	bad := connectReqFor(7, 3).Marshal()
	bad[3] = 0xff
	sendRaw(t, nx, bad)

	// A valid packet after the garbage still routes
	sendRaw(t, nx, connectReqFor(7, 3).Marshal())

	require.Eventually(t, func() bool { return hook.Pending() > 0 },
		2*time.Second, time.Millisecond)
	assert.Len(t, hook.Drain(), 1)
}

func TestStopIsIdempotent(t *testing.T) {
	nx, err := New(Config{URI: "127.0.0.1:0"})
	require.NoError(t, err)

	nx.Stop()
	nx.Stop()
}
