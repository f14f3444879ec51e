package sm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadata(t *testing.T, hostname string, appTID uint8, sessionNum uint32) SessionMetadata {
	t.Helper()

	md := NewSessionMetadata()
	md.TransportType = TransportUDP
	require.NoError(t, md.SetHostname(hostname))
	md.AppTID = appTID
	md.PhyPort = 0
	md.SessionNum = sessionNum
	md.StartSeq = 0x0000_1234_5678_9abc
	copy(md.RoutingInfo[:], "10.0.0.1:31850")
	return md
}

func TestPacketSizeBelowMTU(t *testing.T) {
	// Single-datagram control channel assumption
	assert.Less(t, PacketSize, 1400)
	assert.Len(t, NewPacket(PktConnectReq).Marshal(), PacketSize)
}

func TestPacketRoundTrip(t *testing.T) {
	pkt := NewPacket(PktConnectReq)
	pkt.Client = testMetadata(t, "hosta", 3, 11)
	pkt.Server = testMetadata(t, "hostb", 7, InvalidSessionNum)

	decoded, err := UnmarshalPacket(pkt.Marshal())
	require.NoError(t, err)

	assert.Equal(t, PktConnectReq, decoded.PktType)
	assert.Equal(t, ErrNone, decoded.ErrType)
	assert.True(t, decoded.Client.SameEndpoint(&pkt.Client))
	assert.True(t, decoded.Server.SameEndpoint(&pkt.Server))
	assert.Equal(t, pkt.Client.StartSeq, decoded.Client.StartSeq)
	assert.Equal(t, pkt.Client.RoutingInfo, decoded.Client.RoutingInfo)
	assert.Equal(t, pkt.Server.PhyPort, decoded.Server.PhyPort)
}

func TestUnmarshalRejectsBadSize(t *testing.T) {
	_, err := UnmarshalPacket(make([]byte, PacketSize-1))
	assert.Error(t, err)

	_, err = UnmarshalPacket(make([]byte, PacketSize+1))
	assert.Error(t, err)

	_, err = UnmarshalPacket(nil)
	assert.Error(t, err)
}

func TestUnmarshalRejectsInvalidEnums(t *testing.T) {
	pkt := NewPacket(PktConnectReq)
	buf := pkt.Marshal()

	binary.BigEndian.PutUint32(buf[0:4], 99)
	_, err := UnmarshalPacket(buf)
	assert.Error(t, err)

	binary.BigEndian.PutUint32(buf[0:4], uint32(PktConnectResp))
	binary.BigEndian.PutUint32(buf[4:8], 99)
	_, err = UnmarshalPacket(buf)
	assert.Error(t, err)
}

func TestSendRespMutRejectsNonRequest(t *testing.T) {
	pkt := NewPacket(PktConnectResp)

	// Responding to a response is a programming error
	err := pkt.SendRespMut(ErrNone, &UDPConfig{MgmtPort: 1})
	assert.Error(t, err)
}
