package sm

import (
	"encoding/binary"
	"fmt"
)

// Wire layout of a session management packet (big-endian, fixed offsets):
//
//	pkt_type(4) + err_type(4) + client descriptor + server descriptor
//
// Each descriptor encodes as:
//
//	transport(1) + hostname(64) + app_tid(1) + phy_port(1) +
//	session_num(4) + start_seq(8) + routing_info(48)
const (
	metadataWireSize = 1 + MaxHostnameLen + 1 + 1 + 4 + 8 + RoutingInfoSize

	// PacketSize is the exact size of an encoded management packet. It must
	// stay below the management channel's single-datagram MTU (1400 bytes).
	PacketSize = 4 + 4 + 2*metadataWireSize
)

// Packet is a session management packet, sent by both client and server
// endpoints. Every packet carries both endpoint descriptors; each side
// fills in only its own descriptor before transmit.
type Packet struct {
	PktType PktType
	ErrType ErrType
	Client  SessionMetadata
	Server  SessionMetadata
}

// NewPacket returns a packet of the given type with both descriptors set
// to their invalid sentinels.
func NewPacket(pktType PktType) *Packet {
	return &Packet{
		PktType: pktType,
		ErrType: ErrNone,
		Client:  NewSessionMetadata(),
		Server:  NewSessionMetadata(),
	}
}

func marshalMetadata(buf []byte, m *SessionMetadata) {
	buf[0] = byte(m.TransportType)
	copy(buf[1:1+MaxHostnameLen], m.Hostname[:])
	buf[65] = m.AppTID
	buf[66] = m.PhyPort
	binary.BigEndian.PutUint32(buf[67:71], m.SessionNum)
	binary.BigEndian.PutUint64(buf[71:79], m.StartSeq)
	copy(buf[79:79+RoutingInfoSize], m.RoutingInfo[:])
}

func unmarshalMetadata(buf []byte, m *SessionMetadata) {
	m.TransportType = TransportType(buf[0])
	copy(m.Hostname[:], buf[1:1+MaxHostnameLen])
	m.AppTID = buf[65]
	m.PhyPort = buf[66]
	m.SessionNum = binary.BigEndian.Uint32(buf[67:71])
	m.StartSeq = binary.BigEndian.Uint64(buf[71:79])
	copy(m.RoutingInfo[:], buf[79:79+RoutingInfoSize])
}

// Marshal encodes the packet into its wire form.
func (p *Packet) Marshal() []byte {
	buf := make([]byte, PacketSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(p.PktType))
	binary.BigEndian.PutUint32(buf[4:8], uint32(p.ErrType))
	marshalMetadata(buf[8:8+metadataWireSize], &p.Client)
	marshalMetadata(buf[8+metadataWireSize:], &p.Server)
	return buf
}

// UnmarshalPacket decodes a management packet, rejecting wrong-size input
// and invalid enumeration values.
func UnmarshalPacket(data []byte) (*Packet, error) {
	if len(data) != PacketSize {
		return nil, fmt.Errorf("bad packet size %d, want %d", len(data), PacketSize)
	}

	p := &Packet{}
	p.PktType = PktType(binary.BigEndian.Uint32(data[0:4]))
	if !p.PktType.Valid() {
		return nil, fmt.Errorf("invalid packet type %d", uint32(p.PktType))
	}
	p.ErrType = ErrType(binary.BigEndian.Uint32(data[4:8]))
	if !p.ErrType.Valid() {
		return nil, fmt.Errorf("invalid error type %d", uint32(p.ErrType))
	}
	unmarshalMetadata(data[8:8+metadataWireSize], &p.Client)
	unmarshalMetadata(data[8+metadataWireSize:], &p.Server)
	return p, nil
}

// String returns a short loggable description of the packet.
func (p *Packet) String() string {
	return fmt.Sprintf("%s/%s client=%s server=%s",
		p.PktType, p.ErrType, p.Client.Name(), p.Server.Name())
}
