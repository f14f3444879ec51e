package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/ethercflow/eRPC/internal/logger"
	"github.com/ethercflow/eRPC/pkg/sm"
)

// defaultRingSize is the default number of sessions a UDP transport admits.
const defaultRingSize = 128

// maxDatagramSize bounds a single datapath datagram.
const maxDatagramSize = 65535

// UDPConfig configures a UDP datapath transport.
type UDPConfig struct {
	// Host is the address peers use to reach this transport, exported in
	// routing info. Empty defaults to the loopback address.
	Host string

	// Port is the local datapath port. Zero picks a random port.
	Port int

	// RingSize is the number of sessions the transport admits before
	// reporting ring exhaustion. Zero uses the default.
	RingSize int
}

// UDP is an unreliable datagram transport. It stands in for the RDMA
// fabric transports on deployments without one: no delivery or ordering
// guarantees, single-datagram messages.
//
// Its routing info is the transport's own UDP address, NUL-padded into the
// descriptor's opaque block.
type UDP struct {
	conn     *net.UDPConn
	host     string
	ringSize int
	admitted int
}

// NewUDP binds a UDP datapath socket and returns the transport.
func NewUDP(cfg UDPConfig) (*UDP, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen datapath UDP %s: %w", addr, err)
	}

	ringSize := cfg.RingSize
	if ringSize == 0 {
		ringSize = defaultRingSize
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	logger.Debug("UDP datapath transport bound", logger.KeyAddr, conn.LocalAddr().String())

	return &UDP{
		conn:     conn,
		host:     host,
		ringSize: ringSize,
	}, nil
}

// Kind returns sm.TransportUDP.
func (t *UDP) Kind() sm.TransportType { return sm.TransportUDP }

// RoutingInfo exports the local datapath UDP address.
func (t *UDP) RoutingInfo() [sm.RoutingInfoSize]byte {
	port := t.conn.LocalAddr().(*net.UDPAddr).Port
	var ri [sm.RoutingInfoSize]byte
	copy(ri[:], fmt.Sprintf("%s:%d", t.host, port))
	return ri
}

// routingAddr decodes a routing block into a UDP address.
func routingAddr(ri *[sm.RoutingInfoSize]byte) (*net.UDPAddr, error) {
	end := 0
	for end < len(ri) && ri[end] != 0 {
		end++
	}
	if end == 0 {
		return nil, fmt.Errorf("%w: empty routing info", ErrRoutingResolution)
	}
	addr, err := net.ResolveUDPAddr("udp", string(ri[:end]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoutingResolution, err)
	}
	return addr, nil
}

// ResolveRouting checks that the peer's routing block names a resolvable
// UDP address. The hostname is resolved as a side effect when the block
// carries a name instead of a literal address.
func (t *UDP) ResolveRouting(hostname string, ri *[sm.RoutingInfoSize]byte) error {
	if _, err := routingAddr(ri); err != nil {
		return fmt.Errorf("resolve routing for %s: %w", hostname, err)
	}
	return nil
}

// ReserveSessionResources admits one session, failing when the ring is full.
func (t *UDP) ReserveSessionResources() error {
	if t.admitted >= t.ringSize {
		return fmt.Errorf("%w: %d sessions admitted", ErrRingExhausted, t.admitted)
	}
	t.admitted++
	return nil
}

// FreeSessionResources releases one admitted session.
func (t *UDP) FreeSessionResources() {
	if t.admitted > 0 {
		t.admitted--
	}
}

// SendResolveSessionMsg is a no-op for UDP.
func (t *UDP) SendResolveSessionMsg(session *sm.Session) error { return nil }

// SendMessage transmits one datagram to the session peer's routing address.
func (t *UDP) SendMessage(session *sm.Session, payload []byte) error {
	if len(payload) > maxDatagramSize {
		return fmt.Errorf("payload size %d exceeds datagram limit", len(payload))
	}

	peer := &session.Server
	if session.IsServer() {
		peer = &session.Client
	}

	addr, err := routingAddr(&peer.RoutingInfo)
	if err != nil {
		return err
	}
	if _, err := t.conn.WriteToUDP(payload, addr); err != nil {
		return fmt.Errorf("datapath send to %s: %w", addr, err)
	}
	return nil
}

// PollCompletions drains every datagram already queued on the socket. The
// read deadline is set in the past so the poll never blocks.
func (t *UDP) PollCompletions(fn func(payload []byte)) int {
	n := 0
	buf := make([]byte, maxDatagramSize)
	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(-time.Millisecond)); err != nil {
			return n
		}
		size, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			return n
		}
		payload := make([]byte, size)
		copy(payload, buf[:size])
		fn(payload)
		n++
	}
}

// Close shuts down the datapath socket.
func (t *UDP) Close() error {
	return t.conn.Close()
}
