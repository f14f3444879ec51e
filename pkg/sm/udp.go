package sm

import (
	"fmt"
	"math/rand"
	"net"
	"strings"

	"github.com/ethercflow/eRPC/internal/logger"
)

// UDPConfig carries the management channel settings shared by a Nexus and
// the endpoints it hosts.
type UDPConfig struct {
	// MgmtPort is the cluster-wide management UDP port.
	MgmtPort int

	// DropProb is the probability with which an outbound management packet
	// is silently dropped before transmit. Used for fault injection; zero
	// in production.
	DropProb float64
}

// mgmtAddr resolves a descriptor hostname into a UDP dial address. A
// hostname may carry an explicit ":port" suffix overriding the cluster-wide
// management port.
func (c *UDPConfig) mgmtAddr(hostname string) string {
	if strings.Contains(hostname, ":") {
		return hostname
	}
	return fmt.Sprintf("%s:%d", hostname, c.MgmtPort)
}

// SendTo transmits the packet, as is, to the management port of
// dstHostname. The send is best-effort: datagram loss, and injected drops,
// are recovered by the retry engine.
func (p *Packet) SendTo(dstHostname string, cfg *UDPConfig) error {
	if cfg.DropProb > 0 && rand.Float64() < cfg.DropProb {
		logger.Debug("Dropping management packet (fault injection)",
			logger.KeyPktType, p.PktType.String(),
			logger.KeyRemoteHost, dstHostname)
		return nil
	}

	addr := cfg.mgmtAddr(dstHostname)
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial management %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	buf := p.Marshal()
	n, err := conn.Write(buf)
	if err != nil {
		return fmt.Errorf("send management packet to %s: %w", addr, err)
	}
	if n != len(buf) {
		return fmt.Errorf("short management send to %s: %d of %d bytes", addr, n, len(buf))
	}
	return nil
}

// SendRespMut sends the response to this management request, using the
// packet itself as the response buffer: it flips the packet type to the
// matching response and fills in the error type before transmit.
func (p *Packet) SendRespMut(errType ErrType, cfg *UDPConfig) error {
	if !p.PktType.IsReq() {
		return fmt.Errorf("cannot respond to non-request packet %s", p.PktType)
	}
	p.PktType = p.PktType.ReqToResp()
	p.ErrType = errType
	return p.SendTo(p.Client.HostnameString(), cfg)
}
