// Package nexus implements the per-process rendezvous point of the RPC
// substrate. The Nexus owns the management UDP socket and routes inbound
// session management packets to per-thread RPC endpoints by their app TID.
package nexus

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ethercflow/eRPC/internal/logger"
	"github.com/ethercflow/eRPC/pkg/metrics"
	"github.com/ethercflow/eRPC/pkg/sm"
	"github.com/ethercflow/eRPC/pkg/timing"
)

// readDeadline is how long the receive loop blocks before re-checking for
// shutdown.
const readDeadline = 500 * time.Millisecond

// Config configures a Nexus.
type Config struct {
	// URI is the local management endpoint as "host:port". The host names
	// this machine to its peers; the port is the cluster-wide management
	// UDP port.
	URI string

	// DropProb is the probability with which outbound management packets
	// are dropped before transmit. Fault injection only; zero in
	// production.
	DropProb float64

	// Clock overrides the monotonic cycle clock. Nil uses the default.
	Clock timing.Clock

	// Metrics enables management-plane metrics collection. Nil disables.
	Metrics metrics.SMMetrics
}

// Nexus is the per-process rendezvous point shared by every RPC endpoint
// of the process. It runs a dedicated receive goroutine for the management
// socket; endpoints consume their packets through registered hooks.
type Nexus struct {
	// ID identifies this Nexus instance in logs.
	ID uuid.UUID

	// Hostname is the normalized local management hostname.
	Hostname string

	// UDPConfig is shared with the endpoints for outbound management sends.
	UDPConfig sm.UDPConfig

	// Clock is the monotonic cycle clock shared by all endpoints.
	Clock timing.Clock

	conn    *net.UDPConn
	metrics metrics.SMMetrics

	hooksMu sync.RWMutex
	hooks   map[uint8]*sm.Hook

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New creates a Nexus listening on the management UDP port of cfg.URI and
// starts its receive loop.
func New(cfg Config) (*Nexus, error) {
	host, portStr, err := net.SplitHostPort(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("parse nexus URI %q: %w", cfg.URI, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("parse nexus URI %q: bad port %q", cfg.URI, portStr)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen management UDP :%d: %w", port, err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = timing.NewMonotonicClock()
	}

	n := &Nexus{
		ID:       uuid.New(),
		Hostname: sm.NormalizeHostname(host),
		UDPConfig: sm.UDPConfig{
			MgmtPort: conn.LocalAddr().(*net.UDPAddr).Port,
			DropProb: cfg.DropProb,
		},
		Clock:    clock,
		conn:     conn,
		metrics:  cfg.Metrics,
		hooks:    make(map[uint8]*sm.Hook),
		shutdown: make(chan struct{}),
	}

	logger.Info("Nexus started",
		logger.KeyNexusID, n.ID.String(),
		logger.KeyHostname, n.Hostname,
		logger.KeyAddr, conn.LocalAddr().String())

	n.wg.Add(1)
	go n.receiveLoop()

	return n, nil
}

// FreqGHz returns the cycle clock frequency for converting cycle counts to
// wall time.
func (n *Nexus) FreqGHz() float64 {
	return n.Clock.FreqGHz()
}

// RegisterHook attaches an endpoint's hook under its app TID. It fails if
// the TID is already bound.
func (n *Nexus) RegisterHook(hook *sm.Hook) error {
	n.hooksMu.Lock()
	defer n.hooksMu.Unlock()

	if _, ok := n.hooks[hook.AppTID]; ok {
		return fmt.Errorf("app TID %d already registered", hook.AppTID)
	}
	n.hooks[hook.AppTID] = hook
	return nil
}

// DeregisterHook detaches the hook bound to appTID. Future packets for the
// TID are dropped.
func (n *Nexus) DeregisterHook(appTID uint8) {
	n.hooksMu.Lock()
	delete(n.hooks, appTID)
	n.hooksMu.Unlock()
}

func (n *Nexus) lookupHook(appTID uint8) *sm.Hook {
	n.hooksMu.RLock()
	defer n.hooksMu.RUnlock()
	return n.hooks[appTID]
}

// receiveLoop reads fixed-size management packets from the management
// socket and appends each to the hook of its destination endpoint.
func (n *Nexus) receiveLoop() {
	defer n.wg.Done()

	buf := make([]byte, sm.PacketSize+1)

	for {
		select {
		case <-n.shutdown:
			return
		default:
		}

		// Short deadline so shutdown is noticed promptly
		if err := n.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			select {
			case <-n.shutdown:
				return
			default:
				logger.Debug("Nexus: set read deadline error", logger.KeyError, err)
				continue
			}
		}

		size, clientAddr, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-n.shutdown:
				return
			default:
				logger.Debug("Nexus: management read error", logger.KeyError, err)
				continue
			}
		}

		pkt, err := sm.UnmarshalPacket(buf[:size])
		if err != nil {
			logger.Warn("Nexus: dropping malformed management packet",
				logger.KeyNexusID, n.ID.String(),
				logger.KeyClientAddr, clientAddr.String(),
				logger.KeySize, size,
				logger.KeyError, err)
			if n.metrics != nil {
				n.metrics.RecordPacketDropped("malformed")
			}
			continue
		}

		// Requests are addressed by the server descriptor, responses by
		// the client descriptor: the destination is always the side the
		// sender did not fill in for itself.
		dstTID := pkt.Client.AppTID
		if pkt.PktType.IsReq() {
			dstTID = pkt.Server.AppTID
		}

		hook := n.lookupHook(dstTID)
		if hook == nil {
			logger.Warn("Nexus: dropping packet for unregistered app TID",
				logger.KeyNexusID, n.ID.String(),
				logger.KeyAppTID, dstTID,
				logger.KeyPktType, pkt.PktType.String(),
				logger.KeyClientAddr, clientAddr.String())
			if n.metrics != nil {
				n.metrics.RecordPacketDropped("unknown_app_tid")
			}
			continue
		}

		hook.Enqueue(pkt)
		if n.metrics != nil {
			n.metrics.RecordPacketRouted(pkt.PktType.String())
		}
	}
}

// Addr returns the management socket's local address.
func (n *Nexus) Addr() string {
	return n.conn.LocalAddr().String()
}

// Stop shuts down the receive loop and closes the management socket. It
// waits for the receive goroutine to exit.
func (n *Nexus) Stop() {
	n.shutdownOnce.Do(func() {
		close(n.shutdown)
		_ = n.conn.Close()
	})
	n.wg.Wait()
}
