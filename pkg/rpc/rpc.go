// Package rpc implements the per-thread RPC endpoint: the owner of a set
// of sessions, the driver of their management state machines, and the
// issuer of session events to the application.
//
// An Rpc is pinned to the thread that runs its event loop. Its session
// vector and retry queue are never shared; the only cross-thread handoff
// is the hook it registers with the per-process Nexus.
package rpc

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/ethercflow/eRPC/internal/logger"
	"github.com/ethercflow/eRPC/pkg/metrics"
	"github.com/ethercflow/eRPC/pkg/nexus"
	"github.com/ethercflow/eRPC/pkg/sm"
	"github.com/ethercflow/eRPC/pkg/transport"
)

const (
	// SessionMgmtRetransMs is the retransmission interval for in-flight
	// management requests.
	SessionMgmtRetransMs = 5

	// SessionMgmtTimeoutMs is the absolute deadline for a connect request.
	// A session still in connect-in-progress past this bound moves to the
	// error state and the application sees a connect-failed event.
	SessionMgmtTimeoutMs = 50

	// MaxPhyPorts is the maximum number of fabric ports one endpoint can
	// manage.
	MaxPhyPorts = 16

	// startSeqMask keeps 48 significant bits in a start sequence number.
	startSeqMask = (uint64(1) << 48) - 1
)

// SessionMgmtHandler is the application callback for session management
// events. It runs inline on the endpoint's thread, from inside the event
// loop.
type SessionMgmtHandler func(session *sm.Session, event sm.EventType, errType sm.ErrType, context any)

// Rpc is a per-thread RPC endpoint.
type Rpc struct {
	nexus   *nexus.Nexus
	context any
	appTID  uint8
	handler SessionMgmtHandler
	trans   transport.Transport
	m       metrics.SMMetrics

	phyPorts []uint8

	// sessionVec is append-only and indexed by local session number.
	// Buried sessions leave a nil tombstone; indices are never reused.
	sessionVec []*sm.Session

	// retryQueue holds the client sessions with an in-flight management
	// request.
	retryQueue []*sm.Session

	hook *sm.Hook

	// msgHandler receives datapath payloads from PollCompletions.
	msgHandler func(payload []byte)

	openSessions int
}

// New creates an RPC endpoint owned by the calling thread and registers it
// with the Nexus under appTID. handler receives all session management
// events for sessions created by, or admitted to, this endpoint; context is
// passed back opaquely on every event.
func New(nx *nexus.Nexus, context any, appTID uint8, handler SessionMgmtHandler,
	trans transport.Transport, phyPorts []uint8, m metrics.SMMetrics) (*Rpc, error) {

	if nx == nil {
		return nil, fmt.Errorf("nil nexus")
	}
	if handler == nil {
		return nil, fmt.Errorf("nil session management handler")
	}
	if trans == nil {
		return nil, fmt.Errorf("nil transport")
	}
	if !trans.Kind().Valid() {
		return nil, fmt.Errorf("invalid transport kind %d", trans.Kind())
	}
	if len(phyPorts) == 0 || len(phyPorts) > MaxPhyPorts {
		return nil, fmt.Errorf("bad fabric port count %d", len(phyPorts))
	}

	r := &Rpc{
		nexus:    nx,
		context:  context,
		appTID:   appTID,
		handler:  handler,
		trans:    trans,
		m:        m,
		phyPorts: append([]uint8(nil), phyPorts...),
		hook:     sm.NewHook(appTID),
	}

	if err := nx.RegisterHook(r.hook); err != nil {
		return nil, fmt.Errorf("register endpoint hook: %w", err)
	}

	logger.Info("RPC endpoint created",
		logger.KeyNexusID, nx.ID.String(),
		logger.KeyHostname, r.localHostname(),
		logger.KeyAppTID, appTID)

	return r, nil
}

// Close deregisters the endpoint from the Nexus. Packets still in flight
// for this endpoint are dropped by the Nexus afterwards.
func (r *Rpc) Close() {
	r.nexus.DeregisterHook(r.appTID)
}

// AppTID returns the endpoint's application-level thread ID.
func (r *Rpc) AppTID() uint8 { return r.appTID }

// localHostname is the management hostname peers use to reach this
// endpoint. It carries the explicit management port so that replies route
// back to this process's Nexus even with several per-process Nexuses on
// one machine.
func (r *Rpc) localHostname() string {
	return fmt.Sprintf("%s:%d", r.nexus.Hostname, r.nexus.UDPConfig.MgmtPort)
}

// name returns the loggable hostname and app TID of this endpoint.
func (r *Rpc) name() string {
	return fmt.Sprintf("[H: %s, R: %d]", r.localHostname(), r.appTID)
}

// isPhyPortManaged checks if the fabric port index is managed by this
// endpoint.
func (r *Rpc) isPhyPortManaged(port uint8) bool {
	for _, p := range r.phyPorts {
		if p == port {
			return true
		}
	}
	return false
}

// generateStartSeq draws a session's start sequence number from a slow,
// high-quality random source, masked to 48 significant bits. Start
// sequences are independent on the two sides; the connect handshake
// exchanges them.
func (r *Rpc) generateStartSeq() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// The platform CSPRNG does not fail on any supported target.
		panic(fmt.Sprintf("read random start seq: %v", err))
	}
	return binary.BigEndian.Uint64(buf[:]) & startSeqMask
}

// sessionByNum returns the live session with the given local session
// number, or nil if the number is out of range or the slot is a tombstone.
func (r *Rpc) sessionByNum(sessionNum uint32) *sm.Session {
	if sessionNum >= uint32(len(r.sessionVec)) {
		return nil
	}
	return r.sessionVec[sessionNum]
}

// isSessionPtrClient checks that session is a live client session owned by
// this endpoint.
func (r *Rpc) isSessionPtrClient(session *sm.Session) bool {
	if session == nil || !session.IsClient() {
		return false
	}
	return r.sessionByNum(session.Client.SessionNum) == session
}

// isSessionPtrServer checks that session is a live server session owned by
// this endpoint.
func (r *Rpc) isSessionPtrServer(session *sm.Session) bool {
	if session == nil || !session.IsServer() {
		return false
	}
	return r.sessionByNum(session.Server.SessionNum) == session
}

// burySession tombstones the session's slot. The slot index is never
// reused; the vector grows by one pointer per session ever created.
func (r *Rpc) burySession(session *sm.Session) {
	num := session.LocalSessionNum()
	if r.sessionVec[num] != session {
		return
	}
	r.sessionVec[num] = nil
	r.openSessions--

	if session.IsServer() {
		r.trans.FreeSessionResources()
	}

	if r.m != nil {
		r.m.SetOpenSessions(r.appTID, r.openSessions)
	}

	logger.Debug("Session buried",
		logger.KeyAppTID, r.appTID,
		logger.KeySessionNum, num,
		logger.KeyRole, session.Role.String())
}

// invokeHandler delivers one session event to the application, inline on
// the endpoint's thread.
func (r *Rpc) invokeHandler(session *sm.Session, event sm.EventType, errType sm.ErrType) {
	if r.m != nil {
		r.m.RecordSessionEvent(event.String(), errType.String())
	}
	r.handler(session, event, errType, r.context)
}

// fillLocalMetadata fills md as a descriptor of this endpoint on the given
// fabric port, minus the session number and start sequence.
func (r *Rpc) fillLocalMetadata(md *sm.SessionMetadata, phyPort uint8) error {
	md.TransportType = r.trans.Kind()
	if err := md.SetHostname(r.localHostname()); err != nil {
		return err
	}
	md.AppTID = r.appTID
	md.PhyPort = phyPort
	md.RoutingInfo = r.trans.RoutingInfo()
	return nil
}
