// Package sm defines the session-management data model: endpoint
// descriptors, session state, the management wire packet, and the hook
// structure shared between a Nexus and one RPC endpoint.
package sm

import (
	"fmt"
	"math"
	"strings"
)

const (
	// MaxSessionsPerThread is the maximum number of sessions (both as client
	// and server) that one RPC endpoint can create through its lifetime.
	MaxSessionsPerThread = 1024

	// MaxHostnameLen bounds the hostname field of an endpoint descriptor,
	// including an optional ":port" suffix.
	MaxHostnameLen = 64

	// RoutingInfoSize is the size of the opaque routing block that a
	// transport exports into an endpoint descriptor.
	RoutingInfoSize = 48
)

// Invalid sentinel values filled into fresh descriptors to aid debugging.
const (
	InvalidAppTID     uint8  = math.MaxUint8
	InvalidPhyPort    uint8  = math.MaxUint8
	InvalidSessionNum uint32 = math.MaxUint32
	InvalidStartSeq   uint64 = math.MaxUint64
)

// TransportType enumerates the datapath transport kinds.
type TransportType uint8

const (
	TransportInvalid TransportType = iota
	TransportUDP
	TransportInfiniBand
)

func (t TransportType) String() string {
	switch t {
	case TransportUDP:
		return "udp"
	case TransportInfiniBand:
		return "infiniband"
	default:
		return "invalid"
	}
}

// Valid reports whether t names a real transport kind.
func (t TransportType) Valid() bool {
	return t == TransportUDP || t == TransportInfiniBand
}

// SessionState is the management state of a session. It only moves forward.
type SessionState int

const (
	StateConnectInProgress SessionState = iota
	StateConnected                      // the only state for server-side sessions
	StateDisconnectInProgress
	StateDisconnected // transient state, held only during the disconnected callback
	StateError        // reachable only from client-side StateConnectInProgress
)

func (s SessionState) String() string {
	switch s {
	case StateConnectInProgress:
		return "connect-in-progress"
	case StateConnected:
		return "connected"
	case StateDisconnectInProgress:
		return "disconnect-in-progress"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "invalid"
	}
}

// EventType is a session management event delivered to the application.
type EventType int

const (
	EventConnected EventType = iota
	EventConnectFailed
	EventDisconnected
	EventDisconnectFailed
)

func (e EventType) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventConnectFailed:
		return "connect-failed"
	case EventDisconnected:
		return "disconnected"
	case EventDisconnectFailed:
		return "disconnect-failed"
	default:
		return "invalid"
	}
}

// PktType is the kind of a session management packet.
type PktType uint32

const (
	PktConnectReq PktType = iota + 1
	PktConnectResp
	PktDisconnectReq
	PktDisconnectResp
)

func (p PktType) String() string {
	switch p {
	case PktConnectReq:
		return "connect-req"
	case PktConnectResp:
		return "connect-resp"
	case PktDisconnectReq:
		return "disconnect-req"
	case PktDisconnectResp:
		return "disconnect-resp"
	default:
		return "invalid"
	}
}

// Valid reports whether p is a known packet type.
func (p PktType) Valid() bool {
	return p >= PktConnectReq && p <= PktDisconnectResp
}

// IsReq reports whether p is a request.
func (p PktType) IsReq() bool {
	return p == PktConnectReq || p == PktDisconnectReq
}

// ReqToResp returns the response type matching a request type.
func (p PktType) ReqToResp() PktType {
	switch p {
	case PktConnectReq:
		return PktConnectResp
	case PktDisconnectReq:
		return PktDisconnectResp
	default:
		return p
	}
}

// ErrType is the error carried by a management response. It is meaningful
// only on responses; requests carry ErrNone.
type ErrType uint32

const (
	ErrNone ErrType = iota
	ErrSrvDisconnected
	ErrRingExhausted
	ErrOutOfMemory
	ErrRoutingResolutionFailure
	ErrInvalidRemoteRpcID
	ErrInvalidTransport

	// ErrConnectTimeout is generated locally when a connect request exceeds
	// SessionMgmtTimeoutMs without a response. It is never sent on the wire.
	ErrConnectTimeout
)

func (e ErrType) String() string {
	switch e {
	case ErrNone:
		return "no-error"
	case ErrSrvDisconnected:
		return "server-disconnected"
	case ErrRingExhausted:
		return "ring-exhausted"
	case ErrOutOfMemory:
		return "out-of-memory"
	case ErrRoutingResolutionFailure:
		return "routing-resolution-failure"
	case ErrInvalidRemoteRpcID:
		return "invalid-remote-rpc-id"
	case ErrInvalidTransport:
		return "invalid-transport"
	case ErrConnectTimeout:
		return "connect-timeout"
	default:
		return "invalid"
	}
}

// Valid reports whether e is a known wire error type.
func (e ErrType) Valid() bool {
	return e <= ErrInvalidTransport
}

// SessionMetadata describes one endpoint of a session. It is a flat,
// fixed-size record; two descriptors identify the same endpoint iff their
// hostname, app TID, and session number match.
type SessionMetadata struct {
	TransportType TransportType
	Hostname      [MaxHostnameLen]byte
	AppTID        uint8
	PhyPort       uint8
	SessionNum    uint32
	StartSeq      uint64
	RoutingInfo   [RoutingInfoSize]byte
}

// NewSessionMetadata returns a descriptor with all fields set to their
// invalid sentinels.
func NewSessionMetadata() SessionMetadata {
	return SessionMetadata{
		TransportType: TransportInvalid,
		AppTID:        InvalidAppTID,
		PhyPort:       InvalidPhyPort,
		SessionNum:    InvalidSessionNum,
		StartSeq:      InvalidStartSeq,
	}
}

// NormalizeHostname lower-cases and trims a hostname before storage.
func NormalizeHostname(hostname string) string {
	return strings.ToLower(strings.TrimSpace(hostname))
}

// SetHostname normalizes and stores hostname. It fails if the normalized
// name does not fit the descriptor's hostname field.
func (m *SessionMetadata) SetHostname(hostname string) error {
	normalized := NormalizeHostname(hostname)
	if len(normalized) == 0 {
		return fmt.Errorf("empty hostname")
	}
	if len(normalized) >= MaxHostnameLen {
		return fmt.Errorf("hostname %q exceeds %d bytes", normalized, MaxHostnameLen-1)
	}
	m.Hostname = [MaxHostnameLen]byte{}
	copy(m.Hostname[:], normalized)
	return nil
}

// HostnameString returns the stored hostname up to the first NUL.
func (m *SessionMetadata) HostnameString() string {
	for i, b := range m.Hostname {
		if b == 0 {
			return string(m.Hostname[:i])
		}
	}
	return string(m.Hostname[:])
}

// SameEndpoint compares the identity fields of two descriptors: hostname,
// app TID, and session number. Fabric port, start sequence, and routing
// info are not part of identity.
func (m *SessionMetadata) SameEndpoint(other *SessionMetadata) bool {
	return m.Hostname == other.Hostname &&
		m.AppTID == other.AppTID &&
		m.SessionNum == other.SessionNum
}

// Name returns a loggable name for this session endpoint with its hostname,
// endpoint TID, and session number.
func (m *SessionMetadata) Name() string {
	sessionNum := "XX"
	if m.SessionNum != InvalidSessionNum {
		sessionNum = fmt.Sprintf("%d", m.SessionNum)
	}
	return fmt.Sprintf("[H: %s, R: %d, S: %s]", m.HostnameString(), m.AppTID, sessionNum)
}

// RpcName returns a loggable name for the endpoint hosting this descriptor,
// without the session number.
func (m *SessionMetadata) RpcName() string {
	return fmt.Sprintf("[H: %s, R: %d]", m.HostnameString(), m.AppTID)
}
