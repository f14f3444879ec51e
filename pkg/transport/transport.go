// Package transport defines the datapath capability consumed by an RPC
// endpoint, and a concrete unreliable UDP datagram implementation.
//
// The session management core only needs a small surface from a transport:
// its kind, its exported routing info, peer routing resolution, per-session
// resource admission, and the datapath send/poll pair driven from the event
// loop.
package transport

import (
	"errors"

	"github.com/ethercflow/eRPC/pkg/sm"
)

// Errors reported by transports during session admission and routing
// resolution. The endpoint maps these onto wire error types.
var (
	ErrRingExhausted     = errors.New("transport ring buffers exhausted")
	ErrRoutingResolution = errors.New("routing info resolution failed")
)

// Transport is the datapath capability set. Implementations are owned by
// exactly one RPC endpoint and are not safe for concurrent use.
type Transport interface {
	// Kind returns the transport kind carried in endpoint descriptors.
	Kind() sm.TransportType

	// RoutingInfo returns the opaque routing block identifying this
	// transport endpoint, copied verbatim into descriptors.
	RoutingInfo() [sm.RoutingInfoSize]byte

	// ResolveRouting validates and resolves a peer's routing block, as
	// exchanged during the connect handshake. Returns an error wrapping
	// ErrRoutingResolution if the block cannot be resolved.
	ResolveRouting(hostname string, ri *[sm.RoutingInfoSize]byte) error

	// ReserveSessionResources admits one more session onto the transport.
	// Returns an error wrapping ErrRingExhausted when the transport has no
	// resources left.
	ReserveSessionResources() error

	// FreeSessionResources releases the resources of one admitted session.
	FreeSessionResources()

	// SendResolveSessionMsg is an advisory pre-connect message; transports
	// that need no resolution treat it as a no-op.
	SendResolveSessionMsg(session *sm.Session) error

	// SendMessage transmits one datapath message on the session.
	SendMessage(session *sm.Session, payload []byte) error

	// PollCompletions drains pending datapath completions, invoking fn for
	// each received payload. It never blocks; it returns the number of
	// completions processed.
	PollCompletions(fn func(payload []byte)) int

	// Close releases the transport's resources.
	Close() error
}
