package sm

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// Hook is the handoff structure between the per-process Nexus (producer)
// and one RPC endpoint (consumer). The Nexus appends inbound management
// packets addressed to the endpoint's app TID; the endpoint drains them
// from its event loop.
//
// The pending counter is readable without the mutex for a fast "no work"
// check; the actual queue is only touched under the mutex.
type Hook struct {
	// AppTID is the thread ID of the RPC endpoint that created this hook.
	AppTID uint8

	mu      sync.Mutex
	pending atomic.Uint64
	pkts    *queue.Queue
}

// NewHook creates a hook for the endpoint with the given app TID.
func NewHook(appTID uint8) *Hook {
	return &Hook{
		AppTID: appTID,
		pkts:   queue.New(),
	}
}

// Enqueue appends one inbound packet. Called by the Nexus receive loop;
// the critical section is a single queue append.
func (h *Hook) Enqueue(pkt *Packet) {
	h.mu.Lock()
	h.pkts.Add(pkt)
	h.pending.Add(1)
	h.mu.Unlock()
}

// Pending returns the number of queued packets without taking the mutex.
func (h *Hook) Pending() uint64 {
	return h.pending.Load()
}

// Drain removes and returns all queued packets in arrival order.
func (h *Hook) Drain() []*Packet {
	h.mu.Lock()
	n := h.pkts.Length()
	if n == 0 {
		h.mu.Unlock()
		return nil
	}
	out := make([]*Packet, 0, n)
	for h.pkts.Length() > 0 {
		out = append(out, h.pkts.Remove().(*Packet))
	}
	h.pending.Store(0)
	h.mu.Unlock()
	return out
}
