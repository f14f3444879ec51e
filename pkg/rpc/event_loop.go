package rpc

import (
	"github.com/ethercflow/eRPC/internal/logger"
	"github.com/ethercflow/eRPC/pkg/sm"
	"github.com/ethercflow/eRPC/pkg/timing"
)

// RunEventLoopOnce runs one cooperative pass of the event loop:
// management packets first, then the retry sweep, then the datapath poll.
// Application callbacks run inline, on the calling thread.
func (r *Rpc) RunEventLoopOnce() {
	if r.hook.Pending() > 0 {
		r.handleSessionManagement()
	}

	r.retrySweep()

	r.trans.PollCompletions(func(payload []byte) {
		if r.msgHandler != nil {
			r.msgHandler(payload)
		}
	})
}

// RunEventLoop drives the event loop forever.
func (r *Rpc) RunEventLoop() {
	for {
		r.RunEventLoopOnce()
	}
}

// RunEventLoopTimeout drives the event loop for timeoutMs milliseconds of
// the cycle clock.
func (r *Rpc) RunEventLoopTimeout(timeoutMs uint64) {
	startTSC := r.nexus.Clock.Cycles()
	freqGHz := r.nexus.FreqGHz()

	for {
		r.RunEventLoopOnce()

		elapsedMs := timing.ToMsec(r.nexus.Clock.Cycles()-startTSC, freqGHz)
		if elapsedMs > float64(timeoutMs) {
			return
		}
	}
}

// handleSessionManagement drains the Nexus hook and dispatches every
// pending packet. The swap happens under the hook mutex; the handlers run
// after it is released and must not re-enter the hook.
func (r *Rpc) handleSessionManagement() {
	for _, pkt := range r.hook.Drain() {
		switch pkt.PktType {
		case sm.PktConnectReq:
			r.handleConnectReq(pkt)
		case sm.PktConnectResp:
			r.handleConnectResp(pkt)
		case sm.PktDisconnectReq:
			r.handleDisconnectReq(pkt)
		case sm.PktDisconnectResp:
			r.handleDisconnectResp(pkt)
		default:
			// The Nexus validates packet types on receive.
			logger.Error("Unhandled management packet type",
				logger.KeyPktType, pkt.PktType.String())
		}
	}
}
