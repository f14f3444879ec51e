package rpc

import (
	"github.com/ethercflow/eRPC/internal/logger"
	"github.com/ethercflow/eRPC/pkg/sm"
	"github.com/ethercflow/eRPC/pkg/timing"
)

// sendConnectReqOne transmits one connect request for a session in the
// connect-in-progress state.
func (r *Rpc) sendConnectReqOne(session *sm.Session) {
	pkt := sm.NewPacket(sm.PktConnectReq)
	pkt.Client = session.Client
	pkt.Server = session.Server
	if err := pkt.SendTo(session.Server.HostnameString(), &r.nexus.UDPConfig); err != nil {
		// Best effort; the retry sweep resends.
		logger.Debug("Connect request send failed",
			logger.KeySessionNum, session.Client.SessionNum,
			logger.KeyError, err)
	}
}

// sendDisconnectReqOne transmits one disconnect request for a session in
// the disconnect-in-progress state.
func (r *Rpc) sendDisconnectReqOne(session *sm.Session) {
	pkt := sm.NewPacket(sm.PktDisconnectReq)
	pkt.Client = session.Client
	pkt.Server = session.Server
	if err := pkt.SendTo(session.Server.HostnameString(), &r.nexus.UDPConfig); err != nil {
		logger.Debug("Disconnect request send failed",
			logger.KeySessionNum, session.Client.SessionNum,
			logger.KeyError, err)
	}
}

// retryQueueContains reports whether the session is queued for retry.
func (r *Rpc) retryQueueContains(session *sm.Session) bool {
	for _, s := range r.retryQueue {
		if s == session {
			return true
		}
	}
	return false
}

// retryQueueAdd queues a client session whose management request was just
// transmitted. A session may be queued at most once.
func (r *Rpc) retryQueueAdd(session *sm.Session) {
	if !session.IsClient() || r.retryQueueContains(session) {
		return
	}
	now := r.nexus.Clock.Cycles()
	session.MgmtReqTSC = now
	session.MgmtReqStartTSC = now
	r.retryQueue = append(r.retryQueue, session)

	if r.m != nil {
		r.m.SetSessionsInFlight(r.appTID, len(r.retryQueue))
	}
}

// retryQueueRemove removes the session from the retry queue. The session
// must be present.
func (r *Rpc) retryQueueRemove(session *sm.Session) {
	for i, s := range r.retryQueue {
		if s == session {
			r.retryQueue = append(r.retryQueue[:i], r.retryQueue[i+1:]...)
			break
		}
	}
	if r.m != nil {
		r.m.SetSessionsInFlight(r.appTID, len(r.retryQueue))
	}
}

// retryQueueRemoveIfPresent removes the session if queued.
func (r *Rpc) retryQueueRemoveIfPresent(session *sm.Session) {
	if r.retryQueueContains(session) {
		r.retryQueueRemove(session)
	}
}

// retrySweep retransmits every queued request whose retry interval has
// expired, and times out connect requests past the absolute deadline.
// Retries are uniform, without backoff; duplicates at the peer are
// absorbed by idempotent handlers.
func (r *Rpc) retrySweep() {
	if len(r.retryQueue) == 0 {
		return
	}

	curTSC := r.nexus.Clock.Cycles()
	freqGHz := r.nexus.FreqGHz()

	// Timeouts remove entries, so sweep over a snapshot.
	queued := append([]*sm.Session(nil), r.retryQueue...)

	for _, session := range queued {
		state := session.State

		if state == sm.StateConnectInProgress {
			totalMs := timing.ToMsec(curTSC-session.MgmtReqStartTSC, freqGHz)
			if totalMs > SessionMgmtTimeoutMs {
				logger.Warn("Session connect timed out",
					logger.KeyAppTID, r.appTID,
					logger.KeySessionNum, session.Client.SessionNum,
					logger.KeyRemoteHost, session.Server.HostnameString(),
					logger.KeyElapsedMs, totalMs)

				session.State = sm.StateError
				r.retryQueueRemove(session)
				r.invokeHandler(session, sm.EventConnectFailed, sm.ErrConnectTimeout)
				continue
			}
		}

		elapsedMs := timing.ToMsec(curTSC-session.MgmtReqTSC, freqGHz)
		if elapsedMs <= SessionMgmtRetransMs {
			continue
		}

		switch state {
		case sm.StateConnectInProgress:
			logger.Debug("Retrying session connect request",
				logger.KeyAppTID, r.appTID,
				logger.KeySessionNum, session.Client.SessionNum,
				logger.KeyElapsedMs, elapsedMs)
			r.sendConnectReqOne(session)
			if r.m != nil {
				r.m.RecordRetransmit(sm.PktConnectReq.String())
			}

		case sm.StateDisconnectInProgress:
			logger.Debug("Retrying session disconnect request",
				logger.KeyAppTID, r.appTID,
				logger.KeySessionNum, session.Client.SessionNum,
				logger.KeyElapsedMs, elapsedMs)
			r.sendDisconnectReqOne(session)
			if r.m != nil {
				r.m.RecordRetransmit(sm.PktDisconnectReq.String())
			}

		default:
			// Sessions leave the queue before leaving an in-progress
			// state; a stale entry here is a bug.
			logger.Error("Retry queue session in non-in-progress state",
				logger.KeySessionNum, session.LocalSessionNum(),
				logger.KeyState, state.String())
			r.retryQueueRemove(session)
			continue
		}

		session.MgmtReqTSC = r.nexus.Clock.Cycles()
	}
}
