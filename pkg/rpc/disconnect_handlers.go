package rpc

import (
	"github.com/ethercflow/eRPC/internal/logger"
	"github.com/ethercflow/eRPC/pkg/sm"
)

// handleDisconnectReq processes a disconnect request at the server
// endpoint. A request for a session that is already gone (or that names a
// different client) is answered with server-disconnected, which the client
// treats as resolution of a retry race.
func (r *Rpc) handleDisconnectReq(pkt *sm.Packet) {
	logger.Debug("Disconnect request received",
		logger.KeyAppTID, r.appTID,
		logger.KeySessionNum, pkt.Server.SessionNum,
		logger.KeyRemoteHost, pkt.Client.HostnameString())

	session := r.sessionByNum(pkt.Server.SessionNum)
	if session == nil || !session.IsServer() || !session.Client.SameEndpoint(&pkt.Client) {
		r.sendResp(pkt, sm.ErrSrvDisconnected)
		return
	}

	logger.Info("Session disconnected by peer",
		logger.KeyAppTID, r.appTID,
		logger.KeySessionNum, session.Server.SessionNum,
		logger.KeyRemoteHost, session.Client.HostnameString(),
		logger.KeyRemoteSessNum, session.Client.SessionNum)

	r.burySession(session)
	r.sendResp(pkt, sm.ErrNone)
}

// handleDisconnectResp processes a disconnect response at the client
// endpoint. Only a session still in the disconnect-in-progress state
// consumes one; anything else is a duplicate and is dropped, so the
// application never sees a second disconnected event.
func (r *Rpc) handleDisconnectResp(pkt *sm.Packet) {
	session := r.sessionByNum(pkt.Client.SessionNum)
	if session == nil || !session.IsClient() || session.State != sm.StateDisconnectInProgress {
		logger.Debug("Dropping stale disconnect response",
			logger.KeyAppTID, r.appTID,
			logger.KeySessionNum, pkt.Client.SessionNum)
		return
	}

	r.retryQueueRemove(session)
	session.State = sm.StateDisconnected

	logger.Info("Session disconnected",
		logger.KeyAppTID, r.appTID,
		logger.KeySessionNum, session.Client.SessionNum,
		logger.KeyRemoteHost, session.Server.HostnameString())

	r.invokeHandler(session, sm.EventDisconnected, sm.ErrNone)
	r.burySession(session)
}
