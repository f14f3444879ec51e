package rpc

import (
	"errors"

	"github.com/ethercflow/eRPC/internal/logger"
	"github.com/ethercflow/eRPC/pkg/sm"
	"github.com/ethercflow/eRPC/pkg/transport"
)

// handleConnectReq processes a connect request at the server endpoint.
// Duplicate requests (client retries) are absorbed by replying with the
// already-established session's descriptor.
func (r *Rpc) handleConnectReq(pkt *sm.Packet) {
	logger.Debug("Connect request received",
		logger.KeyAppTID, r.appTID,
		logger.KeyRemoteHost, pkt.Client.HostnameString(),
		logger.KeyRemoteTID, pkt.Client.AppTID,
		logger.KeyRemoteSessNum, pkt.Client.SessionNum)

	// Duplicate detection: a retransmitted connect request names a client
	// endpoint we may already have admitted.
	for _, session := range r.sessionVec {
		if session == nil || !session.IsServer() {
			continue
		}
		if session.Client.SameEndpoint(&pkt.Client) {
			pkt.Server = session.Server
			r.sendResp(pkt, sm.ErrNone)
			return
		}
	}

	if errType := r.validateConnectReq(pkt); errType != sm.ErrNone {
		logger.Warn("Rejecting connect request",
			logger.KeyAppTID, r.appTID,
			logger.KeyRemoteHost, pkt.Client.HostnameString(),
			logger.KeyErrType, errType.String())
		r.sendResp(pkt, errType)
		return
	}

	if err := r.trans.ReserveSessionResources(); err != nil {
		errType := sm.ErrOutOfMemory
		if errors.Is(err, transport.ErrRingExhausted) {
			errType = sm.ErrRingExhausted
		}
		logger.Warn("Rejecting connect request: transport admission failed",
			logger.KeyAppTID, r.appTID,
			logger.KeyError, err)
		r.sendResp(pkt, errType)
		return
	}

	session := sm.NewSession(sm.RoleServer, sm.StateConnected)
	session.Client = pkt.Client // verbatim copy of the client descriptor
	if err := r.fillLocalMetadata(&session.Server, pkt.Server.PhyPort); err != nil {
		r.trans.FreeSessionResources()
		r.sendResp(pkt, sm.ErrRoutingResolutionFailure)
		return
	}
	session.Server.SessionNum = uint32(len(r.sessionVec))
	session.Server.StartSeq = r.generateStartSeq()

	r.sessionVec = append(r.sessionVec, session)
	r.openSessions++
	if r.m != nil {
		r.m.SetOpenSessions(r.appTID, r.openSessions)
	}

	logger.Info("Session admitted",
		logger.KeyAppTID, r.appTID,
		logger.KeySessionNum, session.Server.SessionNum,
		logger.KeyRemoteHost, session.Client.HostnameString(),
		logger.KeyRemoteSessNum, session.Client.SessionNum)

	pkt.Server = session.Server
	r.sendResp(pkt, sm.ErrNone)
}

// validateConnectReq runs the server-side admission checks in order and
// returns the first failure's error type.
func (r *Rpc) validateConnectReq(pkt *sm.Packet) sm.ErrType {
	if pkt.Client.TransportType != r.trans.Kind() || pkt.Server.TransportType != r.trans.Kind() {
		return sm.ErrInvalidTransport
	}
	if pkt.Server.AppTID != r.appTID {
		return sm.ErrInvalidRemoteRpcID
	}
	if !r.isPhyPortManaged(pkt.Server.PhyPort) {
		return sm.ErrInvalidRemoteRpcID
	}
	if err := r.trans.ResolveRouting(pkt.Client.HostnameString(), &pkt.Client.RoutingInfo); err != nil {
		return sm.ErrRoutingResolutionFailure
	}
	if len(r.sessionVec) >= sm.MaxSessionsPerThread {
		return sm.ErrRingExhausted
	}
	return sm.ErrNone
}

// sendResp sends the response to a management request, reusing the request
// packet as the response buffer.
func (r *Rpc) sendResp(pkt *sm.Packet, errType sm.ErrType) {
	if err := pkt.SendRespMut(errType, &r.nexus.UDPConfig); err != nil {
		logger.Debug("Management response send failed",
			logger.KeyPktType, pkt.PktType.String(),
			logger.KeyError, err)
	}
}

// handleConnectResp processes a connect response at the client endpoint.
// Stale and duplicate responses are dropped: only a session still in the
// connect-in-progress state consumes one.
func (r *Rpc) handleConnectResp(pkt *sm.Packet) {
	session := r.sessionByNum(pkt.Client.SessionNum)
	if session == nil || !session.IsClient() {
		logger.Debug("Dropping connect response for unknown session",
			logger.KeyAppTID, r.appTID,
			logger.KeySessionNum, pkt.Client.SessionNum)
		return
	}
	if session.State != sm.StateConnectInProgress {
		// Duplicate response after a retry.
		logger.Debug("Dropping duplicate connect response",
			logger.KeyAppTID, r.appTID,
			logger.KeySessionNum, pkt.Client.SessionNum,
			logger.KeyState, session.State.String())
		return
	}
	if !session.Client.SameEndpoint(&pkt.Client) {
		logger.Warn("Dropping connect response with mismatched client descriptor",
			logger.KeyAppTID, r.appTID,
			logger.KeySessionNum, pkt.Client.SessionNum)
		return
	}

	if pkt.ErrType == sm.ErrNone {
		session.Server = pkt.Server
		session.State = sm.StateConnected
		r.retryQueueRemove(session)

		logger.Info("Session connected",
			logger.KeyAppTID, r.appTID,
			logger.KeySessionNum, session.Client.SessionNum,
			logger.KeyRemoteHost, session.Server.HostnameString(),
			logger.KeyRemoteSessNum, session.Server.SessionNum)

		r.invokeHandler(session, sm.EventConnected, sm.ErrNone)
		return
	}

	// Peer-reported failure: park the session in the error state until the
	// application disposes of it.
	session.State = sm.StateError
	r.retryQueueRemove(session)

	logger.Warn("Session connect failed",
		logger.KeyAppTID, r.appTID,
		logger.KeySessionNum, session.Client.SessionNum,
		logger.KeyRemoteHost, session.Server.HostnameString(),
		logger.KeyErrType, pkt.ErrType.String())

	r.invokeHandler(session, sm.EventConnectFailed, pkt.ErrType)
}
