package rpc

import (
	"fmt"

	"github.com/ethercflow/eRPC/internal/logger"
	"github.com/ethercflow/eRPC/pkg/sm"
)

// CreateSession creates a client session and initiates connection
// establishment to the endpoint (remHostname, remAppTID, remPhyPort).
//
// On success the session handle is returned immediately in the
// connect-in-progress state; the management handler is invoked later with
// either a connected or a connect-failed event. On a local precondition
// failure an error is returned and no handler invocation ever happens.
func (r *Rpc) CreateSession(localPhyPort uint8, remHostname string, remAppTID uint8,
	remPhyPort uint8) (*sm.Session, error) {

	if !r.isPhyPortManaged(localPhyPort) {
		return nil, fmt.Errorf("fabric port %d not managed by this endpoint", localPhyPort)
	}
	if len(r.sessionVec) >= sm.MaxSessionsPerThread {
		return nil, fmt.Errorf("session limit %d reached", sm.MaxSessionsPerThread)
	}

	session := sm.NewSession(sm.RoleClient, sm.StateConnectInProgress)

	if err := r.fillLocalMetadata(&session.Client, localPhyPort); err != nil {
		return nil, err
	}
	session.Client.SessionNum = uint32(len(r.sessionVec))
	session.Client.StartSeq = r.generateStartSeq()

	// The server descriptor holds only the remote coordinates; the peer
	// fills in the rest on its connect response.
	session.Server.TransportType = r.trans.Kind()
	if err := session.Server.SetHostname(remHostname); err != nil {
		return nil, err
	}
	session.Server.AppTID = remAppTID
	session.Server.PhyPort = remPhyPort

	r.sessionVec = append(r.sessionVec, session)
	r.openSessions++
	if r.m != nil {
		r.m.SetOpenSessions(r.appTID, r.openSessions)
	}

	// Advisory pre-connect resolution; transports that need none no-op.
	if err := r.trans.SendResolveSessionMsg(session); err != nil {
		logger.Debug("Resolve session message failed",
			logger.KeySessionNum, session.Client.SessionNum,
			logger.KeyError, err)
	}

	logger.Debug("Initiating session connect",
		logger.KeyAppTID, r.appTID,
		logger.KeySessionNum, session.Client.SessionNum,
		logger.KeyRemoteHost, session.Server.HostnameString(),
		logger.KeyRemoteTID, remAppTID)

	r.sendConnectReqOne(session)
	r.retryQueueAdd(session)

	return session, nil
}

// DestroySession disconnects and destroys a client session. The session
// must not be used by the application after this call returns true.
//
// It returns true if (a) a disconnect request was sent and the
// disconnected event will be delivered later, or (b) the session was in
// the error state, in which case the disconnected event is delivered
// before returning. It returns false while connection establishment or
// teardown is already in flight, and for handles this endpoint does not
// own as a client.
func (r *Rpc) DestroySession(session *sm.Session) bool {
	if !r.isSessionPtrClient(session) {
		logger.Warn("DestroySession on invalid session handle", logger.KeyAppTID, r.appTID)
		return false
	}

	switch session.State {
	case sm.StateConnected:
		session.State = sm.StateDisconnectInProgress
		r.sendDisconnectReqOne(session)
		r.retryQueueAdd(session)
		return true

	case sm.StateError:
		// No peer state exists; deliver the disconnected event inline and
		// reclaim the slot.
		session.State = sm.StateDisconnected
		r.retryQueueRemoveIfPresent(session)
		r.invokeHandler(session, sm.EventDisconnected, sm.ErrNone)
		r.burySession(session)
		return true

	case sm.StateConnectInProgress, sm.StateDisconnectInProgress:
		// Cannot destroy while a management request is in flight.
		return false

	default:
		return false
	}
}

// IsConnected reports whether the session is in the connected state.
func (r *Rpc) IsConnected(session *sm.Session) bool {
	return session != nil && session.State == sm.StateConnected
}

// SetMsgHandler installs the datapath receive callback invoked from the
// event loop for every polled completion.
func (r *Rpc) SetMsgHandler(fn func(payload []byte)) {
	r.msgHandler = fn
}

// SendRequest transmits a datapath request on a connected session.
func (r *Rpc) SendRequest(session *sm.Session, payload []byte) error {
	if !r.IsConnected(session) {
		return fmt.Errorf("session not connected")
	}
	return r.trans.SendMessage(session, payload)
}

// SendResponse transmits a datapath response on a connected session.
func (r *Rpc) SendResponse(session *sm.Session, payload []byte) error {
	if !r.IsConnected(session) {
		return fmt.Errorf("session not connected")
	}
	return r.trans.SendMessage(session, payload)
}
