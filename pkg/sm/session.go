package sm

// Role is the role of a session endpoint.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// Session is a one-to-one connection between two RPC endpoints. A session
// is pinned to the endpoint that created it for its whole life and is never
// shared across threads; each side identifies it by its local session
// number.
type Session struct {
	// Role is the client/server role of this side of the session.
	Role Role

	// State is the management state. It only moves forward.
	State SessionState

	// Client and Server are the two endpoint descriptors.
	Client SessionMetadata
	Server SessionMetadata

	// MgmtReqTSC is the cycle timestamp of the last management request
	// transmit; the retry sweep compares against it.
	MgmtReqTSC uint64

	// MgmtReqStartTSC is the cycle timestamp of the first transmit of the
	// current management request, used for the absolute timeout.
	MgmtReqStartTSC uint64

	cc bool
}

// NewSession creates a session with the given role and initial state. Both
// descriptors start as invalid sentinels.
func NewSession(role Role, state SessionState) *Session {
	return &Session{
		Role:   role,
		State:  state,
		Client: NewSessionMetadata(),
		Server: NewSessionMetadata(),
	}
}

// IsClient reports whether this is the client side of the session.
func (s *Session) IsClient() bool { return s.Role == RoleClient }

// IsServer reports whether this is the server side of the session.
func (s *Session) IsServer() bool { return s.Role == RoleServer }

// LocalSessionNum returns the session number assigned by the owning
// endpoint.
func (s *Session) LocalSessionNum() uint32 {
	if s.IsClient() {
		return s.Client.SessionNum
	}
	return s.Server.SessionNum
}

// ClientName returns the loggable name of the session's client endpoint.
func (s *Session) ClientName() string {
	return s.Client.Name()
}

// EnableCongestionControl enables congestion control for this session.
func (s *Session) EnableCongestionControl() { s.cc = true }

// DisableCongestionControl disables congestion control for this session.
func (s *Session) DisableCongestionControl() { s.cc = false }

// CongestionControlEnabled reports whether congestion control is on.
func (s *Session) CongestionControlEnabled() bool { return s.cc }
