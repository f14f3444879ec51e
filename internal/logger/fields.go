package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that session
// management, transport, and CLI logs can be correlated and queried together.
const (
	// ========================================================================
	// Endpoint identity
	// ========================================================================
	KeyNexusID  = "nexus_id" // UUID of the owning Nexus instance
	KeyHostname = "hostname" // Local management hostname
	KeyAppTID   = "app_tid"  // Application-level thread ID of the RPC endpoint
	KeyPhyPort  = "phy_port" // Physical fabric port index

	// ========================================================================
	// Session management
	// ========================================================================
	KeySessionNum = "session_num" // Session number (local to the owning endpoint)
	KeyState      = "state"       // Session state
	KeyRole       = "role"        // Session role: client or server
	KeyEvent      = "event"       // Session management event delivered to the app
	KeyPktType    = "pkt_type"    // Management packet type
	KeyErrType    = "err_type"    // Management error type
	KeyStartSeq   = "start_seq"   // Start sequence number

	// ========================================================================
	// Peer identification
	// ========================================================================
	KeyRemoteHost    = "remote_host"    // Peer management hostname
	KeyRemoteTID     = "remote_app_tid" // Peer endpoint's thread ID
	KeyRemoteSessNum = "remote_session_num"
	KeyClientAddr    = "client_addr" // UDP source address of an inbound packet

	// ========================================================================
	// Retry engine
	// ========================================================================
	KeyElapsedMs = "elapsed_ms" // Milliseconds since the last transmit (since the first, on a connect timeout)
	KeyRetries   = "retries"    // Retransmit count for an in-flight request

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeySize       = "size"        // Payload or packet size in bytes
	KeyAddr       = "addr"        // Listen or dial address
)
