package wsnext

// Close codes used by the engine (RFC 6455 section 7.4.1).
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseAbnormalClosure = 1006
	ClosePolicyViolation = 1008
	CloseMessageTooBig   = 1009
	CloseInternalError   = 1011
)

// Standard error messages
const (
	// Connection errors
	ErrMsgConnectionClosed  = "connection is closed"
	ErrMsgContextCancelled  = "connection context cancelled"
	ErrMsgSendQueueClosed   = "send queue closed"
	ErrMsgSendQueueFull     = "send queue full"
	ErrMsgServerRunning     = "server already running"
	ErrMsgEndpointNotFound  = "endpoint not found"
	ErrMsgRateLimitExceeded = "Rate limit exceeded"

	// Dispatch errors
	ErrMsgUnhandledError = "Unhandled error"
	ErrMsgOwnerNotFound  = "owner instance not found"
	ErrMsgOwnerMismatch  = "owner instance has unexpected type"
)
