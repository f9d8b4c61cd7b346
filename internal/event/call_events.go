package event

// Call Event Types - relayed in both directions
const (
	// EventCallOffer - Caller sends an SDP offer to the callee
	EventCallOffer = "call:offer"

	// EventCallAnswer - Callee accepts with an SDP answer
	EventCallAnswer = "call:answer"

	// EventCallIceCandidate - Either side trickles an ICE candidate
	EventCallIceCandidate = "call:ice-candidate"

	// EventCallEnd - Either side hangs up, rejects or cancels
	EventCallEnd = "call:end"
)

// Call Event Types - Server to Client only
const (
	// EventCallError - Notify of call-related errors
	EventCallError = "call:error"
)

// Call End Reasons
const (
	CallEndReasonHangup            = "hangup"
	CallEndReasonBusy              = "busy"
	CallEndReasonUnavailable       = "unavailable"
	CallEndReasonDisconnected      = "disconnected"
	CallEndReasonAnsweredElsewhere = "answered_elsewhere"
)

// Call Error Codes
const (
	CallErrInvalidPayload = "invalid_payload"
	CallErrInvalidSDP     = "invalid_sdp"
	CallErrCallerBusy     = "caller_busy"
	CallErrNotFound       = "call_not_found"
	CallErrInvalidState   = "invalid_state"
	CallErrSelfCall       = "self_call"
)
