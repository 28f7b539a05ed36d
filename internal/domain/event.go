package domain

import (
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "ice-candidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return true
	}
	return false
}

// Event types carried over a handle, both directions.
const (
	// server -> client
	EventPresenceUpdate = "presence-update"
	EventNewMessage     = "new-message"
	EventIncomingCall   = "incoming-call"
	EventCallAccepted   = "call-accepted"
	EventCallRejected   = "call-rejected"
	EventCallEnded      = "call-ended"
	EventError          = "error"

	// client -> server
	EventChatMessage   = "chat-message"
	EventCallInitiate  = "call-initiate"
	EventCallAccept    = "call-accept"
	EventCallReject    = "call-reject"
	EventCallConnected = "call-connected"
	EventCallEnd       = "call-end"

	// bidirectional; payload is relayed verbatim, never inspected
	// beyond the routing fields.
	EventSignal = "signal"
)

// Event is the single wire envelope exchanged over a handle. The Type field
// selects which of the optional fields are meaningful.
type Event struct {
	Type string `json:"type"`

	CallID     uuid.UUID `json:"call_id,omitempty"`
	CallerID   uuid.UUID `json:"caller_id,omitempty"`
	CallerName string    `json:"caller_name,omitempty"`
	CalleeID   uuid.UUID `json:"callee_id,omitempty"`

	From      uuid.UUID                  `json:"from,omitempty"`
	To        uuid.UUID                  `json:"to,omitempty"`
	Kind      SignalKind                 `json:"kind,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`

	Online  []uuid.UUID `json:"online,omitempty"`
	Message *Message    `json:"message,omitempty"`

	ReceiverID uuid.UUID `json:"receiver_id,omitempty"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`

	Error string `json:"error,omitempty"`
}
