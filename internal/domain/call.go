package domain

import (
	"time"

	"github.com/google/uuid"
)

type CallState string

const (
	CallStateRinging    CallState = "ringing"
	CallStateConnecting CallState = "connecting"
	CallStateActive     CallState = "active"
	CallStateEnded      CallState = "ended"
)

// Call is the logical record of a call attempt between exactly two users.
// It exists only while non-terminal; the coordinator discards it on end.
type Call struct {
	ID        uuid.UUID
	CallerID  uuid.UUID
	CalleeID  uuid.UUID
	State     CallState
	CreatedAt time.Time
}

func NewCall(callerID, calleeID uuid.UUID) *Call {
	return &Call{
		ID:        uuid.New(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		State:     CallStateRinging,
		CreatedAt: time.Now().UTC(),
	}
}

func (c *Call) IsTerminal() bool {
	return c == nil || c.State == CallStateEnded
}

// HasParticipant reports whether userID is the caller or the callee.
func (c *Call) HasParticipant(userID uuid.UUID) bool {
	return c.CallerID == userID || c.CalleeID == userID
}

// PeerOf returns the other participant of the call.
func (c *Call) PeerOf(userID uuid.UUID) uuid.UUID {
	if c.CallerID == userID {
		return c.CalleeID
	}
	return c.CallerID
}
