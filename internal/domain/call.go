package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallID doubles as the media channel name. Both parties and the token
// issuer see the same value.
type CallID string

func (c CallID) String() string { return string(c) }

// NewCallID builds a channel name that cannot collide across concurrent
// calls, even between the same pair in the same millisecond.
func NewCallID(caller, callee UserID) CallID {
	return CallID(fmt.Sprintf("call-%s-%s-%s", caller, callee, uuid.NewString()))
}

type CallStatus string

const (
	StatusRinging  CallStatus = "ringing"
	StatusAccepted CallStatus = "accepted"
	StatusRejected CallStatus = "rejected"
	StatusEnded    CallStatus = "ended"
)

// Terminal statuses admit no further transitions.
func (s CallStatus) Terminal() bool {
	return s == StatusRejected || s == StatusEnded
}

// Call is one signaling session between exactly two users.
// Only the engine mutates it; everyone else sees copies.
type Call struct {
	ID         CallID
	Channel    string
	CallerID   UserID
	CalleeID   UserID
	Status     CallStatus
	CreatedAt  time.Time
	AcceptedAt time.Time
	EndedAt    time.Time
}

func NewCall(caller, callee UserID, channel string, now time.Time) *Call {
	id := CallID(channel)
	if channel == "" {
		id = NewCallID(caller, callee)
		channel = string(id)
	}
	return &Call{
		ID:        id,
		Channel:   channel,
		CallerID:  caller,
		CalleeID:  callee,
		Status:    StatusRinging,
		CreatedAt: now,
	}
}

// Party reports whether uid is the caller or the callee.
func (c *Call) Party(uid UserID) bool {
	return uid == c.CallerID || uid == c.CalleeID
}
