package app

import "errors"

var (
	ErrCallNotFound      = errors.New("call not found")
	ErrForbidden         = errors.New("not a participant of this call")
	ErrInvalidState      = errors.New("call is not in a valid state for this transition")
	ErrAlreadyRegistered = errors.New("connection already bound to a user")
	ErrChannelInUse      = errors.New("channel already in use by another call")
	ErrTooManyCalls      = errors.New("too many call attempts")
)
