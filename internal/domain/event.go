package domain

// Server -> client event frames. Type values are part of the wire protocol,
// keep them stable.

type IncomingCallEvent struct {
	Type    string `json:"type"`
	CallID  CallID `json:"callId"`
	Channel string `json:"channelName"`
	From    UserID `json:"from"`
}

func NewIncomingCall(c *Call) IncomingCallEvent {
	return IncomingCallEvent{Type: "incomingCall", CallID: c.ID, Channel: c.Channel, From: c.CallerID}
}

type CallAcceptedEvent struct {
	Type    string `json:"type"`
	CallID  CallID `json:"callId"`
	Channel string `json:"channelName"`
	From    UserID `json:"from"`
}

func NewCallAccepted(c *Call) CallAcceptedEvent {
	return CallAcceptedEvent{Type: "callAccepted", CallID: c.ID, Channel: c.Channel, From: c.CalleeID}
}

type CallRejectedEvent struct {
	Type   string `json:"type"`
	CallID CallID `json:"callId"`
	From   UserID `json:"from"`
}

func NewCallRejected(c *Call) CallRejectedEvent {
	return CallRejectedEvent{Type: "callRejected", CallID: c.ID, From: c.CalleeID}
}

type CallEndedEvent struct {
	Type   string `json:"type"`
	CallID CallID `json:"callId"`
	By     UserID `json:"by"`
}

func NewCallEnded(c *Call, by UserID) CallEndedEvent {
	return CallEndedEvent{Type: "callEnded", CallID: c.ID, By: by}
}
