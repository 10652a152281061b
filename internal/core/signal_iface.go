package core

// Frame is a marshaled event ready for the wire.
type Frame []byte

// ConnID identifies one live transport connection. A user may hold
// several at once (multi-tab, multi-device).
type ConnID string

func (c ConnID) String() string { return string(c) }

// SignalConnection abstracts for a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() ConnID
	TrySend(Frame) error
	Close()
}
