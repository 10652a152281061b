package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ringline/ringline/internal/core"
	"github.com/ringline/ringline/internal/domain"
	"github.com/ringline/ringline/internal/token"
)

// Notifier pushes an event to every live connection of a user.
// Delivery is fire-and-forget; an offline user is not an error.
type Notifier interface {
	Notify(uid domain.UserID, v any)
}

// TokenIssuer mints a publish credential for one participant on one channel.
type TokenIssuer interface {
	Issue(channel, uid string, ttl time.Duration) (token.Credential, error)
}

// terminal call records are kept around this long for late observers
// before the janitor prunes them.
const terminalRetention = time.Minute

// Engine owns the call state machine. It is the only writer of the call
// table; every transition is serialized behind mu so a racing accept and
// reject cannot both win.
type Engine struct {
	mu       sync.Mutex
	presence *Presence
	calls    *callTable
	issuer   TokenIssuer
	notify   Notifier

	tokenTTL    time.Duration
	ringTimeout time.Duration
	maxDuration time.Duration

	now func() time.Time
}

func NewEngine(presence *Presence, issuer TokenIssuer, notify Notifier, tokenTTL, ringTimeout, maxDuration time.Duration) *Engine {
	return &Engine{
		presence:    presence,
		calls:       newCallTable(),
		issuer:      issuer,
		notify:      notify,
		tokenTTL:    tokenTTL,
		ringTimeout: ringTimeout,
		maxDuration: maxDuration,
		now:         time.Now,
	}
}

type StartResult struct {
	CallID  domain.CallID
	Channel string
	Token   token.Credential
}

type AcceptResult struct {
	CallID  domain.CallID
	Channel string
	Token   token.Credential
}

// StartCall originates a call from caller to callee and rings the callee.
// The caller gets its credential back whether or not the callee is online.
func (e *Engine) StartCall(caller, callee domain.UserID, requestedChannel string) (StartResult, error) {
	if err := caller.Validate(); err != nil {
		return StartResult{}, err
	}
	if err := callee.Validate(); err != nil {
		return StartResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	call := domain.NewCall(caller, callee, requestedChannel, e.now())
	// Generated ids cannot collide, but a caller-supplied channel can.
	if prev, ok := e.calls.Get(call.ID); ok && !prev.Status.Terminal() {
		return StartResult{}, ErrChannelInUse
	}
	cred, err := e.issuer.Issue(call.Channel, caller.String(), e.tokenTTL)
	if err != nil {
		return StartResult{}, err
	}
	e.calls.Put(call)

	log.Info().Str("module", "app.engine").
		Str("call", call.ID.String()).
		Str("caller", caller.String()).
		Str("callee", callee.String()).
		Msg("call started")

	e.notify.Notify(callee, domain.NewIncomingCall(call))
	return StartResult{CallID: call.ID, Channel: call.Channel, Token: cred}, nil
}

// AcceptCall transitions a ringing call to accepted and hands the callee
// its credential. Only the stored callee may accept, and only once.
func (e *Engine) AcceptCall(id domain.CallID, callee domain.UserID) (AcceptResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	call, ok := e.calls.Get(id)
	if !ok {
		return AcceptResult{}, ErrCallNotFound
	}
	if call.CalleeID != callee {
		return AcceptResult{}, ErrForbidden
	}
	if call.Status != domain.StatusRinging {
		return AcceptResult{}, ErrInvalidState
	}

	// Issue before mutating: a failed issuance leaves the call ringing.
	cred, err := e.issuer.Issue(call.Channel, callee.String(), e.tokenTTL)
	if err != nil {
		return AcceptResult{}, err
	}

	call.Status = domain.StatusAccepted
	call.AcceptedAt = e.now()

	log.Info().Str("module", "app.engine").Str("call", id.String()).Msg("call accepted")
	e.notify.Notify(call.CallerID, domain.NewCallAccepted(call))
	return AcceptResult{CallID: call.ID, Channel: call.Channel, Token: cred}, nil
}

// RejectCall transitions a ringing call to rejected.
func (e *Engine) RejectCall(id domain.CallID, callee domain.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	call, ok := e.calls.Get(id)
	if !ok {
		return ErrCallNotFound
	}
	if call.CalleeID != callee {
		return ErrForbidden
	}
	if call.Status != domain.StatusRinging {
		return ErrInvalidState
	}

	call.Status = domain.StatusRejected
	call.EndedAt = e.now()

	log.Info().Str("module", "app.engine").Str("call", id.String()).Msg("call rejected")
	e.notify.Notify(call.CallerID, domain.NewCallRejected(call))
	return nil
}

// EndCall ends an accepted call. Either party may end it; both are told.
func (e *Engine) EndCall(id domain.CallID, by domain.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	call, ok := e.calls.Get(id)
	if !ok {
		return ErrCallNotFound
	}
	if !call.Party(by) {
		return ErrForbidden
	}
	if call.Status != domain.StatusAccepted {
		return ErrInvalidState
	}

	e.endLocked(call, by)
	return nil
}

// endLocked finalizes a call and tells both parties. Caller holds e.mu.
func (e *Engine) endLocked(call *domain.Call, by domain.UserID) {
	call.Status = domain.StatusEnded
	call.EndedAt = e.now()

	log.Info().Str("module", "app.engine").Str("call", call.ID.String()).Str("by", by.String()).Msg("call ended")
	ev := domain.NewCallEnded(call, by)
	e.notify.Notify(call.CallerID, ev)
	e.notify.Notify(call.CalleeID, ev)
}

// RegisterPresence binds a connection to a user. Must happen before the
// user can receive any signaling event.
func (e *Engine) RegisterPresence(uid domain.UserID, conn core.SignalConnection) error {
	if err := uid.Validate(); err != nil {
		return err
	}
	return e.presence.Register(uid, conn)
}

// Disconnect drops a connection. When it was the user's last one, any
// call they are still part of is ended and the other party notified —
// a ringing call must not orphan the callee's UI.
func (e *Engine) Disconnect(cid core.ConnID) {
	uid, remaining, ok := e.presence.Unregister(cid)
	if !ok || remaining > 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, call := range e.calls.LiveOf(uid) {
		e.endLocked(call, uid)
	}
}

// SweepStale force-ends calls that rang or ran too long, and prunes old
// terminal records. Returns how many calls were ended.
func (e *Engine) SweepStale() int {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	ended := 0
	for _, call := range e.calls.Stale(now.Add(-e.ringTimeout), now.Add(-e.maxDuration)) {
		e.endLocked(call, call.CallerID)
		ended++
	}
	e.calls.Prune(now.Add(-terminalRetention))
	return ended
}

// Call returns a copy of the record for diagnostics.
func (e *Engine) Call(id domain.CallID) (domain.Call, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.calls.Get(id)
	if !ok {
		return domain.Call{}, false
	}
	return *c, true
}

func (e *Engine) Presence() *Presence { return e.presence }
