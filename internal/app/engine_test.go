package app

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ringline/ringline/internal/domain"
	"github.com/ringline/ringline/internal/token"
)

type fakeIssuer struct {
	fail   bool
	issued int
}

func (f *fakeIssuer) Issue(channel, uid string, ttl time.Duration) (token.Credential, error) {
	if f.fail {
		return token.Credential{}, errors.New("issuer down")
	}
	f.issued++
	return token.Credential{
		Token:    fmt.Sprintf("tok-%s-%s-%d", channel, uid, f.issued),
		ExpireAt: time.Now().Add(ttl),
	}, nil
}

type recordingNotifier struct {
	events map[domain.UserID][]any
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[domain.UserID][]any)}
}

func (r *recordingNotifier) Notify(uid domain.UserID, v any) {
	r.events[uid] = append(r.events[uid], v)
}

func newTestEngine() (*Engine, *recordingNotifier, *fakeIssuer) {
	n := newRecordingNotifier()
	iss := &fakeIssuer{}
	e := NewEngine(NewPresence(), iss, n, time.Hour, time.Minute, 4*time.Hour)
	return e, n, iss
}

func TestStartCallReturnsUniqueIDs(t *testing.T) {
	e, _, _ := newTestEngine()
	seen := make(map[domain.CallID]bool)
	for i := 0; i < 100; i++ {
		res, err := e.StartCall("alice", "bob", "")
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if seen[res.CallID] {
			t.Fatalf("call id %s returned twice", res.CallID)
		}
		seen[res.CallID] = true
		if res.Channel != string(res.CallID) {
			t.Errorf("channel %q differs from call id %q", res.Channel, res.CallID)
		}
		if res.Token.Token == "" {
			t.Error("caller token empty")
		}
	}
}

func TestStartCallValidatesParties(t *testing.T) {
	e, _, _ := newTestEngine()
	if _, err := e.StartCall("", "bob", ""); !errors.Is(err, domain.ErrUserIDEmpty) {
		t.Errorf("empty caller: got %v, want ErrUserIDEmpty", err)
	}
	if _, err := e.StartCall("alice", "", ""); !errors.Is(err, domain.ErrUserIDEmpty) {
		t.Errorf("empty callee: got %v, want ErrUserIDEmpty", err)
	}
}

func TestStartCallRequestedChannelCollision(t *testing.T) {
	e, _, _ := newTestEngine()
	if _, err := e.StartCall("alice", "bob", "shared-channel"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := e.StartCall("carol", "dave", "shared-channel"); !errors.Is(err, ErrChannelInUse) {
		t.Fatalf("second start on live channel: got %v, want ErrChannelInUse", err)
	}
}

func TestStartCallSucceedsWithOfflineCallee(t *testing.T) {
	e, n, _ := newTestEngine()
	res, err := e.StartCall("alice", "bob", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Token.Token == "" {
		t.Error("caller must get a valid token even with callee offline")
	}
	// The ring event is still pushed into the notifier; the presence layer
	// drops it silently for offline users.
	if len(n.events["bob"]) != 1 {
		t.Fatalf("bob got %d events, want 1 ring event", len(n.events["bob"]))
	}
}

func TestStartCallIssuerFailureStoresNothing(t *testing.T) {
	e, n, iss := newTestEngine()
	iss.fail = true
	res, err := e.StartCall("alice", "bob", "")
	if err == nil {
		t.Fatal("expected issuer error")
	}
	if res.CallID != "" {
		t.Errorf("result should be zero on failure, got %+v", res)
	}
	if len(n.events["bob"]) != 0 {
		t.Error("no notification may leak when the operation failed")
	}
	if e.calls.Len() != 0 {
		t.Error("no call record may be stored when the operation failed")
	}
}

func TestAcceptCallHappyPath(t *testing.T) {
	e, n, _ := newTestEngine()
	start, _ := e.StartCall("alice", "bob", "")

	res, err := e.AcceptCall(start.CallID, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Channel != start.Channel {
		t.Errorf("channel mismatch: %q vs %q", res.Channel, start.Channel)
	}
	if res.Token.Token == start.Token.Token {
		t.Error("callee credential must be independent of the caller's")
	}

	call, _ := e.Call(start.CallID)
	if call.Status != domain.StatusAccepted {
		t.Errorf("status = %s, want accepted", call.Status)
	}
	if call.AcceptedAt.IsZero() {
		t.Error("acceptedAt not recorded")
	}
	if len(n.events["alice"]) != 1 {
		t.Fatalf("alice got %d events, want 1 callAccepted", len(n.events["alice"]))
	}
	if _, ok := n.events["alice"][0].(domain.CallAcceptedEvent); !ok {
		t.Errorf("alice's event is %T, want CallAcceptedEvent", n.events["alice"][0])
	}
}

func TestAcceptCallUnknownID(t *testing.T) {
	e, _, _ := newTestEngine()
	if _, err := e.AcceptCall("nope", "bob"); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("got %v, want ErrCallNotFound", err)
	}
}

func TestAcceptCallWrongCallee(t *testing.T) {
	e, _, _ := newTestEngine()
	start, _ := e.StartCall("alice", "bob", "")

	if _, err := e.AcceptCall(start.CallID, "mallory"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	call, _ := e.Call(start.CallID)
	if call.Status != domain.StatusRinging {
		t.Errorf("forbidden accept mutated status to %s", call.Status)
	}
}

func TestAcceptCallTwice(t *testing.T) {
	e, _, _ := newTestEngine()
	start, _ := e.StartCall("alice", "bob", "")

	if _, err := e.AcceptCall(start.CallID, "bob"); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	first, _ := e.Call(start.CallID)

	if _, err := e.AcceptCall(start.CallID, "bob"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second accept: got %v, want ErrInvalidState", err)
	}
	second, _ := e.Call(start.CallID)
	if !second.AcceptedAt.Equal(first.AcceptedAt) {
		t.Error("failed accept must not alter acceptedAt")
	}
}

func TestRejectThenAcceptIsTerminal(t *testing.T) {
	e, n, _ := newTestEngine()
	start, _ := e.StartCall("alice", "bob", "")

	if err := e.RejectCall(start.CallID, "bob"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, ok := n.events["alice"][0].(domain.CallRejectedEvent); !ok {
		t.Errorf("alice's event is %T, want CallRejectedEvent", n.events["alice"][0])
	}

	if _, err := e.AcceptCall(start.CallID, "bob"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("accept after reject: got %v, want ErrInvalidState", err)
	}
	call, _ := e.Call(start.CallID)
	if call.Status != domain.StatusRejected {
		t.Errorf("status = %s, want rejected", call.Status)
	}
	if call.EndedAt.IsZero() {
		t.Error("reject must record endedAt")
	}
}

func TestRejectCallWrongCallee(t *testing.T) {
	e, _, _ := newTestEngine()
	start, _ := e.StartCall("alice", "bob", "")
	if err := e.RejectCall(start.CallID, "mallory"); !errors.Is(err, ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}
}

func TestEndCallByEitherParty(t *testing.T) {
	for _, by := range []domain.UserID{"alice", "bob"} {
		t.Run(string(by), func(t *testing.T) {
			e, n, _ := newTestEngine()
			start, _ := e.StartCall("alice", "bob", "")
			if _, err := e.AcceptCall(start.CallID, "bob"); err != nil {
				t.Fatalf("accept: %v", err)
			}

			if err := e.EndCall(start.CallID, by); err != nil {
				t.Fatalf("end by %s: %v", by, err)
			}
			call, _ := e.Call(start.CallID)
			if call.Status != domain.StatusEnded {
				t.Errorf("status = %s, want ended", call.Status)
			}

			// Both parties hear about the hangup.
			for _, uid := range []domain.UserID{"alice", "bob"} {
				last := n.events[uid][len(n.events[uid])-1]
				ev, ok := last.(domain.CallEndedEvent)
				if !ok {
					t.Fatalf("%s's last event is %T, want CallEndedEvent", uid, last)
				}
				if ev.By != by {
					t.Errorf("ended by %s, event says %s", by, ev.By)
				}
			}
		})
	}
}

func TestEndCallByStranger(t *testing.T) {
	e, _, _ := newTestEngine()
	start, _ := e.StartCall("alice", "bob", "")
	if _, err := e.AcceptCall(start.CallID, "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := e.EndCall(start.CallID, "carol"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger end: got %v, want ErrForbidden", err)
	}
	call, _ := e.Call(start.CallID)
	if call.Status != domain.StatusAccepted {
		t.Errorf("stranger end mutated status to %s", call.Status)
	}
}

func TestEndCallRequiresAccepted(t *testing.T) {
	e, _, _ := newTestEngine()
	start, _ := e.StartCall("alice", "bob", "")

	if err := e.EndCall(start.CallID, "alice"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("end while ringing: got %v, want ErrInvalidState", err)
	}
	if err := e.EndCall("nope", "alice"); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("end unknown: got %v, want ErrCallNotFound", err)
	}
}

// Full scenario over the real presence layer with fake connections,
// verifying delivery rather than just notifier bookkeeping.
func TestCallLifecycleOverPresence(t *testing.T) {
	p := NewPresence()
	e := NewEngine(p, &fakeIssuer{}, p, time.Hour, time.Minute, 4*time.Hour)

	bobConn := newFakeConn("c-bob")
	aliceConn := newFakeConn("c-alice")
	if err := e.RegisterPresence("bob", bobConn); err != nil {
		t.Fatalf("register bob: %v", err)
	}
	if err := e.RegisterPresence("alice", aliceConn); err != nil {
		t.Fatalf("register alice: %v", err)
	}

	start, err := e.StartCall("alice", "bob", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	rings := bobConn.received(t)
	if len(rings) != 1 {
		t.Fatalf("bob got %d frames, want exactly 1 incomingCall", len(rings))
	}
	if rings[0]["type"] != "incomingCall" || rings[0]["callId"] != string(start.CallID) {
		t.Fatalf("unexpected ring frame: %v", rings[0])
	}

	if _, err := e.AcceptCall(start.CallID, "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	accepts := aliceConn.received(t)
	if len(accepts) != 1 || accepts[0]["type"] != "callAccepted" {
		t.Fatalf("alice frames: %v, want exactly one callAccepted", accepts)
	}

	if err := e.EndCall(start.CallID, "alice"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if got := aliceConn.received(t); got[len(got)-1]["type"] != "callEnded" {
		t.Errorf("alice's last frame: %v, want callEnded", got[len(got)-1])
	}
	if got := bobConn.received(t); got[len(got)-1]["type"] != "callEnded" {
		t.Errorf("bob's last frame: %v, want callEnded", got[len(got)-1])
	}
}

func TestDisconnectLastConnectionEndsLiveCalls(t *testing.T) {
	p := NewPresence()
	e := NewEngine(p, &fakeIssuer{}, p, time.Hour, time.Minute, 4*time.Hour)

	aliceConn := newFakeConn("c-alice")
	bobConn := newFakeConn("c-bob")
	_ = e.RegisterPresence("alice", aliceConn)
	_ = e.RegisterPresence("bob", bobConn)

	start, _ := e.StartCall("alice", "bob", "")

	e.Disconnect("c-alice")

	call, _ := e.Call(start.CallID)
	if call.Status != domain.StatusEnded {
		t.Fatalf("status after caller disconnect = %s, want ended", call.Status)
	}
	frames := bobConn.received(t)
	last := frames[len(frames)-1]
	if last["type"] != "callEnded" {
		t.Errorf("bob's last frame: %v, want callEnded", last)
	}
	if p.Online("alice") {
		t.Error("alice should be offline")
	}
}

func TestDisconnectWithSecondDeviceKeepsCall(t *testing.T) {
	p := NewPresence()
	e := NewEngine(p, &fakeIssuer{}, p, time.Hour, time.Minute, 4*time.Hour)

	_ = e.RegisterPresence("alice", newFakeConn("c1"))
	_ = e.RegisterPresence("alice", newFakeConn("c2"))
	_ = e.RegisterPresence("bob", newFakeConn("c3"))

	start, _ := e.StartCall("alice", "bob", "")
	e.Disconnect("c1")

	call, _ := e.Call(start.CallID)
	if call.Status != domain.StatusRinging {
		t.Errorf("call ended although alice still has a device; status = %s", call.Status)
	}
}
