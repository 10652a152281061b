package app

import (
	"sync"
	"time"

	"github.com/ringline/ringline/internal/domain"
)

// callTable is the single authority for in-flight call records. It is
// memory-only: a restart loses every in-flight call.
type callTable struct {
	mu    sync.RWMutex
	calls map[domain.CallID]*domain.Call
}

func newCallTable() *callTable {
	return &callTable{calls: make(map[domain.CallID]*domain.Call)}
}

func (t *callTable) Put(c *domain.Call) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[c.ID] = c
}

func (t *callTable) Get(id domain.CallID) (*domain.Call, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.calls[id]
	return c, ok
}

func (t *callTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.calls)
}

// LiveOf returns the non-terminal calls uid participates in.
func (t *callTable) LiveOf(uid domain.UserID) []*domain.Call {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*domain.Call
	for _, c := range t.calls {
		if !c.Status.Terminal() && c.Party(uid) {
			out = append(out, c)
		}
	}
	return out
}

// Stale returns calls that outlived their phase budget: ringing calls
// created before ringCutoff, accepted calls accepted before acceptedCutoff.
func (t *callTable) Stale(ringCutoff, acceptedCutoff time.Time) []*domain.Call {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*domain.Call
	for _, c := range t.calls {
		switch c.Status {
		case domain.StatusRinging:
			if c.CreatedAt.Before(ringCutoff) {
				out = append(out, c)
			}
		case domain.StatusAccepted:
			if c.AcceptedAt.Before(acceptedCutoff) {
				out = append(out, c)
			}
		}
	}
	return out
}

// Prune drops terminal records older than cutoff so the table does not
// grow without bound.
func (t *callTable) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, c := range t.calls {
		if c.Status.Terminal() && c.EndedAt.Before(cutoff) {
			delete(t.calls, id)
			n++
		}
	}
	return n
}
